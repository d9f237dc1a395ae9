package metagraph

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the .metagraph.yaml configuration file.
type Config struct {
	// Neo4j connection settings. Its presence selects the neo4j store.
	Neo4j *Neo4jConfig `yaml:"neo4j,omitempty"`

	// Publisher settings for publish jobs.
	Publisher PublisherConfig `yaml:"publisher,omitempty"`

	// Staged tells the publisher where staged rows live.
	Staged StagedConfig `yaml:"staged,omitempty"`

	// Prune settings for stale data removal.
	Prune PruneConfig `yaml:"prune,omitempty"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`

	// MaxConnectionLifetimeSec bounds pooled connection age. Zero keeps the
	// driver default.
	MaxConnectionLifetimeSec int `yaml:"max_connection_lifetime_sec,omitempty"`
}

// PublisherConfig holds the settings recognized by the batched publisher.
type PublisherConfig struct {
	// TransactionSize is the number of rows per batch transaction.
	TransactionSize int `yaml:"transaction_size,omitempty"`

	// CreateOnlyLabels are node labels never updated once created.
	CreateOnlyLabels []string `yaml:"create_only_labels,omitempty"`

	// PublishReverseRelationships materializes the reverse edge of every
	// relationship.
	PublishReverseRelationships bool `yaml:"publish_reverse_relationships"`

	// AddPublisherMetadata stamps PropPublishedTag and PropLastUpdated on
	// every node and edge.
	AddPublisherMetadata bool `yaml:"add_publisher_metadata"`

	// PreserveAdhocUIData leaves existing nodes that were never stamped by
	// the publisher untouched.
	PreserveAdhocUIData bool `yaml:"preserve_adhoc_ui_data"`

	// PreserveEmptyProps stores empty string values instead of dropping them.
	PreserveEmptyProps bool `yaml:"preserve_empty_props"`

	// JobPublishTag is stamped on everything this job touches.
	JobPublishTag string `yaml:"job_publish_tag,omitempty"`

	// AdditionalMetadata holds static fields stamped on every row.
	AdditionalMetadata map[string]string `yaml:"additional_publisher_metadata_fields,omitempty"`
}

// DefaultTransactionSize is the batch size used when none is configured.
const DefaultTransactionSize = 500

// DefaultPublisherConfig returns the publisher defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		TransactionSize:             DefaultTransactionSize,
		PublishReverseRelationships: true,
		AddPublisherMetadata:        true,
		PreserveEmptyProps:          true,
	}
}

// Validate reports the first invalid publisher setting. A zero
// TransactionSize is accepted and means DefaultTransactionSize.
func (c *PublisherConfig) Validate() error {
	if c.TransactionSize < 0 {
		return NewConfigError("transaction_size", "must be positive")
	}

	if c.AddPublisherMetadata && strings.TrimSpace(c.JobPublishTag) == "" {
		return NewConfigError("job_publish_tag", "required when add_publisher_metadata is enabled")
	}

	for _, label := range c.CreateOnlyLabels {
		if err := ValidateName(label); err != nil {
			return NewConfigError("create_only_labels", err.Error())
		}
	}

	for name := range c.AdditionalMetadata {
		if err := ValidateName(name); err != nil {
			return NewConfigError("additional_publisher_metadata_fields", err.Error())
		}

		if slices.Contains([]string{PropKey, PropPublishedTag, PropLastUpdated}, name) {
			return NewConfigError("additional_publisher_metadata_fields", name+" is reserved")
		}
	}

	return nil
}

// StagedConfig locates the staged row files.
type StagedConfig struct {
	// Dir is a local directory holding nodes/ and relationships/.
	Dir string `yaml:"dir,omitempty"`

	// S3 reads staged files from a bucket prefix instead of Dir.
	S3 *S3Config `yaml:"s3,omitempty"`

	// Parallelism bounds concurrent file parsing. Zero means one per CPU.
	Parallelism int `yaml:"parallelism,omitempty"`
}

// S3Config holds object storage settings for staged files.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// PruneConfig controls stale data removal.
type PruneConfig struct {
	// Labels to prune.
	Labels []string `yaml:"labels,omitempty"`

	// MaxStalePct aborts pruning a label when more than this percentage of
	// its nodes would be deleted.
	MaxStalePct float64 `yaml:"max_stale_pct,omitempty"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Publisher: DefaultPublisherConfig(),
		Prune:     PruneConfig{MaxStalePct: 5},
	}
}

// StoreName returns the configured store name, or empty if none.
func (c *Config) StoreName() string {
	if c.Neo4j != nil {
		return StoreNeo4j
	}

	return ""
}

// DefaultConfigNames are the filenames we search for.
var DefaultConfigNames = []string{".metagraph.yaml", ".metagraph.yml", "metagraph.yaml", "metagraph.yml"}

// LoadConfig finds and loads the nearest .metagraph.yaml walking up from dir.
func LoadConfig(dir string) (*Config, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(path)
}

// FindConfig searches for a config file starting from dir and walking up.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for dir := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(dir, name)

			_, err := os.Stat(path)
			if err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}

		dir = parent
	}
}

// LoadConfigFile loads a config from a specific path. Settings absent from
// the file keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
