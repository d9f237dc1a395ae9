// Package neo4j provides a metagraph Store implementation for Neo4j.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/rlch/metagraph"
)

// ErrInvalidConfig is returned when an invalid configuration is provided.
var ErrInvalidConfig = errors.New("neo4j: expected *metagraph.Neo4jConfig")

// ErrUnexpectedResult is returned when a statement returns an unexpected shape.
var ErrUnexpectedResult = errors.New("neo4j: unexpected result")

// Schema error codes reported when a constraint already exists.
var constraintExistsCodes = []string{
	"Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists",
	"Neo.ClientError.Schema.ConstraintAlreadyExists",
}

//nolint:gochecknoinits // Store self-registration pattern
func init() {
	metagraph.RegisterStore(metagraph.StoreNeo4j, func(cfg any) (metagraph.Store, error) {
		neo4jCfg, ok := cfg.(*metagraph.Neo4jConfig)
		if !ok {
			return nil, fmt.Errorf("%w, got %T", ErrInvalidConfig, cfg)
		}

		return New(context.Background(), neo4jCfg)
	})
}

// Store implements metagraph.Store and metagraph.StaleStore for Neo4j.
type Store struct {
	driver     neo4j.DriverWithContext
	session    neo4j.SessionWithContext
	db         string
	statements *statementCache
}

// New creates a Neo4j store from the given configuration and verifies that
// the server is reachable.
func New(ctx context.Context, cfg *metagraph.Neo4jConfig) (*Store, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, metagraph.NewConfigError("neo4j.uri", "required")
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *config.Config) {
		if cfg.MaxConnectionLifetimeSec > 0 {
			c.MaxConnectionLifetime = time.Duration(cfg.MaxConnectionLifetimeSec) * time.Second
		}
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to create driver: %w", err)
	}

	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		_ = driver.Close(ctx)

		return nil, fmt.Errorf("neo4j: failed to connect: %w", err)
	}

	s := &Store{
		driver:     driver,
		db:         cfg.Database,
		statements: newStatementCache(),
	}

	// Batches of a job share one write session.
	s.session = driver.NewSession(ctx, s.sessionConfig())

	return s, nil
}

func (s *Store) sessionConfig() neo4j.SessionConfig {
	sessionCfg := neo4j.SessionConfig{
		AccessMode: neo4j.AccessModeWrite,
	}
	if s.db != "" {
		sessionCfg.DatabaseName = s.db
	}

	return sessionCfg
}

// Name returns the store identifier.
func (s *Store) Name() string {
	return metagraph.StoreNeo4j
}

// EnsureUniqueKey creates the key constraint of label on a short-lived
// session of its own, since schema changes cannot share a transaction with
// data writes.
func (s *Store) EnsureUniqueKey(ctx context.Context, label string) error {
	stmt, err := ConstraintStatement(label)
	if err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, s.sessionConfig())
	defer func() { _ = session.Close(ctx) }()

	result, err := session.Run(ctx, stmt, nil)
	if err == nil {
		_, err = result.Consume(ctx)
	}

	if err != nil {
		if isConstraintExists(err) {
			return fmt.Errorf("%w: %s", metagraph.ErrConstraintExists, label)
		}

		return fmt.Errorf("neo4j: creating constraint: %w", err)
	}

	return nil
}

func isConstraintExists(err error) bool {
	var neoErr *neo4j.Neo4jError
	if !errors.As(err, &neoErr) {
		return false
	}

	for _, code := range constraintExistsCodes {
		if neoErr.Code == code {
			return true
		}
	}

	return false
}

// Begin starts a write transaction on the job session.
func (s *Store) Begin(ctx context.Context) (metagraph.StoreTx, error) {
	tx, err := s.session.BeginTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to begin transaction: %w", err)
	}

	return &Transaction{tx: tx, statements: s.statements}, nil
}

// CountNodes returns the number of label nodes.
func (s *Store) CountNodes(ctx context.Context, label string) (int64, error) {
	stmt, err := CountNodesStatement(label)
	if err != nil {
		return 0, err
	}

	return s.count(ctx, stmt, nil)
}

// CountStale returns the number of label nodes published under another tag.
func (s *Store) CountStale(ctx context.Context, label, tag string) (int64, error) {
	stmt, err := StaleStatement(label, false)
	if err != nil {
		return 0, err
	}

	return s.count(ctx, stmt, map[string]any{"tag": tag})
}

// DeleteStale deletes the label nodes published under another tag along
// with their relationships.
func (s *Store) DeleteStale(ctx context.Context, label, tag string) (int64, error) {
	stmt, err := StaleStatement(label, true)
	if err != nil {
		return 0, err
	}

	return s.count(ctx, stmt, map[string]any{"tag": tag})
}

func (s *Store) count(ctx context.Context, stmt string, params map[string]any) (int64, error) {
	result, err := s.session.Run(ctx, stmt, params)
	if err != nil {
		return 0, fmt.Errorf("neo4j: query execution failed: %w", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("neo4j: failed to collect results: %w", err)
	}

	n, ok := record.Get("count")
	if !ok {
		return 0, fmt.Errorf("%w: no count column", ErrUnexpectedResult)
	}

	count, ok := n.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: count is %T", ErrUnexpectedResult, n)
	}

	return count, nil
}

// Close releases the store connection.
func (s *Store) Close() error {
	ctx := context.Background()

	if s.session != nil {
		err := s.session.Close(ctx)
		if err != nil {
			return fmt.Errorf("neo4j: failed to close session: %w", err)
		}
	}

	if s.driver != nil {
		err := s.driver.Close(ctx)
		if err != nil {
			return fmt.Errorf("neo4j: failed to close driver: %w", err)
		}
	}

	return nil
}

// Transaction wraps a Neo4j transaction to implement metagraph.StoreTx.
type Transaction struct {
	tx         neo4j.ExplicitTransaction
	statements *statementCache
}

// MergeNodes upserts a node batch.
func (t *Transaction) MergeNodes(ctx context.Context, batch *metagraph.NodeBatch) error {
	stmt, err := t.statements.node(batch.Template)
	if err != nil {
		return err
	}

	result, err := t.tx.Run(ctx, stmt, batchParams(batch.Rows))
	if err != nil {
		return fmt.Errorf("neo4j: query execution failed: %w", err)
	}

	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("neo4j: failed to consume results: %w", err)
	}

	return nil
}

// MergeRelationships upserts a relationship batch and returns the indexes of
// the rows whose endpoints matched.
func (t *Transaction) MergeRelationships(ctx context.Context, batch *metagraph.RelationshipBatch) ([]int, error) {
	stmt, err := t.statements.relationship(batch.Template)
	if err != nil {
		return nil, err
	}

	result, err := t.tx.Run(ctx, stmt, batchParams(batch.Rows))
	if err != nil {
		return nil, fmt.Errorf("neo4j: query execution failed: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to collect results: %w", err)
	}

	return matchedRows(records)
}

func batchParams(rows []map[string]any) map[string]any {
	batch := make([]any, len(rows))
	for i, row := range rows {
		batch[i] = row
	}

	return map[string]any{batchParam: batch}
}

func matchedRows(records []*neo4j.Record) ([]int, error) {
	matched := make([]int, 0, len(records))

	for _, record := range records {
		v, ok := record.Get(metagraph.RowIndex)
		if !ok {
			return nil, fmt.Errorf("%w: no %s column", ErrUnexpectedResult, metagraph.RowIndex)
		}

		idx, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T", ErrUnexpectedResult, metagraph.RowIndex, v)
		}

		matched = append(matched, int(idx))
	}

	return matched, nil
}

// Commit commits the transaction.
func (t *Transaction) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback aborts the transaction.
func (t *Transaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// Compile-time interface checks.
var (
	_ metagraph.Store      = (*Store)(nil)
	_ metagraph.StaleStore = (*Store)(nil)
	_ metagraph.StoreTx    = (*Transaction)(nil)
)
