package staged

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rlch/metagraph"
)

// S3API is the subset of the S3 client a stage is read through.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a stage stored under a prefix of an S3 bucket, laid out like
// a local stage directory.
type S3Source struct {
	Client S3API
	Bucket string
	Prefix string
}

var _ Source = (*S3Source)(nil)

// NewS3Source creates an S3Source from configuration. Static credentials are
// used when both keys are set; otherwise the default AWS credential chain
// applies. A custom endpoint switches to path-style addressing for
// S3-compatible stores.
func NewS3Source(ctx context.Context, cfg *metagraph.S3Config) (*S3Source, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, metagraph.NewConfigError("staged.s3.bucket", "bucket is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("staged: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Source{Client: client, Bucket: cfg.Bucket, Prefix: cfg.Prefix}, nil
}

// Files implements Source.
func (s *S3Source) Files(ctx context.Context, kind Kind) ([]File, error) {
	prefix := path.Join(s.Prefix, kind.String()) + "/"
	prefix = strings.TrimPrefix(prefix, "/")

	paginator := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	})

	var files []File

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("staged: listing s3://%s/%s: %w", s.Bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".csv") {
				continue
			}

			files = append(files, File{Kind: kind, Name: path.Base(key), Location: key})
		}
	}

	return files, nil
}

// Open implements Source.
func (s *S3Source) Open(ctx context.Context, f File) (io.ReadCloser, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(f.Location),
	})
	if err != nil {
		return nil, fmt.Errorf("staged: getting s3://%s/%s: %w", s.Bucket, f.Location, err)
	}

	return out.Body, nil
}
