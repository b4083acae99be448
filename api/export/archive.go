package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/calldash/api/leads"
)

const (
	DefaultRegion = "us-east-1"
	DefaultPrefix = "exports/"

	keyTimeLayout = "2006-01-02T15-04-05Z"
)

type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the default credential chain. EndpointURL
// is optional and switches to path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, region, endpointURL string) (*s3.Client, error) {
	if region == "" {
		region = DefaultRegion
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if endpointURL != "" {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(endpointURL)
		})
	}
	return s3.NewFromConfig(awsCfg, opts...), nil
}

type ArchiverConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Client Uploader
	Bucket string
	Prefix string
}

func (cfg *ArchiverConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return nil
}

// Archiver uploads CSV exports to S3.
type Archiver struct {
	log *slog.Logger
	cfg ArchiverConfig
}

func NewArchiver(cfg ArchiverConfig) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Archiver{log: cfg.Logger, cfg: cfg}, nil
}

// Archive uploads records as <prefix><timestamp>.csv and returns the object key.
func (a *Archiver) Archive(ctx context.Context, records []leads.Record) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return "", err
	}

	key := a.cfg.Prefix + a.cfg.Clock.Now().UTC().Format(keyTimeLayout) + ".csv"
	_, err := a.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	a.log.Info("export: archived snapshot", "bucket", a.cfg.Bucket, "key", key, "records", len(records))
	return key, nil
}
