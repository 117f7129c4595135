package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/cubbyhole/cubby/pkg/objectstore"
	objectmemory "github.com/cubbyhole/cubby/pkg/objectstore/memory"
	objects3 "github.com/cubbyhole/cubby/pkg/objectstore/s3"
	"github.com/cubbyhole/cubby/pkg/vfs"
	"github.com/cubbyhole/cubby/pkg/vfs/badgerstore"
	"github.com/cubbyhole/cubby/pkg/vfs/memory"
)

// Stores bundles the entry and access code repositories produced by the
// metadata factory, plus whatever needs closing at shutdown.
type Stores struct {
	Entries     vfs.EntryStore
	AccessCodes vfs.AccessCodeStore

	closer func() error
}

// Close releases the underlying store resources.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// badgerYAMLConfig represents Badger configuration loaded from YAML files.
type badgerYAMLConfig struct {
	Path             string `mapstructure:"path"`
	InMemory         bool   `mapstructure:"in_memory"`
	BlockCacheSizeMB int64  `mapstructure:"block_cache_size_mb"`
}

// s3YAMLConfig represents S3 configuration loaded from YAML files.
type s3YAMLConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// CreateMetadataStores creates the entry and access code stores selected by
// the configuration.
func CreateMetadataStores(ctx context.Context, cfg MetadataConfig) (*Stores, error) {
	switch cfg.Type {
	case "memory":
		log.Info().Msg("using in-memory metadata store")
		return &Stores{
			Entries:     memory.NewEntryStore(),
			AccessCodes: memory.NewAccessCodeStore(),
		}, nil

	case "badger":
		var badgerCfg badgerYAMLConfig
		if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
			return nil, fmt.Errorf("invalid badger config: %w", err)
		}

		store, err := badgerstore.Open(ctx, badgerstore.Config{
			Path:             badgerCfg.Path,
			InMemory:         badgerCfg.InMemory,
			BlockCacheSizeMB: badgerCfg.BlockCacheSizeMB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger database: %w", err)
		}

		return &Stores{
			Entries:     store.Entries(),
			AccessCodes: store.AccessCodes(),
			closer:      store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Type)
	}
}

// CreateObjectStore creates the byte store selected by the configuration.
func CreateObjectStore(ctx context.Context, cfg ObjectStoreConfig) (objectstore.ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		log.Info().Msg("using in-memory object store")
		return objectmemory.New(), nil

	case "s3":
		var s3Cfg s3YAMLConfig
		if err := mapstructure.Decode(cfg.S3, &s3Cfg); err != nil {
			return nil, fmt.Errorf("invalid S3 config: %w", err)
		}
		if s3Cfg.Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required")
		}
		if s3Cfg.Region == "" {
			return nil, fmt.Errorf("S3 region is required")
		}

		client, err := newS3Client(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}

		store, err := objects3.New(ctx, objects3.Config{
			Client: client,
			Bucket: s3Cfg.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 object store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown object store type: %q", cfg.Type)
	}
}

// newS3Client builds an S3 client from YAML configuration, supporting
// custom endpoints (MinIO, Localstack) and static credentials.
func newS3Client(ctx context.Context, cfg s3YAMLConfig) (*awss3.Client, error) {
	configOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsconfig.WithCredentialsProvider(credProvider))
	}

	// Retry transient errors (502, 503, timeouts) more aggressively than
	// the AWS default of 3 attempts
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsconfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Path-style addressing for compatibility with MinIO/Localstack
		if cfg.ForcePathStyle || cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return client, nil
}
