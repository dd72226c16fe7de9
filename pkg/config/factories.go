package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/seqstore/internal/logger"
	"github.com/marmos91/seqstore/pkg/forward"
	"github.com/marmos91/seqstore/pkg/gc"
	"github.com/marmos91/seqstore/pkg/registry"
	"github.com/marmos91/seqstore/pkg/store"
)

// Names of the roots every registry built by CreateRegistry carries.
const (
	RootTemp  = "temp"
	RootStore = "store"
)

// OpenStore opens the store described by cfg.
//
// Parameters:
//   - ctx: Context for the startup scan
//   - cfg: Store configuration
//   - m: Store metrics (nil for no-op)
//
// Returns:
//   - *store.Store: Opened store, recovered and ready for sessions
//   - error: Configuration, volume or recovery error
func OpenStore(ctx context.Context, cfg *StoreConfig, m store.Metrics) (*store.Store, error) {
	s, err := store.Open(ctx, store.Config{
		TempRoot:      cfg.TempPath(),
		StoreRoot:     cfg.StorePath(),
		MaxDirRetries: cfg.MaxDirRetries,
		RetryBackoff:  cfg.RetryBackoff,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// ForwarderOptions converts the forwarder section into forward.Config.
func ForwarderOptions(cfg *ForwarderConfig, m forward.Metrics) forward.Config {
	return forward.Config{
		RateLimit:          cfg.RateLimit,
		Burst:              cfg.Burst,
		DeleteAfterForward: cfg.DeleteAfterForward,
		MaxAttempts:        cfg.MaxAttempts,
		RetryBackoff:       cfg.RetryBackoff,
		Metrics:            m,
	}
}

// CreateCollector builds the retention collector. horizon is the forwarder
// cursor, or nil when no forwarder runs.
func CreateCollector(cfg *RetentionConfig, source gc.Source, horizon gc.Horizon) *gc.Collector {
	return gc.NewCollector(source, horizon, gc.Config{
		Enabled:   cfg.Enabled,
		Interval:  cfg.Interval,
		MaxAge:    cfg.MaxAge,
		BatchSize: cfg.BatchSize,
		DryRun:    cfg.DryRun,
	})
}

// CreateRegistry builds a registry holding the temp and store roots plus
// every configured extra root.
func CreateRegistry(cfg *Config) (*registry.Registry, error) {
	reg := registry.NewRegistry()
	if err := reg.Register(RootTemp, cfg.Store.TempPath()); err != nil {
		return nil, err
	}
	if err := reg.Register(RootStore, cfg.Store.StorePath()); err != nil {
		return nil, err
	}
	for i, root := range cfg.Registry.Roots {
		if err := reg.Register(root.Name, root.Path); err != nil {
			return nil, fmt.Errorf("registry.roots[%d]: %w", i, err)
		}
	}
	return reg, nil
}

// CreateSink creates a forwarder sink based on configuration.
//
// This factory function uses the Type field to determine which sink
// implementation to create, then decodes the type-specific configuration from
// the corresponding map and passes it to the sink's constructor.
//
// Supported types:
//   - "filesystem": Copies units into another directory tree
//   - "s3": Uploads units to Amazon S3 or compatible storage
//   - "memory": Keeps units in memory (testing only)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Sink configuration
//
// Returns:
//   - forward.Sink: Initialized sink
//   - error: Configuration or initialization error
func CreateSink(ctx context.Context, cfg *SinkConfig) (forward.Sink, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemSink(ctx, cfg.Filesystem)
	case "s3":
		return createS3Sink(ctx, cfg.S3)
	case "memory":
		return forward.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown sink type: %q", cfg.Type)
	}
}

// createFilesystemSink creates a filesystem sink.
func createFilesystemSink(ctx context.Context, options map[string]any) (forward.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type FilesystemSinkConfig struct {
		Path string `mapstructure:"path"`
	}

	var sinkCfg FilesystemSinkConfig
	if err := mapstructure.Decode(options, &sinkCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem sink config: %w", err)
	}

	if sinkCfg.Path == "" {
		return nil, fmt.Errorf("filesystem sink: path is required")
	}

	sink, err := forward.NewFilesystemSink(sinkCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem sink: %w", err)
	}
	return sink, nil
}

// S3SinkOptions is the decoded form of the forwarder.sink.s3 section.
type S3SinkOptions struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// DecodeS3SinkOptions decodes and checks an S3 sink section.
func DecodeS3SinkOptions(options map[string]any) (S3SinkOptions, error) {
	var opts S3SinkOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return opts, fmt.Errorf("failed to decode S3 sink config: %w", err)
	}

	if opts.Bucket == "" {
		return opts, fmt.Errorf("S3 sink: bucket is required")
	}
	if opts.Region == "" {
		return opts, fmt.Errorf("S3 sink: region is required")
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 10
	}
	return opts, nil
}

// createS3Sink creates an S3 sink.
func createS3Sink(ctx context.Context, options map[string]any) (forward.Sink, error) {
	opts, err := DecodeS3SinkOptions(options)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(opts.Region),
	}

	// Set credentials if provided, otherwise use default credential chain
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Retry transient S3 failures (502, 503, timeouts) inside the SDK before
	// the forwarder's own retry loop sees them
	maxRetries := opts.MaxRetries
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint (MinIO, Localstack, ...) with path-style addressing
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Sink
	// ========================================================================

	sink, err := forward.NewS3Sink(forward.S3SinkConfig{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 sink: %w", err)
	}

	logger.Info("S3 sink initialized: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)

	return sink, nil
}

// CreateCursor creates a forwarder cursor based on configuration.
//
// Supported types:
//   - "memory": Progress is lost on restart (units are forwarded again)
//   - "badger": Progress is persisted in BadgerDB
func CreateCursor(ctx context.Context, cfg *CursorConfig) (forward.Cursor, error) {
	switch cfg.Type {
	case "memory":
		return forward.NewMemoryCursor(0), nil
	case "badger":
		return createBadgerCursor(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown cursor type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerCursor creates a BadgerDB-backed cursor.
func createBadgerCursor(ctx context.Context, options map[string]any) (forward.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type BadgerCursorOptions struct {
		DBPath   string `mapstructure:"db_path"`
		Name     string `mapstructure:"name"`
		InMemory bool   `mapstructure:"in_memory"`
	}

	var opts BadgerCursorOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger cursor options: %w", err)
	}

	if opts.DBPath == "" && !opts.InMemory {
		return nil, fmt.Errorf("badger cursor: db_path is required")
	}

	cursor, err := forward.NewBadgerCursor(ctx, forward.BadgerCursorConfig{
		DBPath:   opts.DBPath,
		Name:     opts.Name,
		InMemory: opts.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger cursor: %w", err)
	}
	return cursor, nil
}
