package forward

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/marmos91/seqstore/internal/logger"
	"github.com/marmos91/seqstore/pkg/store"
)

// S3PutAPI is the subset of *s3.Client used by S3Sink.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3SinkConfig configures an S3Sink.
type S3SinkConfig struct {
	// Client is an initialized S3 client.
	Client S3PutAPI

	// Bucket receives the objects.
	Bucket string

	// KeyPrefix is prepended to every object key (e.g. "seqstore/").
	KeyPrefix string
}

// S3Sink uploads each unit as two objects, "<prefix><depth>/.../<id>.zip" and
// the matching ".meta", mirroring the store layout.
//
// Attributes whose name and value are valid in HTTP headers, and whose
// lowercased name is unique, are also copied into the .zip object's user
// metadata, so the payload can be routed without downloading the .meta
// object. PutObject overwrites, which makes Put
// idempotent.
type S3Sink struct {
	client    S3PutAPI
	bucket    string
	keyPrefix string

	// instance identifies this forwarder process in object metadata.
	instance string
}

// NewS3Sink creates an S3 sink.
func NewS3Sink(cfg S3SinkConfig) (*S3Sink, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 sink: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 sink: bucket is required")
	}

	s := &S3Sink{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		instance:  uuid.NewString(),
	}
	logger.Debug("S3 sink created: bucket=%s, prefix=%s, instance=%s", s.bucket, s.keyPrefix, s.instance)
	return s, nil
}

func (s *S3Sink) Name() string { return "s3" }

// ObjectKeys returns the keys a unit is uploaded to.
func (s *S3Sink) ObjectKeys(id uint64) (zipKey, metaKey string) {
	fset := store.Resolve("", id, true)
	stem := strings.TrimSuffix(filepath.ToSlash(fset.Zip), store.ZipExt)
	return s.keyPrefix + stem + store.ZipExt, s.keyPrefix + stem + store.MetaExt
}

// Put uploads the payload, then the attributes.
func (s *S3Sink) Put(ctx context.Context, unit Unit) error {
	zipKey, metaKey := s.ObjectKeys(unit.ID)

	meta := map[string]string{
		"seqstore-id":       strconv.FormatUint(unit.ID, 10),
		"seqstore-instance": s.instance,
	}
	for k, v := range attributeHeaders(unit.ID, unit.Attributes) {
		meta[k] = v
	}

	if err := s.putFile(ctx, unit.ZipPath, zipKey, "application/zip", meta); err != nil {
		return err
	}
	return s.putFile(ctx, unit.MetaPath, metaKey, "application/yaml", map[string]string{
		"seqstore-id": meta["seqstore-id"],
	})
}

func (s *S3Sink) putFile(ctx context.Context, src, key, contentType string, meta map[string]string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
		Metadata:      meta,
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Sink) Close() error { return nil }

// attributeHeaders maps attributes to "attr-<lowercased name>" user metadata.
// S3 lowercases metadata names, so attributes whose names differ only in case
// would overwrite each other: all of them are left out, and the .meta object
// remains the only copy.
func attributeHeaders(id uint64, attrs *store.AttributeMap) map[string]string {
	keys := attrs.Keys()
	owners := make(map[string]int, len(keys))
	for _, k := range keys {
		owners[strings.ToLower(k)]++
	}

	headers := make(map[string]string, len(keys))
	for _, k := range keys {
		v, _ := attrs.Get(k)
		if !headerSafe(k, v) {
			continue
		}
		name := "attr-" + strings.ToLower(k)
		if owners[strings.ToLower(k)] > 1 {
			logger.Debug("S3 sink: store id %d: attribute %q collides with another name as %s, not copied to metadata",
				id, k, name)
			continue
		}
		headers[name] = v
	}
	return headers
}

// headerSafe reports whether an attribute can travel as S3 user metadata:
// a token-character name and a printable ASCII value.
func headerSafe(k, v string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	for _, r := range v {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}
