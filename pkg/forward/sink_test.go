package forward_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/seqstore/pkg/forward"
	sinktesting "github.com/marmos91/seqstore/pkg/forward/testing"
	"github.com/marmos91/seqstore/pkg/store"
)

// TestMemorySink runs the Sink suite against MemorySink.
func TestMemorySink(t *testing.T) {
	suite := &sinktesting.SinkTestSuite{
		NewSink: func(t *testing.T) forward.Sink {
			return forward.NewMemorySink()
		},
		Fetch: func(t *testing.T, sink forward.Sink, id uint64) ([]byte, map[string]string, bool) {
			u, ok := sink.(*forward.MemorySink).Get(id)
			return u.Payload, u.Attributes, ok
		},
	}
	suite.Run(t)
}

// TestFilesystemSink runs the Sink suite against FilesystemSink.
func TestFilesystemSink(t *testing.T) {
	suite := &sinktesting.SinkTestSuite{
		NewSink: func(t *testing.T) forward.Sink {
			sink, err := forward.NewFilesystemSink(t.TempDir())
			require.NoError(t, err)
			return sink
		},
		Fetch: func(t *testing.T, sink forward.Sink, id uint64) ([]byte, map[string]string, bool) {
			fset := store.Resolve(sink.(*forward.FilesystemSink).Root(), id, true)
			payload, err := os.ReadFile(fset.Zip)
			if err != nil {
				return nil, nil, false
			}
			f, err := os.Open(fset.Meta)
			if err != nil {
				return nil, nil, false
			}
			defer func() { _ = f.Close() }()
			attrs, err := store.ReadAttributes(f)
			require.NoError(t, err)
			return payload, attrs.ToMap(), true
		},
	}
	suite.Run(t)
}

func TestFilesystemSink_RequiresPath(t *testing.T) {
	_, err := forward.NewFilesystemSink("")
	assert.Error(t, err)
}

// fakeS3 is an in-memory PutObject endpoint.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = fakeObject{
		body:        body,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) get(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}

// TestS3Sink runs the Sink suite against S3Sink with a fake client.
func TestS3Sink(t *testing.T) {
	clients := make(map[forward.Sink]*fakeS3)

	suite := &sinktesting.SinkTestSuite{
		NewSink: func(t *testing.T) forward.Sink {
			client := newFakeS3()
			sink, err := forward.NewS3Sink(forward.S3SinkConfig{
				Client:    client,
				Bucket:    "bucket",
				KeyPrefix: "units/",
			})
			require.NoError(t, err)
			clients[sink] = client
			return sink
		},
		Fetch: func(t *testing.T, sink forward.Sink, id uint64) ([]byte, map[string]string, bool) {
			zipKey, metaKey := sink.(*forward.S3Sink).ObjectKeys(id)
			client := clients[sink]
			zipObj, ok := client.get("bucket/" + zipKey)
			if !ok {
				return nil, nil, false
			}
			metaObj, ok := client.get("bucket/" + metaKey)
			if !ok {
				return nil, nil, false
			}
			attrs, err := store.ReadAttributes(bytes.NewReader(metaObj.body))
			require.NoError(t, err)
			return zipObj.body, attrs.ToMap(), true
		},
	}
	suite.Run(t)
}

func TestS3Sink_KeysAndMetadata(t *testing.T) {
	client := newFakeS3()
	sink, err := forward.NewS3Sink(forward.S3SinkConfig{Client: client, Bucket: "b", KeyPrefix: "p/"})
	require.NoError(t, err)

	zipKey, metaKey := sink.ObjectKeys(1000)
	assert.Equal(t, "p/1/001/001000.zip", zipKey)
	assert.Equal(t, "p/1/001/001000.meta", metaKey)

	s := sinktesting.NewTestStore(t)
	unit := sinktesting.CommitUnit(t, s, map[string]string{"x": "y"}, "Feed", "TEST", "Bad Key", "v", "Note", "café")
	require.NoError(t, sink.Put(context.Background(), unit))

	zipKey, _ = sink.ObjectKeys(unit.ID)
	obj, ok := client.get("b/" + zipKey)
	require.True(t, ok)
	assert.Equal(t, "application/zip", obj.contentType)
	assert.Equal(t, "1", obj.metadata["seqstore-id"])
	assert.NotEmpty(t, obj.metadata["seqstore-instance"])
	assert.Equal(t, "TEST", obj.metadata["attr-feed"])
	assert.NotContains(t, obj.metadata, "attr-bad key")
	assert.NotContains(t, obj.metadata, "attr-note", "non-ASCII values stay in the .meta object only")
}

func TestS3Sink_CaseCollidingAttributes(t *testing.T) {
	client := newFakeS3()
	sink, err := forward.NewS3Sink(forward.S3SinkConfig{Client: client, Bucket: "b"})
	require.NoError(t, err)

	s := sinktesting.NewTestStore(t)
	unit := sinktesting.CommitUnit(t, s, map[string]string{"x": "y"},
		"Feed", "TEST", "feed", "other", "Route", "north")
	require.NoError(t, sink.Put(context.Background(), unit))

	zipKey, metaKey := sink.ObjectKeys(unit.ID)
	obj, ok := client.get("b/" + zipKey)
	require.True(t, ok)
	assert.NotContains(t, obj.metadata, "attr-feed", "neither colliding value may win")
	assert.Equal(t, "north", obj.metadata["attr-route"])

	// Both values survive in the attributes object.
	metaObj, ok := client.get("b/" + metaKey)
	require.True(t, ok)
	attrs, err := store.ReadAttributes(bytes.NewReader(metaObj.body))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Feed": "TEST", "feed": "other", "Route": "north"}, attrs.ToMap())
}

func TestS3Sink_RequiresBucketAndClient(t *testing.T) {
	_, err := forward.NewS3Sink(forward.S3SinkConfig{Bucket: "b"})
	assert.Error(t, err)
	_, err = forward.NewS3Sink(forward.S3SinkConfig{Client: newFakeS3()})
	assert.Error(t, err)
}
