package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rootregistry "github.com/marmos91/seqstore/pkg/registry"
)

func TestStoreMetrics_Commits(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newStoreMetrics(reg)

	m.ObserveCommit(2048, 10*time.Millisecond, true)
	m.ObserveCommit(4096, 20*time.Millisecond, true)
	m.ObserveCommit(0, time.Millisecond, false)
	m.ObserveDiscard()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commitsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitsTotal.WithLabelValues("burned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discardsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.commitBytes))
}

func TestStoreMetrics_PublishAndRecovery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newStoreMetrics(reg)

	m.RecordRecovery(10, 1)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.recoveredID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveryRemoved))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.publishedID))

	m.ObservePublish(11, time.Millisecond)
	assert.Equal(t, 11.0, testutil.ToFloat64(m.publishedID))

	m.ObserveDirRetry()
	m.RecordDelete()
	m.RecordDelete()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dirRetriesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.deletesTotal))
}

func TestForwardMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newForwardMetrics(reg)

	m.ObserveForward("s3", 100, time.Millisecond, true)
	m.ObserveForward("s3", 50, time.Millisecond, false)
	m.ObserveRetry("s3")
	m.ObserveSkip()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues("s3", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsTotal.WithLabelValues("s3", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytesTotal.WithLabelValues("s3")), "failed puts add no bytes")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues("s3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedTotal))
}

func TestConstructors_DisabledReturnNil(t *testing.T) {
	if IsEnabled() {
		t.Skip("global registry already initialized")
	}
	assert.Nil(t, NewStoreMetrics())
	assert.Nil(t, NewForwardMetrics())
	assert.NoError(t, RegisterRoots(rootregistry.NewRegistry()))
}

func TestRootsCollector(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0", "001.zip"), []byte("zipdata"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0", "001.meta"), []byte("a: b\n"), 0o644))

	roots := rootregistry.NewRegistry()
	require.NoError(t, roots.Register("store", root))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewRootsCollector(roots)))

	expected := `
# HELP seqstore_root_units Number of payload packages under the root
# TYPE seqstore_root_units gauge
seqstore_root_units{path="` + filepath.Clean(root) + `",root="store"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "seqstore_root_units"))
	assert.Equal(t, 4, testutil.CollectAndCount(NewRootsCollector(roots)))
}

func TestServer_Endpoints(t *testing.T) {
	srv := NewServer(ServerConfig{Port: 19090, Health: func() uint64 { return 42 }})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok last_published=42\n", string(body))

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/healthz")

	resp, err = http.Get(ts.URL + "/missing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Stop before Start is harmless and idempotent.
	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
}
