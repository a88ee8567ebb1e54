package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.DownloadAttempt(ResultMismatch, 10)
	m.DownloadRetry()
	m.DownloadAttempt(ResultOK, 32)
	m.OperationPhase("create", "stage", "ok")
	m.OperationPhase("create", "stage", "ok")
	m.Release(ReleaseApplied)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloads.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloads.WithLabelValues(ResultMismatch)))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.downloadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadRetries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "stage", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.releases.WithLabelValues(ReleaseApplied)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.DownloadAttempt(ResultOK, 1)
		m.DownloadRetry()
		m.OperationPhase("delete", "deploy", "ok")
		m.Release(ReleaseRolledBack)
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "unused.prom")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Release(ReleaseRolledBack)

	path := filepath.Join(t.TempDir(), "karazeh.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `karazeh_releases_total{result="rolled_back"} 1`)
}
