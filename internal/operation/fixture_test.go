package operation

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/delta"
	"github.com/amireh/karazeh/internal/downloader"
	"github.com/amireh/karazeh/internal/files"
	"github.com/amireh/karazeh/internal/hasher"
)

const root = "/app"

type fixture struct {
	fs     afero.Fs
	cfg    *config.Config
	server *httptest.Server
	hits   atomic.Int32

	mu        sync.Mutex
	resources map[string][]byte
}

func newFixture(t *testing.T, opts ...files.Option) *fixture {
	t.Helper()
	f := &fixture{
		fs:        afero.NewMemMapFs(),
		resources: map[string][]byte{},
	}
	require.NoError(t, f.fs.MkdirAll(root, 0755))

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.mu.Lock()
		data, ok := f.resources[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(f.server.Close)

	h, err := hasher.New(hasher.MD5, hasher.WithFs(f.fs))
	require.NoError(t, err)
	fm := files.New(f.fs, opts...)

	f.cfg = &config.Config{
		Host:      f.server.URL,
		RootPath:  root,
		CachePath: filepath.Join(root, ".kzh", "cache"),
		Workers:   1,
		Hasher:    h,
		Files:     fm,
		Downloader: downloader.New(f.server.URL, h, fm,
			downloader.WithHTTPClient(f.server.Client()),
			downloader.WithRetries(0),
			downloader.WithRetryInterval(0),
		),
		Encoder: delta.NewEncoder(f.fs),
		Logger:  zap.NewNop(),
	}
	return f
}

// serve publishes data under path and returns its checksum.
func (f *fixture) serve(path string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[path] = data
	return f.digest(data)
}

func (f *fixture) digest(data []byte) string {
	return f.cfg.Hasher.HexDigest(data).Hex
}

func (f *fixture) write(t *testing.T, rel string, data []byte, mode os.FileMode) {
	t.Helper()
	path := f.cfg.RootFile(rel)
	require.NoError(t, f.fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(f.fs, path, data, mode))
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) exists(path string) bool {
	_, err := f.fs.Stat(path)
	return err == nil
}

func makeDelta(t *testing.T, basis, target []byte) []byte {
	t.Helper()
	sig, err := delta.ComputeSignature(bytes.NewReader(basis), 4)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, delta.WriteDelta(sig, bytes.NewReader(target), &buf))
	return buf.Bytes()
}
