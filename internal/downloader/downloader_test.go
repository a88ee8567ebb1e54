package downloader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/files"
	"github.com/amireh/karazeh/internal/hasher"
	"github.com/amireh/karazeh/internal/metrics"
)

const helloMD5 = "8b1a9953c4611296a827abf8c47804d7"

type fixture struct {
	server *httptest.Server
	hits   atomic.Int32
	fs     afero.Fs
}

func newFixture(t *testing.T, handler func(hit int32, w http.ResponseWriter, r *http.Request)) *fixture {
	t.Helper()
	f := &fixture{fs: afero.NewMemMapFs()}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(f.hits.Add(1), w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) downloader(t *testing.T, opts ...Option) *Downloader {
	t.Helper()
	h, err := hasher.New(hasher.MD5, hasher.WithFs(f.fs))
	require.NoError(t, err)
	opts = append([]Option{WithHTTPClient(f.server.Client()), WithRetryInterval(0)}, opts...)
	return New(f.server.URL, h, files.New(f.fs), opts...)
}

func hello(_ int32, w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("Hello"))
}

func TestFetchFileFirstTry(t *testing.T) {
	f := newFixture(t, hello)
	d := f.downloader(t, WithRetries(3))

	dl := &Download{URL: "/hello.txt", Path: "/cache/hello.txt", Checksum: helloMD5, Size: 5}
	require.NoError(t, f.fs.MkdirAll("/cache", 0755))
	require.NoError(t, d.FetchFile(context.Background(), dl))

	assert.Equal(t, 0, dl.Tally)
	assert.Equal(t, int64(5), dl.Bytes)
	assert.Equal(t, int32(1), f.hits.Load())

	data, err := afero.ReadFile(f.fs, "/cache/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(data))
}

func TestFetchFileWrongChecksumExhaustsRetries(t *testing.T) {
	f := newFixture(t, hello)
	d := f.downloader(t, WithRetries(3))

	dl := &Download{URL: "/hello.txt", Path: "/hello.txt", Checksum: "0000"}
	err := d.FetchFile(context.Background(), dl)

	require.Error(t, err)
	assert.Equal(t, appErrors.CodeFileIntegrityMismatch, appErrors.CodeOf(err))
	assert.Equal(t, 3, dl.Tally)
	assert.Equal(t, int32(4), f.hits.Load())
}

func TestFetchFileSizeMismatch(t *testing.T) {
	f := newFixture(t, hello)
	d := f.downloader(t, WithRetries(1))

	dl := &Download{URL: "/hello.txt", Path: "/hello.txt", Checksum: helloMD5, Size: 6}
	err := d.FetchFile(context.Background(), dl)

	assert.True(t, appErrors.IsCode(err, appErrors.CodeFileIntegrityMismatch))
	assert.Equal(t, 1, dl.Tally)
}

func TestFetchFileRecoversFromServerError(t *testing.T) {
	f := newFixture(t, func(hit int32, w http.ResponseWriter, r *http.Request) {
		if hit == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("Hello"))
	})
	d := f.downloader(t)

	dl := &Download{URL: "/hello.txt", Path: "/hello.txt", Checksum: helloMD5}
	require.NoError(t, d.FetchFile(context.Background(), dl))
	assert.Equal(t, 1, dl.Tally)
}

func TestFetchFileTransportFailure(t *testing.T) {
	f := newFixture(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	d := f.downloader(t)

	dl := &Download{URL: "/missing.bin", Path: "/missing.bin", Checksum: helloMD5}
	err := d.FetchFile(context.Background(), dl)

	assert.True(t, appErrors.IsCode(err, appErrors.CodeResourceUnavailable))
	assert.Equal(t, DefaultRetries, dl.Tally)
	assert.Equal(t, int32(DefaultRetries+1), f.hits.Load())
}

func TestFetchFileUnwritableDestination(t *testing.T) {
	f := newFixture(t, hello)
	f.fs = afero.NewReadOnlyFs(afero.NewMemMapFs())
	d := f.downloader(t, WithRetries(3))

	dl := &Download{URL: "/hello.txt", Path: "/hello.txt", Checksum: helloMD5}
	err := d.FetchFile(context.Background(), dl)

	assert.True(t, appErrors.IsCode(err, appErrors.CodeUnauthorized))
	assert.Equal(t, 0, dl.Tally)
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestFetchFileCancelled(t *testing.T) {
	f := newFixture(t, hello)
	d := f.downloader(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.FetchFile(ctx, &Download{URL: "/hello.txt", Path: "/hello.txt", Checksum: helloMD5})
	assert.True(t, appErrors.IsCode(err, appErrors.CodeResourceUnavailable))
}

func TestFetchFileRecordsMetrics(t *testing.T) {
	f := newFixture(t, func(hit int32, w http.ResponseWriter, _ *http.Request) {
		if hit == 1 {
			w.Write([]byte("Jello"))
			return
		}
		w.Write([]byte("Hello"))
	})
	m := metrics.New()
	d := f.downloader(t, WithMetrics(m))

	require.NoError(t, d.FetchFile(context.Background(), &Download{URL: "/hello.txt", Path: "/hello.txt", Checksum: helloMD5}))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["karazeh_download_retries_total"])
	assert.True(t, names["karazeh_download_bytes_total"])
}

func TestFetchToBuffer(t *testing.T) {
	f := newFixture(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/version.json", r.URL.Path)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"releases":[]}`))
	})
	d := f.downloader(t)

	var buf bytes.Buffer
	require.NoError(t, d.Fetch(context.Background(), "version.json", &buf))
	assert.Equal(t, `{"releases":[]}`, buf.String())
}

func TestFetchProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 3*chunkSize)
	f := newFixture(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	})

	var last, total int64
	d := f.downloader(t, WithProgress(func(_ string, done, size int64) {
		last, total = done, size
	}))

	var buf bytes.Buffer
	require.NoError(t, d.Fetch(context.Background(), "/blob", &buf))
	assert.Equal(t, int64(len(payload)), last)
	assert.Equal(t, int64(len(payload)), total)
}

func TestResolveURL(t *testing.T) {
	d := New("http://localhost:9393/", nil, nil)

	tests := []struct {
		in, want string
	}{
		{"/version.json", "http://localhost:9393/version.json"},
		{"releases/1/file.bin", "http://localhost:9393/releases/1/file.bin"},
		{"https://cdn.example.com/file.bin", "https://cdn.example.com/file.bin"},
		{"http://other:8080/x", "http://other:8080/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.ResolveURL(tt.in), tt.in)
	}
}

func TestRetriesOption(t *testing.T) {
	d := New("http://host", nil, nil)
	assert.Equal(t, DefaultRetries, d.Retries())

	d = New("http://host", nil, nil, WithRetries(5))
	assert.Equal(t, 5, d.Retries())

	d = New("http://host", nil, nil, WithRetries(-1))
	assert.Equal(t, DefaultRetries, d.Retries())
}
