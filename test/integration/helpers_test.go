//go:build integration

package integration_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/viper"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/delta"
	"github.com/amireh/karazeh/internal/hasher"
)

// testEnv is an install root on disk plus an update host serving it.
type testEnv struct {
	HomeDir string // KZH_HOME, holds the saved update check
	RootDir string // install root being updated

	server *httptest.Server
	hasher hasher.Hasher

	mu        sync.Mutex
	resources map[string][]byte
}

// setupTestEnv creates isolated temp directories and an HTTP host. The env
// vars are restored after the test.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	h, err := hasher.New(hasher.SHA256)
	if err != nil {
		t.Fatalf("creating hasher: %v", err)
	}
	env := &testEnv{
		HomeDir:   t.TempDir(),
		RootDir:   t.TempDir(),
		hasher:    h,
		resources: map[string][]byte{},
	}
	t.Setenv("KZH_HOME", env.HomeDir)

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		body, ok := env.resources[r.URL.Path]
		env.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(env.server.Close)
	return env
}

// settings returns session settings rooted at env.RootDir.
func (env *testEnv) settings(t *testing.T) *config.Settings {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set(config.KeyHost, env.server.URL)
	v.Set(config.KeyRootPath, env.RootDir)
	v.Set(config.KeyHasher, hasher.SHA256)
	v.Set(config.KeyRetries, 1)
	v.Set(config.KeyRetryInterval, 0)

	s, err := config.Decode(v)
	if err != nil {
		t.Fatalf("decoding settings: %v", err)
	}
	return s
}

// serve publishes body at path and returns its checksum.
func (env *testEnv) serve(path string, body []byte) string {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.resources[path] = body
	return env.sum(body)
}

func (env *testEnv) sum(body []byte) string {
	return env.hasher.HexDigest(body).Hex
}

// fingerprint returns the version of an identity whose files hold bodies.
func (env *testEnv) fingerprint(bodies ...string) string {
	var all strings.Builder
	for _, b := range bodies {
		all.WriteString(env.sum([]byte(b)))
	}
	return env.sum([]byte(all.String()))
}

// makeDelta encodes the delta turning from into to.
func makeDelta(t *testing.T, from, to string) []byte {
	t.Helper()
	sig, err := delta.ComputeSignature(strings.NewReader(from), 16)
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	var buf bytes.Buffer
	if err := delta.WriteDelta(sig, strings.NewReader(to), &buf); err != nil {
		t.Fatalf("delta: %v", err)
	}
	return buf.Bytes()
}

// writeFile creates a file at the given path with the given content.
func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// snapshot maps every regular file below root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", root, err)
	}
	return files
}

// assertFileContent fails if the file doesn't exist or doesn't hold want.
func assertFileContent(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("reading %s: %v", path, err)
		return
	}
	if string(data) != want {
		t.Errorf("file %s holds %q, want %q", path, string(data), want)
	}
}

// assertFileNotExists fails the test if the file exists.
func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file NOT to exist: %s", path)
	}
}

// assertFileContains fails if the file doesn't exist or doesn't contain substr.
func assertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("reading %s: %v", path, err)
		return
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("file %s does not contain %q.\nContents:\n%s", path, substr, string(data))
	}
}
