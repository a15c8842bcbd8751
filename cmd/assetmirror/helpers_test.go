package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"assetmirror/internal/contenthash"
	"assetmirror/internal/descriptor"
	"assetmirror/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	original   string
	cdnRoot    string
	stateDir   string
	configPath string
	server     *httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  int
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("ASSETMIRROR_ORIGINAL_ROOT", "")
	t.Setenv("ASSETMIRROR_POLICY_ID", "")

	env := &cliTestEnv{
		baseDir:  base,
		original: filepath.Join(base, "original"),
		cdnRoot:  filepath.Join(base, "cdn"),
		stateDir: filepath.Join(base, "state"),
		files:    make(map[string][]byte),
	}
	if err := os.MkdirAll(env.original, 0o755); err != nil {
		t.Fatalf("mkdir original: %v", err)
	}
	env.server = httptest.NewServer(http.HandlerFunc(env.handle))
	t.Cleanup(env.server.Close)

	env.configPath = filepath.Join(base, "config.toml")
	writeTestConfig(t, env.configPath, env)
	return env
}

func (e *cliTestEnv) handle(rw http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	e.hits++
	data, ok := e.files[r.URL.Path]
	e.mu.Unlock()
	if !ok {
		http.NotFound(rw, r)
		return
	}
	_, _ = rw.Write(data)
}

func (e *cliTestEnv) requests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hits
}

// serveIPFS publishes data behind ipfs://<path>.
func (e *cliTestEnv) serveIPFS(path string, data []byte) string {
	e.mu.Lock()
	e.files["/ipfs/"+path] = data
	e.mu.Unlock()
	return "ipfs://" + path
}

// addEntry writes the descriptor documents for id into the original store,
// serves every resource from the fake gateway and places the card in the
// original store's resource directory.
func (e *cliTestEnv) addEntry(t *testing.T, id, name string, card []byte) {
	t.Helper()

	cardHash := unixfsHash(t, card)
	cardLocator := e.serveIPFS(cardHash, card)
	extended := testsupport.ExtendedDocument(t, name,
		testsupport.Resource(descriptor.KindCard, 0, cardHash, cardLocator))
	extLocator := e.serveIPFS("ext-"+id, extended)
	image := e.serveIPFS("thumb-"+id+"/thumbnail.png", []byte("thumbnail of "+id))

	pointer := testsupport.PointerDocument(t, id, name, image,
		testsupport.Resource(descriptor.KindExtendedMetadata, 0, unixfsHash(t, extended), extLocator))
	testsupport.WriteEntryDocuments(t, e.original, id, pointer, extended)
	testsupport.WriteBytes(t, filepath.Join(e.original, id, descriptor.ResourceDir, descriptor.FileCardLow), card)
}

func (e *cliTestEnv) writeCatalog(t *testing.T, rows ...[2]string) {
	t.Helper()
	testsupport.WriteCatalog(t, filepath.Join(e.original, "index.csv"), rows...)
}

func unixfsHash(t *testing.T, data []byte) string {
	t.Helper()
	sum, err := contenthash.NewUnixFS(0).Sum(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	return sum
}

func writeTestConfig(t *testing.T, path string, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
original_root = %q
state_dir = %q

[backends]
sia_portal = %q
ipfs_gateway = %q
cdn_root = %q
catch_all = "cdn"

[fetch]
timeout_seconds = 5
retries = 1
retry_base_delay_ms = 1
retry_max_delay_ms = 5

[mirror]
workers = 2

[ledger]
enabled = true
path = %q

[logging]
level = "error"
`,
		env.original,
		env.stateDir,
		env.server.URL+"/sia/",
		env.server.URL+"/ipfs/",
		env.cdnRoot,
		filepath.Join(env.stateDir, "ledger.db"),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendConfig(t *testing.T, path, extra string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(extra); err != nil {
		t.Fatalf("append config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
