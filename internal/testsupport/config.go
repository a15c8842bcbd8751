package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"assetmirror/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The original root and state directory are created; mirror roots are only
// configured through options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OriginalRoot = filepath.Join(base, "original")
	cfgVal.Paths.CatalogIndex = filepath.Join(base, "original", "index.csv")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.MetadataDir = filepath.Join(base, "metadata")
	cfgVal.Ledger.Path = filepath.Join(base, "state", "ledger.db")
	cfgVal.Fetch.RetryBaseDelayMS = 1
	cfgVal.Fetch.RetryMaxDelayMS = 5
	cfgVal.Mirror.Workers = 1

	for _, dir := range []string{cfgVal.Paths.OriginalRoot, cfgVal.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithMirrorRoots configures a root under the temp base for each backend
// tag given (cdn, ipfs, sia).
func WithMirrorRoots(backends ...string) ConfigOption {
	return func(b *configBuilder) {
		for _, backend := range backends {
			root := filepath.Join(b.baseDir, backend)
			switch backend {
			case "cdn":
				b.cfg.Backends.CDNRoot = root
			case "ipfs":
				b.cfg.Backends.IPFSRoot = root
			case "sia":
				b.cfg.Backends.SiaRoot = root
			default:
				b.t.Fatalf("unknown backend %q", backend)
			}
		}
	}
}

// WithGateways points the Sia portal and IPFS gateway at baseURL, which must
// end with a slash.
func WithGateways(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backends.SiaPortal = baseURL + "sia/"
		b.cfg.Backends.IPFSGateway = baseURL + "ipfs/"
	}
}

// WithCatchAll sets the catch-all backend.
func WithCatchAll(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backends.CatchAll = backend
	}
}

// WithLeafPolicy sets mirror.leaf_mismatch_policy.
func WithLeafPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mirror.LeafMismatchPolicy = policy
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ipfs is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ipfs"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OriginalRoot)
}
