package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the original store, catalog index and local state locations.
type Paths struct {
	OriginalRoot string `toml:"original_root"`
	CatalogIndex string `toml:"catalog_index"`
	StateDir     string `toml:"state_dir"`
	MetadataDir  string `toml:"metadata_dir"`
}

// Backends contains the mirror roots and the base URLs that protocol
// locators are rewritten onto.
type Backends struct {
	SiaPortal   string `toml:"sia_portal"`
	IPFSGateway string `toml:"ipfs_gateway"`
	CDNRoot     string `toml:"cdn_root"`
	IPFSRoot    string `toml:"ipfs_root"`
	SiaRoot     string `toml:"sia_root"`
	// CatchAll names the backend whose root receives locators whose own
	// backend has no root configured. Empty means such locators are skipped.
	CatchAll string `toml:"catch_all"`
}

// Descriptor contains descriptor document naming.
type Descriptor struct {
	PolicyID     string `toml:"policy_id"`
	PointerFile  string `toml:"pointer_file"`
	ExtendedFile string `toml:"extended_file"`
	ThumbnailExt string `toml:"thumbnail_ext"`
}

// Fetch contains outbound HTTP limits.
type Fetch struct {
	TimeoutSeconds        int     `toml:"timeout_seconds"`
	Retries               int     `toml:"retries"`
	RetryBaseDelayMS      int     `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS       int     `toml:"retry_max_delay_ms"`
	RequestsPerSecond     float64 `toml:"requests_per_second"`
	Burst                 int     `toml:"burst"`
	PerBackendConcurrency int     `toml:"per_backend_concurrency"`
	UserAgent             string  `toml:"user_agent"`
}

// Mirror contains mirror engine scheduling and failure policy.
type Mirror struct {
	Workers            int    `toml:"workers"`
	LeafMismatchPolicy string `toml:"leaf_mismatch_policy"`
}

// Hasher selects the content hasher implementation.
type Hasher struct {
	Mode       string `toml:"mode"`
	IPFSBinary string `toml:"ipfs_binary"`
	ChunkSize  int    `toml:"chunk_size"`
}

// ImageSpec declares the expected dimensions and size bounds of an image.
type ImageSpec struct {
	Width        int   `toml:"width"`
	Height       int   `toml:"height"`
	MinSizeBytes int64 `toml:"min_size_bytes"`
	MaxSizeBytes int64 `toml:"max_size_bytes"`
}

// Verify contains verification sweep settings.
type Verify struct {
	EmptyThresholdBytes int64                `toml:"empty_threshold_bytes"`
	CheckHashes         bool                 `toml:"check_hashes"`
	Images              map[string]ImageSpec `toml:"images"`
}

// Ledger contains run history storage settings.
type Ledger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notify contains run-completion notification settings.
type Notify struct {
	// NtfyTopic is the full topic URL notices are posted to. Empty disables them.
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for assetmirror.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Backends   Backends   `toml:"backends"`
	Descriptor Descriptor `toml:"descriptor"`
	Fetch      Fetch      `toml:"fetch"`
	Mirror     Mirror     `toml:"mirror"`
	Hasher     Hasher     `toml:"hasher"`
	Verify     Verify     `toml:"verify"`
	Ledger     Ledger     `toml:"ledger"`
	Notify     Notify     `toml:"notify"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/assetmirror/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("assetmirror.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory and every configured mirror
// root. The original root is never created; it must already exist.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir}
	for _, root := range c.MirrorRoots() {
		dirs = append(dirs, root)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MirrorRoots returns the configured mirror roots keyed by backend tag.
func (c *Config) MirrorRoots() map[string]string {
	roots := make(map[string]string, 3)
	if c.Backends.CDNRoot != "" {
		roots["cdn"] = c.Backends.CDNRoot
	}
	if c.Backends.IPFSRoot != "" {
		roots["ipfs"] = c.Backends.IPFSRoot
	}
	if c.Backends.SiaRoot != "" {
		roots["sia"] = c.Backends.SiaRoot
	}
	return roots
}

// NamedRoot pairs a root label with its directory.
type NamedRoot struct {
	Name string
	Path string
}

// AllRoots returns the original root followed by every configured mirror
// root in cdn, ipfs, sia order.
func (c *Config) AllRoots() []NamedRoot {
	roots := []NamedRoot{{Name: "original", Path: c.Paths.OriginalRoot}}
	mirrors := c.MirrorRoots()
	names := make([]string, 0, len(mirrors))
	for name := range mirrors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return backendOrder(names[i]) < backendOrder(names[j]) })
	for _, name := range names {
		roots = append(roots, NamedRoot{Name: name, Path: mirrors[name]})
	}
	return roots
}

func backendOrder(name string) int {
	switch name {
	case "cdn":
		return 0
	case "ipfs":
		return 1
	case "sia":
		return 2
	default:
		return 3
	}
}

// FetchTimeout returns the per-fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first retry backoff.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Fetch.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay caps retry backoff.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Fetch.RetryMaxDelayMS) * time.Millisecond
}

// LogFilePath returns the log file written next to the ledger.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.StateDir, "assetmirror.log")
}

// LockPath returns the mirror run lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "mirror.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
