package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateHasher(); err != nil {
		return err
	}
	if err := c.validateVerify(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OriginalRoot == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/assetmirror/config.toml"
		}
		return fmt.Errorf("paths.original_root is required. Set ASSETMIRROR_ORIGINAL_ROOT env var or edit %s (create with 'assetmirror config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateBackends() error {
	if err := validateBaseURL("backends.sia_portal", c.Backends.SiaPortal); err != nil {
		return err
	}
	if err := validateBaseURL("backends.ipfs_gateway", c.Backends.IPFSGateway); err != nil {
		return err
	}
	seen := map[string]string{filepath.Clean(c.Paths.OriginalRoot): "paths.original_root"}
	roots := c.MirrorRoots()
	names := make([]string, 0, len(roots))
	for name := range roots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := filepath.Clean(roots[name])
		if owner, dup := seen[key]; dup {
			return fmt.Errorf("backends.%s_root must differ from %s", name, owner)
		}
		seen[key] = "backends." + name + "_root"
	}
	switch c.Backends.CatchAll {
	case "":
	case "cdn", "ipfs", "sia":
		if _, ok := roots[c.Backends.CatchAll]; !ok {
			return fmt.Errorf("backends.catch_all %q has no configured root", c.Backends.CatchAll)
		}
	default:
		return fmt.Errorf("backends.catch_all must be one of cdn, ipfs, sia (got %q)", c.Backends.CatchAll)
	}
	return nil
}

func validateBaseURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", field, value)
	}
	if !strings.HasSuffix(value, "/") {
		return fmt.Errorf("%s must end with '/' (got %q)", field, value)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.RetryMaxDelayMS < c.Fetch.RetryBaseDelayMS {
		return errors.New("fetch.retry_max_delay_ms must be >= fetch.retry_base_delay_ms")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return errors.New("fetch.requests_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateMirror() error {
	switch c.Mirror.LeafMismatchPolicy {
	case LeafPolicyEntry, LeafPolicyRun:
		return nil
	default:
		return fmt.Errorf("mirror.leaf_mismatch_policy must be %q or %q (got %q)", LeafPolicyEntry, LeafPolicyRun, c.Mirror.LeafMismatchPolicy)
	}
}

func (c *Config) validateHasher() error {
	switch c.Hasher.Mode {
	case HasherUnixFS, HasherIPFSCLI:
		return nil
	default:
		return fmt.Errorf("hasher.mode must be %q or %q (got %q)", HasherUnixFS, HasherIPFSCLI, c.Hasher.Mode)
	}
}

func (c *Config) validateVerify() error {
	for name, spec := range c.Verify.Images {
		if spec.Width <= 0 || spec.Height <= 0 {
			return fmt.Errorf("verify.images.%q: width and height must be positive", name)
		}
		if spec.MinSizeBytes < 0 || spec.MaxSizeBytes < spec.MinSizeBytes {
			return fmt.Errorf("verify.images.%q: size bounds must satisfy 0 <= min <= max", name)
		}
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notify.NtfyTopic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notify.ntfy_topic must be an http(s) URL (got %q)", c.Notify.NtfyTopic)
	}
	return nil
}
