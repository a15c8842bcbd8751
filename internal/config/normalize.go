package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBackends(); err != nil {
		return err
	}
	c.normalizeDescriptor()
	c.normalizeFetch()
	c.normalizeMirror()
	c.normalizeHasher()
	c.normalizeVerify()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeNotify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OriginalRoot) == "" {
		if value, ok := os.LookupEnv("ASSETMIRROR_ORIGINAL_ROOT"); ok {
			c.Paths.OriginalRoot = strings.TrimSpace(value)
		}
	}
	if c.Paths.OriginalRoot, err = expandPath(strings.TrimSpace(c.Paths.OriginalRoot)); err != nil {
		return fmt.Errorf("paths.original_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.CatalogIndex) == "" && c.Paths.OriginalRoot != "" {
		c.Paths.CatalogIndex = filepath.Join(c.Paths.OriginalRoot, defaultCatalogIndexName)
	}
	if c.Paths.CatalogIndex, err = expandPath(strings.TrimSpace(c.Paths.CatalogIndex)); err != nil {
		return fmt.Errorf("paths.catalog_index: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MetadataDir) == "" {
		c.Paths.MetadataDir = filepath.Join(c.Paths.StateDir, defaultMetadataDirName)
	}
	if c.Paths.MetadataDir, err = expandPath(strings.TrimSpace(c.Paths.MetadataDir)); err != nil {
		return fmt.Errorf("paths.metadata_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackends() error {
	var err error
	c.Backends.SiaPortal = strings.TrimSpace(c.Backends.SiaPortal)
	if c.Backends.SiaPortal == "" {
		c.Backends.SiaPortal = defaultSiaPortal
	}
	c.Backends.IPFSGateway = strings.TrimSpace(c.Backends.IPFSGateway)
	if c.Backends.IPFSGateway == "" {
		c.Backends.IPFSGateway = defaultIPFSGateway
	}
	if c.Backends.CDNRoot, err = expandPath(strings.TrimSpace(c.Backends.CDNRoot)); err != nil {
		return fmt.Errorf("backends.cdn_root: %w", err)
	}
	if c.Backends.IPFSRoot, err = expandPath(strings.TrimSpace(c.Backends.IPFSRoot)); err != nil {
		return fmt.Errorf("backends.ipfs_root: %w", err)
	}
	if c.Backends.SiaRoot, err = expandPath(strings.TrimSpace(c.Backends.SiaRoot)); err != nil {
		return fmt.Errorf("backends.sia_root: %w", err)
	}
	c.Backends.CatchAll = strings.ToLower(strings.TrimSpace(c.Backends.CatchAll))
	return nil
}

func (c *Config) normalizeDescriptor() {
	c.Descriptor.PolicyID = strings.TrimSpace(c.Descriptor.PolicyID)
	if c.Descriptor.PolicyID == "" {
		if value, ok := os.LookupEnv("ASSETMIRROR_POLICY_ID"); ok {
			c.Descriptor.PolicyID = strings.TrimSpace(value)
		}
	}
	c.Descriptor.PointerFile = strings.TrimSpace(c.Descriptor.PointerFile)
	if c.Descriptor.PointerFile == "" {
		c.Descriptor.PointerFile = defaultPointerFile
	}
	c.Descriptor.ExtendedFile = strings.TrimSpace(c.Descriptor.ExtendedFile)
	if c.Descriptor.ExtendedFile == "" {
		c.Descriptor.ExtendedFile = defaultExtendedFile
	}
	c.Descriptor.ThumbnailExt = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Descriptor.ThumbnailExt)), ".")
	if c.Descriptor.ThumbnailExt == "" {
		c.Descriptor.ThumbnailExt = defaultThumbnailExt
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeoutSeconds
	}
	if c.Fetch.Retries < 0 {
		c.Fetch.Retries = 0
	}
	if c.Fetch.RetryBaseDelayMS <= 0 {
		c.Fetch.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.Fetch.RetryMaxDelayMS <= 0 {
		c.Fetch.RetryMaxDelayMS = defaultRetryMaxDelayMS
	}
	if c.Fetch.RequestsPerSecond > 0 && c.Fetch.Burst <= 0 {
		c.Fetch.Burst = 1
	}
	if c.Fetch.PerBackendConcurrency <= 0 {
		c.Fetch.PerBackendConcurrency = defaultBackendConcurrency
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeMirror() {
	if c.Mirror.Workers <= 0 {
		c.Mirror.Workers = 1
	}
	c.Mirror.LeafMismatchPolicy = strings.ToLower(strings.TrimSpace(c.Mirror.LeafMismatchPolicy))
	if c.Mirror.LeafMismatchPolicy == "" {
		c.Mirror.LeafMismatchPolicy = LeafPolicyEntry
	}
}

func (c *Config) normalizeHasher() {
	c.Hasher.Mode = strings.ToLower(strings.TrimSpace(c.Hasher.Mode))
	if c.Hasher.Mode == "" {
		c.Hasher.Mode = defaultHasherMode
	}
	c.Hasher.IPFSBinary = strings.TrimSpace(c.Hasher.IPFSBinary)
	if c.Hasher.IPFSBinary == "" {
		c.Hasher.IPFSBinary = defaultIPFSBinary
	}
	if c.Hasher.ChunkSize <= 0 {
		c.Hasher.ChunkSize = defaultChunkSize
	}
}

func (c *Config) normalizeVerify() {
	if c.Verify.EmptyThresholdBytes <= 0 {
		c.Verify.EmptyThresholdBytes = defaultEmptyThreshold
	}
	if c.Verify.Images == nil {
		c.Verify.Images = DefaultImageSpecs()
	}
}

func (c *Config) normalizeLedger() error {
	var err error
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = filepath.Join(c.Paths.StateDir, defaultLedgerName)
	}
	if c.Ledger.Path, err = expandPath(strings.TrimSpace(c.Ledger.Path)); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotify() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.RequestTimeoutSeconds <= 0 {
		c.Notify.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}
