package config

const (
	defaultStateDir            = "~/.local/share/assetmirror"
	defaultCatalogIndexName    = "index.csv"
	defaultMetadataDirName     = "metadata"
	defaultLedgerName          = "ledger.db"
	defaultSiaPortal           = "https://siasky.net/"
	defaultIPFSGateway         = "https://api.rektangularstudios.com/ipfs/"
	defaultPointerFile         = "onchain.json"
	defaultExtendedFile        = "nvla.json"
	defaultThumbnailExt        = "jpg"
	defaultFetchTimeoutSeconds = 60
	defaultFetchRetries        = 3
	defaultRetryBaseDelayMS    = 500
	defaultRetryMaxDelayMS     = 10000
	defaultBackendConcurrency  = 4
	defaultUserAgent           = "assetmirror/dev"
	defaultMirrorWorkers       = 4
	defaultHasherMode          = HasherUnixFS
	defaultIPFSBinary          = "ipfs"
	defaultChunkSize           = 262144
	defaultEmptyThreshold      = 10
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Leaf mismatch policies.
const (
	LeafPolicyEntry = "entry"
	LeafPolicyRun   = "run"
)

// Hasher modes.
const (
	HasherUnixFS  = "unixfs"
	HasherIPFSCLI = "ipfs-cli"
)

const megabyte = 1_000_000

// DefaultImageSpecs returns the reference specification table for image
// resources, keyed by canonical filename.
func DefaultImageSpecs() map[string]ImageSpec {
	return map[string]ImageSpec{
		"card_low.jpg":    {Width: 1200, Height: 1550, MinSizeBytes: 0, MaxSizeBytes: 400_000},
		"card.png":        {Width: 2400, Height: 3100, MinSizeBytes: 2 * megabyte, MaxSizeBytes: 15 * megabyte},
		"artwork_low.jpg": {Width: 1920, Height: 1080, MinSizeBytes: 0, MaxSizeBytes: 400_000},
		"artwork.png":     {Width: 3840, Height: 2160, MinSizeBytes: 2 * megabyte, MaxSizeBytes: 15 * megabyte},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Backends: Backends{
			SiaPortal:   defaultSiaPortal,
			IPFSGateway: defaultIPFSGateway,
		},
		Descriptor: Descriptor{
			PointerFile:  defaultPointerFile,
			ExtendedFile: defaultExtendedFile,
			ThumbnailExt: defaultThumbnailExt,
		},
		Fetch: Fetch{
			TimeoutSeconds:        defaultFetchTimeoutSeconds,
			Retries:               defaultFetchRetries,
			RetryBaseDelayMS:      defaultRetryBaseDelayMS,
			RetryMaxDelayMS:       defaultRetryMaxDelayMS,
			PerBackendConcurrency: defaultBackendConcurrency,
			UserAgent:             defaultUserAgent,
		},
		Mirror: Mirror{
			Workers:            defaultMirrorWorkers,
			LeafMismatchPolicy: LeafPolicyEntry,
		},
		Hasher: Hasher{
			Mode:       defaultHasherMode,
			IPFSBinary: defaultIPFSBinary,
			ChunkSize:  defaultChunkSize,
		},
		Verify: Verify{
			EmptyThresholdBytes: defaultEmptyThreshold,
			Images:              DefaultImageSpecs(),
		},
		Ledger: Ledger{
			Enabled: true,
		},
		Notify: Notify{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
