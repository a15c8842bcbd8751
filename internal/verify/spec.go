package verify

import "assetmirror/internal/config"

// ImageSpec is the expected shape of one canonical image file.
type ImageSpec struct {
	Width        int
	Height       int
	MinSizeBytes int64
	MaxSizeBytes int64
}

// SpecTable maps canonical filenames to their image specification. Files
// without an entry only get existence and emptiness checks.
type SpecTable map[string]ImageSpec

// SpecTableFromConfig converts the configured image tables.
func SpecTableFromConfig(images map[string]config.ImageSpec) SpecTable {
	table := make(SpecTable, len(images))
	for name, spec := range images {
		table[name] = ImageSpec{
			Width:        spec.Width,
			Height:       spec.Height,
			MinSizeBytes: spec.MinSizeBytes,
			MaxSizeBytes: spec.MaxSizeBytes,
		}
	}
	return table
}

// DefaultSpecTable returns the built-in card and artwork specifications.
func DefaultSpecTable() SpecTable {
	return SpecTableFromConfig(config.DefaultImageSpecs())
}
