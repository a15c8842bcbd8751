package descriptor

import (
	"fmt"
	"strings"
)

// ResourceKind is the resource_id value of a resource descriptor.
type ResourceKind string

const (
	KindArtwork          ResourceKind = "Artwork"
	KindVideo            ResourceKind = "Video"
	KindCard             ResourceKind = "Card"
	KindCharacterData    ResourceKind = "OccultaNovelliaCharacter"
	KindExtendedMetadata ResourceKind = "Novellia"
)

// Canonical local filenames for leaf resources.
const (
	FileCardLow    = "card_low.jpg"
	FileCard       = "card.png"
	FileArtworkLow = "artwork_low.jpg"
	FileArtwork    = "artwork.png"
	FileVideo      = "video.mp4"
	FileCharacter  = "character.json"
)

type filenameKey struct {
	kind     ResourceKind
	priority int
}

var canonicalNames = map[filenameKey]string{
	{KindCard, 0}:          FileCardLow,
	{KindCard, 1}:          FileCard,
	{KindArtwork, 0}:       FileArtworkLow,
	{KindArtwork, 1}:       FileArtwork,
	{KindVideo, 0}:         FileVideo,
	{KindCharacterData, 0}: FileCharacter,
}

// CanonicalFilename maps a (kind, priority) pair onto its fixed local name.
func CanonicalFilename(kind ResourceKind, priority int) (string, bool) {
	name, ok := canonicalNames[filenameKey{kind: kind, priority: priority}]
	return name, ok
}

// CanonicalFilenames lists every leaf filename in verification order.
func CanonicalFilenames() []string {
	return []string{FileCardLow, FileCard, FileArtworkLow, FileArtwork, FileVideo, FileCharacter}
}

// ResourceDescriptor declares one resource, its content hash and the
// alternative locators it can be fetched from.
type ResourceDescriptor struct {
	Kind           ResourceKind `json:"resource_id"`
	Description    string       `json:"description,omitempty"`
	Priority       int          `json:"priority"`
	Multihash      string       `json:"multihash"`
	HashSourceType string       `json:"hash_source_type"`
	URLs           []string     `json:"url"`
	ContentType    string       `json:"content_type"`
}

// Filename returns the canonical filename for a leaf resource.
func (r ResourceDescriptor) Filename() (string, error) {
	name, ok := CanonicalFilename(r.Kind, r.Priority)
	if !ok {
		return "", fmt.Errorf("no canonical filename for resource %s priority %d", r.Kind, r.Priority)
	}
	return name, nil
}

// Label is a short human-readable identifier used in logs.
func (r ResourceDescriptor) Label() string {
	if name, ok := CanonicalFilename(r.Kind, r.Priority); ok {
		return name
	}
	return fmt.Sprintf("%s/%d", r.Kind, r.Priority)
}

// PointerDescriptor is the on-chain style document for one entry.
type PointerDescriptor struct {
	EntryID     string
	PolicyID    string
	AssetID     string
	Name        string
	Image       string
	Description any
	Resources   []ResourceDescriptor
	Raw         []byte
}

// ExtendedResource returns the single ExtendedMetadata resource.
func (p *PointerDescriptor) ExtendedResource() (ResourceDescriptor, error) {
	if len(p.Resources) != 1 {
		return ResourceDescriptor{}, fmt.Errorf("expected exactly one resource, found %d", len(p.Resources))
	}
	res := p.Resources[0]
	if res.Kind != KindExtendedMetadata {
		return ResourceDescriptor{}, fmt.Errorf("expected resource_id %q, found %q", KindExtendedMetadata, res.Kind)
	}
	return res, nil
}

// ThumbnailExt returns the file extension of the image locator path without
// the dot, or fallback when the locator has none.
func (p *PointerDescriptor) ThumbnailExt(fallback string) string {
	fallback = strings.TrimPrefix(fallback, ".")
	locator := p.Image
	if idx := strings.IndexAny(locator, "?#"); idx >= 0 {
		locator = locator[:idx]
	}
	if idx := strings.Index(locator, "://"); idx >= 0 {
		locator = locator[idx+3:]
	}
	slash := strings.LastIndex(locator, "/")
	if slash < 0 {
		return fallback
	}
	segment := locator[slash+1:]
	dot := strings.LastIndex(segment, ".")
	if dot <= 0 || dot == len(segment)-1 {
		return fallback
	}
	ext := strings.ToLower(segment[dot+1:])
	if len(ext) > 5 {
		return fallback
	}
	return ext
}

// ExtendedMetadata is the off-chain document listing leaf resources.
type ExtendedMetadata struct {
	EntryID   string
	Name      string
	Resources []ResourceDescriptor
	Raw       []byte
}
