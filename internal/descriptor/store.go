package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"assetmirror/internal/failure"
)

// Default document filenames inside an entry directory.
const (
	DefaultPointerFile  = "onchain.json"
	DefaultExtendedFile = "nvla.json"
	ResourceDir         = "resource"
	ThumbnailBase       = "thumbnail"
)

// StoreOptions configures a Store.
type StoreOptions struct {
	Root         string
	PointerFile  string
	ExtendedFile string
	PolicyID     string
}

// Store provides read-only access to the descriptor documents kept in the
// authoritative original root.
type Store struct {
	root         string
	pointerFile  string
	extendedFile string
	policyID     string
}

// NewStore constructs a Store, applying default filenames when unset.
func NewStore(opts StoreOptions) (*Store, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, errors.New("descriptor store: root is required")
	}
	pointer := strings.TrimSpace(opts.PointerFile)
	if pointer == "" {
		pointer = DefaultPointerFile
	}
	extended := strings.TrimSpace(opts.ExtendedFile)
	if extended == "" {
		extended = DefaultExtendedFile
	}
	return &Store{
		root:         root,
		pointerFile:  pointer,
		extendedFile: extended,
		policyID:     strings.TrimSpace(opts.PolicyID),
	}, nil
}

// Root returns the original store root.
func (s *Store) Root() string { return s.root }

// PointerFile returns the pointer document filename.
func (s *Store) PointerFile() string { return s.pointerFile }

// ExtendedFile returns the extended metadata document filename.
func (s *Store) ExtendedFile() string { return s.extendedFile }

// PointerPath returns the pointer document path for entryID.
func (s *Store) PointerPath(entryID string) string {
	return filepath.Join(s.root, entryID, s.pointerFile)
}

// ExtendedPath returns the extended metadata document path for entryID.
func (s *Store) ExtendedPath(entryID string) string {
	return filepath.Join(s.root, entryID, s.extendedFile)
}

// Pointer loads the pointer descriptor for entryID. A missing file yields
// failure.ErrMissingDescriptor; anything present but unusable yields
// failure.ErrSchemaViolation.
func (s *Store) Pointer(entryID string) (*PointerDescriptor, error) {
	path := s.PointerPath(entryID)
	data, err := readDocument(entryID, "load pointer", path)
	if err != nil {
		return nil, err
	}
	pointer, err := ParsePointer(data, s.policyID)
	if err != nil {
		return nil, failure.Wrap(failure.ErrSchemaViolation, entryID, "parse pointer", path, err)
	}
	if _, err := pointer.ExtendedResource(); err != nil {
		return nil, failure.Wrap(failure.ErrSchemaViolation, entryID, "parse pointer", path, err)
	}
	pointer.EntryID = entryID
	return pointer, nil
}

// Extended loads the extended metadata document kept in the original root.
func (s *Store) Extended(entryID string) (*ExtendedMetadata, error) {
	return LoadExtended(entryID, s.ExtendedPath(entryID))
}

// LoadExtended parses an extended metadata document at path, which may live
// in any backend root.
func LoadExtended(entryID, path string) (*ExtendedMetadata, error) {
	data, err := readDocument(entryID, "load extended metadata", path)
	if err != nil {
		return nil, err
	}
	meta, err := ParseExtended(data)
	if err != nil {
		return nil, failure.Wrap(failure.ErrSchemaViolation, entryID, "parse extended metadata", path, err)
	}
	meta.EntryID = entryID
	return meta, nil
}

func readDocument(entryID, operation, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.Wrap(failure.ErrMissingDescriptor, entryID, operation, path, nil)
	}
	return nil, fmt.Errorf("%s %s: %w", operation, path, err)
}

// Layout computes paths of the per-entry directory shape shared by every
// backend root.
type Layout struct {
	Root         string
	ExtendedFile string
}

// EntryDir returns <root>/<entryID>.
func (l Layout) EntryDir(entryID string) string {
	return filepath.Join(l.Root, entryID)
}

// ResourceDir returns <root>/<entryID>/resource.
func (l Layout) ResourceDir(entryID string) string {
	return filepath.Join(l.Root, entryID, ResourceDir)
}

// ExtendedPath returns the extended metadata path for entryID.
func (l Layout) ExtendedPath(entryID string) string {
	name := l.ExtendedFile
	if name == "" {
		name = DefaultExtendedFile
	}
	return filepath.Join(l.Root, entryID, name)
}

// ThumbnailPath returns <root>/<entryID>/thumbnail.<ext>.
func (l Layout) ThumbnailPath(entryID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return filepath.Join(l.Root, entryID, ThumbnailBase)
	}
	return filepath.Join(l.Root, entryID, ThumbnailBase+"."+ext)
}

// LeafPath returns <root>/<entryID>/resource/<filename>.
func (l Layout) LeafPath(entryID, filename string) string {
	return filepath.Join(l.Root, entryID, ResourceDir, filename)
}

// EnsureSkeleton creates the entry and resource directories.
func (l Layout) EnsureSkeleton(entryID string) error {
	if err := os.MkdirAll(l.ResourceDir(entryID), 0o755); err != nil {
		return fmt.Errorf("create skeleton for %s in %s: %w", entryID, l.Root, err)
	}
	return nil
}
