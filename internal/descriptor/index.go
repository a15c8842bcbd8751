package descriptor

import (
	"errors"

	"assetmirror/internal/catalog"
	"assetmirror/internal/failure"
)

// Index maps entry ids to their pointer descriptors, built once per run.
type Index struct {
	pointers map[string]*PointerDescriptor
	missing  []string
}

// BuildIndex loads the pointer descriptor for every catalog entry. Entries
// without a pointer document are recorded as missing; any other failure is
// returned.
func BuildIndex(store *Store, cat *catalog.Catalog) (*Index, error) {
	idx := &Index{pointers: make(map[string]*PointerDescriptor, cat.Len())}
	for _, entry := range cat.Entries() {
		pointer, err := store.Pointer(entry.ID)
		if err != nil {
			if errors.Is(err, failure.ErrMissingDescriptor) {
				idx.missing = append(idx.missing, entry.ID)
				continue
			}
			return nil, err
		}
		idx.pointers[entry.ID] = pointer
	}
	return idx, nil
}

// Pointer returns the descriptor for entryID.
func (i *Index) Pointer(entryID string) (*PointerDescriptor, bool) {
	p, ok := i.pointers[entryID]
	return p, ok
}

// Missing lists entry ids whose pointer document was absent, in catalog order.
func (i *Index) Missing() []string {
	return append([]string(nil), i.missing...)
}

// Len reports how many pointers were loaded.
func (i *Index) Len() int { return len(i.pointers) }
