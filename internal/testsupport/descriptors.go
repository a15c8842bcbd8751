package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"assetmirror/internal/descriptor"
)

// TestPolicyID is the policy key fixtures nest assets under.
const TestPolicyID = "d5e6bf0500378d4f0da4e8dde6becec7621cd8cbf5cbb9b87013d4cc"

// Resource builds a resource descriptor fixture.
func Resource(kind descriptor.ResourceKind, priority int, hash string, urls ...string) descriptor.ResourceDescriptor {
	return descriptor.ResourceDescriptor{
		Kind:           kind,
		Description:    string(kind),
		Priority:       priority,
		Multihash:      hash,
		HashSourceType: "ipfs",
		URLs:           urls,
		ContentType:    contentTypeFor(kind, priority),
	}
}

func contentTypeFor(kind descriptor.ResourceKind, priority int) string {
	switch kind {
	case descriptor.KindCard, descriptor.KindArtwork:
		if priority == 0 {
			return "image/jpeg"
		}
		return "image/png"
	case descriptor.KindVideo:
		return "video/mp4"
	default:
		return "application/json"
	}
}

// PointerDocument renders an onchain.json document for one asset.
func PointerDocument(t testing.TB, assetID, name, image string, resources ...descriptor.ResourceDescriptor) []byte {
	t.Helper()

	if resources == nil {
		resources = []descriptor.ResourceDescriptor{}
	}
	doc := map[string]any{
		"721": map[string]any{
			TestPolicyID: map[string]any{
				assetID: map[string]any{
					"id":          assetID,
					"name":        name,
					"image":       image,
					"description": []string{"A card", "for tests"},
					"tags":        []string{},
					"resource":    resources,
				},
			},
			"version": "1.0",
		},
	}
	return mustJSON(t, doc)
}

// ExtendedDocument renders an nvla.json document listing leaves.
func ExtendedDocument(t testing.TB, name string, leaves ...descriptor.ResourceDescriptor) []byte {
	t.Helper()

	if leaves == nil {
		leaves = []descriptor.ResourceDescriptor{}
	}
	doc := map[string]any{
		"details": map[string]any{
			"name":     name,
			"resource": leaves,
		},
	}
	return mustJSON(t, doc)
}

// CharacterDocument renders a character.json document with the given name.
func CharacterDocument(t testing.TB, name string) []byte {
	t.Helper()
	return mustJSON(t, map[string]any{"name": name, "stats": map[string]int{"power": 3}})
}

// WriteCatalog writes an index CSV with nanoid,name,product_id columns.
// Each row is id and display name.
func WriteCatalog(t testing.TB, path string, rows ...[2]string) {
	t.Helper()

	var b strings.Builder
	b.WriteString("nanoid,name,product_id\n")
	for i, row := range rows {
		b.WriteString(row[0])
		b.WriteByte(',')
		b.WriteString(row[1])
		b.WriteByte(',')
		b.WriteString(strings.Repeat("p", i+1))
		b.WriteByte('\n')
	}
	WriteBytes(t, path, []byte(b.String()))
}

// WriteEntryDocuments writes the pointer and extended documents for entryID
// under root.
func WriteEntryDocuments(t testing.TB, root, entryID string, pointer, extended []byte) {
	t.Helper()

	dir := filepath.Join(root, entryID)
	if err := os.MkdirAll(filepath.Join(dir, descriptor.ResourceDir), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if pointer != nil {
		WriteBytes(t, filepath.Join(dir, descriptor.DefaultPointerFile), pointer)
	}
	if extended != nil {
		WriteBytes(t, filepath.Join(dir, descriptor.DefaultExtendedFile), extended)
	}
}

func mustJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}
