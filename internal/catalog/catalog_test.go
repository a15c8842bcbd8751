package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"assetmirror/internal/catalog"
)

func TestParseIndex(t *testing.T) {
	input := "nanoid,name,product_id\nabc123,Test Card,7\n\n def456 , \"Quoted, Name\",8\n"
	c, err := catalog.Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	entries := c.Entries()
	if entries[0].ID != "abc123" || entries[0].DisplayName != "Test Card" || entries[0].ProductID != "7" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	got, ok := c.Lookup("def456")
	if !ok || got.DisplayName != "Quoted, Name" {
		t.Fatalf("unexpected lookup result: %+v %v", got, ok)
	}
	if _, ok := c.Lookup("missing"); ok {
		t.Fatal("expected unknown id lookup to fail")
	}
}

func TestParseHeaderOrderIndependent(t *testing.T) {
	c, err := catalog.Parse(strings.NewReader("Name,NanoID\nCard One,id1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e, _ := c.Lookup("id1"); e.DisplayName != "Card One" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestParseIgnoresByteOrderMark(t *testing.T) {
	for name, input := range map[string]string{
		"plain header":  "\ufeffnanoid,name,product_id\nid1,Card One,p-1\n",
		"quoted header": "\ufeff\"nanoid\",\"name\"\nid1,Card One\n",
	} {
		t.Run(name, func(t *testing.T) {
			c, err := catalog.Parse(strings.NewReader(input))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if e, ok := c.Lookup("id1"); !ok || e.DisplayName != "Card One" {
				t.Fatalf("unexpected entry: %+v (found %v)", e, ok)
			}
		})
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing id":     "name\nCard\n",
		"missing name":   "nanoid\nabc\n",
		"duplicate":      "nanoid,name\nabc,One\nabc,Two\n",
		"blank id value": "nanoid,name\n,One\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := catalog.Parse(strings.NewReader(input)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadAndFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.csv")
	if err := os.WriteFile(path, []byte("nanoid,name\na,Alpha\nb,Beta\nc,Gamma\n"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	subset, err := c.Filter([]string{"c", "a"})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	ids := []string{}
	for _, e := range subset.Entries() {
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "a,c" {
		t.Fatalf("expected index order a,c got %v", ids)
	}
	if _, err := c.Filter([]string{"zzz"}); err == nil {
		t.Fatal("expected unknown id error")
	}
	if _, err := catalog.Load(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected missing file error")
	}
}
