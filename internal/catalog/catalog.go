// Package catalog enumerates the distributable assets a mirror run covers.
//
// The catalog is read from the static-serving index, a CSV file whose header
// names at least the nanoid and name columns. Entries are immutable once read
// and are indexed by id so engines never rescan the table.
package catalog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	columnID        = "nanoid"
	columnName      = "name"
	columnProductID = "product_id"
)

// Entry is one distributable asset: a character card or a bundle.
type Entry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ProductID   string `json:"product_id,omitempty"`
}

// Catalog holds entries in index order plus an id lookup.
type Catalog struct {
	entries []Entry
	byID    map[string]int
}

// New builds a catalog from entries, rejecting blank or duplicate ids.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for i, entry := range entries {
		entry.ID = strings.TrimSpace(entry.ID)
		entry.DisplayName = strings.TrimSpace(entry.DisplayName)
		entry.ProductID = strings.TrimSpace(entry.ProductID)
		if entry.ID == "" {
			return nil, fmt.Errorf("catalog row %d: empty id", i+1)
		}
		if _, dup := c.byID[entry.ID]; dup {
			return nil, fmt.Errorf("catalog row %d: duplicate id %q", i+1, entry.ID)
		}
		c.byID[entry.ID] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c, nil
}

// Load reads a catalog index CSV from path.
func Load(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog index: %w", err)
	}
	defer file.Close()

	c, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("catalog index %s: %w", path, err)
	}
	return c, nil
}

// utf8BOM is written by spreadsheet exports in front of the header row.
var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Parse reads a catalog index from r. A leading UTF-8 byte-order mark is
// ignored.
func Parse(r io.Reader) (*Catalog, error) {
	buffered := bufio.NewReader(r)
	if prefix, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	idCol, ok := columns[columnID]
	if !ok {
		return nil, fmt.Errorf("missing %q column", columnID)
	}
	nameCol, ok := columns[columnName]
	if !ok {
		return nil, fmt.Errorf("missing %q column", columnName)
	}
	productCol, hasProduct := columns[columnProductID]

	var entries []Entry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(record) {
			continue
		}
		entry := Entry{
			ID:          field(record, idCol),
			DisplayName: field(record, nameCol),
		}
		if hasProduct {
			entry.ProductID = field(record, productCol)
		}
		entries = append(entries, entry)
	}
	return New(entries)
}

// Entries returns entries in index order. The slice must not be modified.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// Len reports the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Lookup returns the entry with id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// Filter returns a catalog restricted to ids, preserving index order. Unknown
// ids are reported as an error.
func (c *Catalog) Filter(ids []string) (*Catalog, error) {
	if len(ids) == 0 {
		return c, nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := c.Lookup(id); !ok {
			return nil, fmt.Errorf("entry %q not in catalog", id)
		}
		want[id] = struct{}{}
	}
	subset := make([]Entry, 0, len(want))
	for _, entry := range c.entries {
		if _, ok := want[entry.ID]; ok {
			subset = append(subset, entry)
		}
	}
	return New(subset)
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
