package mirror_test

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"assetmirror/internal/catalog"
	"assetmirror/internal/contenthash"
	"assetmirror/internal/descriptor"
	"assetmirror/internal/fetch"
	"assetmirror/internal/mirror"
	"assetmirror/internal/resolver"
	"assetmirror/internal/testsupport"
)

// world is a fake set of gateways backed by one httptest server plus an
// original store and mirror roots on disk.
type world struct {
	t        *testing.T
	server   *httptest.Server
	resolver resolver.Resolver
	original string
	roots    map[resolver.Backend]string
	store    *descriptor.Store
	hashFn   func([]byte) string

	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
	fail  map[string]int
}

func newWorld(t *testing.T, backends ...resolver.Backend) *world {
	t.Helper()
	w := &world{
		t:      t,
		roots:  make(map[resolver.Backend]string),
		files:  make(map[string][]byte),
		hits:   make(map[string]int),
		fail:   make(map[string]int),
		hashFn: testsupport.FakeHash,
	}
	w.server = httptest.NewServer(http.HandlerFunc(w.handle))
	t.Cleanup(w.server.Close)
	w.resolver = resolver.New(w.server.URL+"/sia/", w.server.URL+"/ipfs/")

	base := t.TempDir()
	w.original = filepath.Join(base, "original")
	for _, b := range backends {
		w.roots[b] = filepath.Join(base, b.String())
	}
	store, err := descriptor.NewStore(descriptor.StoreOptions{Root: w.original})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	w.store = store
	return w
}

func (w *world) handle(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	w.hits[r.URL.Path]++
	status := w.fail[r.URL.Path]
	data, ok := w.files[r.URL.Path]
	w.mu.Unlock()
	if status != 0 {
		rw.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(rw, r)
		return
	}
	_, _ = rw.Write(data)
}

// serve publishes data at the URL locator resolves to.
func (w *world) serve(locator string, data []byte) {
	url, _ := w.resolver.Resolve(locator)
	path := strings.TrimPrefix(url, w.server.URL)
	w.mu.Lock()
	w.files[path] = data
	w.mu.Unlock()
}

// cdn returns an absolute http locator on the fake server, which resolves
// to the cdn backend.
func (w *world) cdn(path string) string {
	return w.server.URL + "/cdn/" + path
}

func (w *world) failWith(locator string, status int) {
	url, _ := w.resolver.Resolve(locator)
	w.mu.Lock()
	w.fail[strings.TrimPrefix(url, w.server.URL)] = status
	w.mu.Unlock()
}

func (w *world) requests() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, n := range w.hits {
		total += n
	}
	return total
}

func (w *world) hitsFor(locator string) int {
	url, _ := w.resolver.Resolve(locator)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hits[strings.TrimPrefix(url, w.server.URL)]
}

type leafFixture struct {
	kind     descriptor.ResourceKind
	priority int
	data     []byte
	// declared overrides the hash written into the descriptor.
	declared string
	locators []string
}

type entryFixture struct {
	id     string
	name   string
	leaves []leafFixture
	// extDeclared overrides the extended metadata hash in the pointer.
	extDeclared string
}

// addEntry serves every resource of f and writes its descriptor documents
// into the original root.
func (w *world) addEntry(f entryFixture) {
	w.t.Helper()
	var resources []descriptor.ResourceDescriptor
	for _, leaf := range f.leaves {
		hash := leaf.declared
		if hash == "" {
			hash = w.hashFn(leaf.data)
		}
		for _, locator := range leaf.locators {
			w.serve(locator, leaf.data)
		}
		resources = append(resources, testsupport.Resource(leaf.kind, leaf.priority, hash, leaf.locators...))
	}
	extended := testsupport.ExtendedDocument(w.t, f.name, resources...)
	extHash := f.extDeclared
	if extHash == "" {
		extHash = w.hashFn(extended)
	}
	extLocator := "ipfs://ext-" + f.id
	w.serve(extLocator, extended)

	image := "ipfs://thumb-" + f.id + "/thumbnail.png"
	w.serve(image, []byte("thumbnail of "+f.id))

	pointer := testsupport.PointerDocument(w.t, f.id, f.name, image,
		testsupport.Resource(descriptor.KindExtendedMetadata, 0, extHash, extLocator))
	testsupport.WriteEntryDocuments(w.t, w.original, f.id, pointer, extended)
}

func (w *world) engine(hasher contenthash.Hasher, opts mirror.Options) *mirror.Engine {
	w.t.Helper()
	opts.Store = w.store
	opts.Resolver = w.resolver
	opts.Hasher = hasher
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(fetch.Options{
			Timeout:        5 * time.Second,
			Retries:        1,
			RetryBaseDelay: time.Millisecond,
			RetryMaxDelay:  2 * time.Millisecond,
		})
	}
	if opts.Roots == nil {
		opts.Roots = w.roots
	}
	engine, err := mirror.New(opts)
	if err != nil {
		w.t.Fatalf("mirror.New: %v", err)
	}
	return engine
}

func mustCatalog(t *testing.T, entries ...catalog.Entry) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(entries)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

// snapshot maps every file under root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			out[rel+"/"] = ""
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return out
}

func cardLeaf(id string, data []byte, locators ...string) leafFixture {
	if len(locators) == 0 {
		locators = []string{"ipfs://card-" + id + "/card_low.jpg"}
	}
	return leafFixture{kind: descriptor.KindCard, priority: 0, data: data, locators: locators}
}
