package mirror_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"assetmirror/internal/catalog"
	"assetmirror/internal/contenthash"
	"assetmirror/internal/descriptor"
	"assetmirror/internal/failure"
	"assetmirror/internal/mirror"
	"assetmirror/internal/resolver"
	"assetmirror/internal/testsupport"
)

func TestMirrorEndToEndSingleCDNRoot(t *testing.T) {
	w := newWorld(t, resolver.BackendCDN)
	hasher := contenthash.NewUnixFS(0)
	w.hashFn = func(data []byte) string {
		sum, err := hasher.Sum(context.Background(), bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Sum: %v", err)
		}
		return sum
	}
	card := testsupport.JPEG(t, 1200, 1550)
	cardHash := w.hashFn(card)
	if !strings.HasPrefix(cardHash, "Qm") {
		t.Fatalf("expected CIDv0 identifier, got %q", cardHash)
	}
	w.addEntry(entryFixture{id: "abc123", name: "Test Card", leaves: []leafFixture{
		cardLeaf("abc123", card, "ipfs://"+cardHash),
	}})

	engine := w.engine(hasher, mirror.Options{CatchAll: resolver.BackendCDN})
	report, err := engine.Run(context.Background(), mustCatalog(t, catalog.Entry{ID: "abc123", DisplayName: "Test Card"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Entries) != 1 || report.Entries[0].Status != mirror.StatusMirrored {
		t.Fatalf("unexpected report: %+v", report.Entries)
	}

	root := w.roots[resolver.BackendCDN]
	got, err := os.ReadFile(filepath.Join(root, "abc123", "resource", "card_low.jpg"))
	if err != nil {
		t.Fatalf("read mirrored card: %v", err)
	}
	if !bytes.Equal(got, card) {
		t.Fatal("mirrored card is not byte-identical to the source")
	}
	for _, rel := range []string{"nvla.json", "thumbnail.png"} {
		if _, err := os.Stat(filepath.Join(root, "abc123", rel)); err != nil {
			t.Fatalf("expected %s in root: %v", rel, err)
		}
	}
}

func TestMirrorIsIdempotent(t *testing.T) {
	w := newWorld(t, resolver.BackendCDN, resolver.BackendIPFS, resolver.BackendSia)
	w.addEntry(entryFixture{id: "a", name: "Alpha", leaves: []leafFixture{
		cardLeaf("a", []byte("card a"), "ipfs://card-a", "sia://card-a", w.cdn("a/card_low.jpg")),
		{kind: descriptor.KindCharacterData, data: testsupport.CharacterDocument(t, "Alpha"), locators: []string{"ipfs://char-a"}},
	}})
	w.addEntry(entryFixture{id: "b", name: "Beta", leaves: []leafFixture{cardLeaf("b", []byte("card b"))}})

	cat := mustCatalog(t, catalog.Entry{ID: "a", DisplayName: "Alpha"}, catalog.Entry{ID: "b", DisplayName: "Beta"})
	hasher := &testsupport.FakeHasher{}

	first, err := w.engine(hasher, mirror.Options{}).Run(context.Background(), cat)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Fetched() == 0 {
		t.Fatal("expected fetches on the first run")
	}
	before := make(map[resolver.Backend]map[string]string)
	for b, root := range w.roots {
		before[b] = snapshot(t, root)
	}
	requests := w.requests()
	hashes := hasher.Calls()

	second, err := w.engine(hasher, mirror.Options{}).Run(context.Background(), cat)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if w.requests() != requests {
		t.Fatalf("second run issued %d network requests", w.requests()-requests)
	}
	if hasher.Calls() != hashes {
		t.Fatalf("second run hashed %d files", hasher.Calls()-hashes)
	}
	if second.Fetched() != 0 {
		t.Fatalf("expected zero fetches on second run, got %d", second.Fetched())
	}
	for b, root := range w.roots {
		if after := snapshot(t, root); !reflect.DeepEqual(before[b], after) {
			t.Fatalf("%s root changed between runs", b)
		}
	}
}

func TestMirrorLeafMismatchAbortsRunUnderRunPolicy(t *testing.T) {
	w := newWorld(t, resolver.BackendIPFS)
	w.addEntry(entryFixture{id: "a", name: "A", leaves: []leafFixture{cardLeaf("a", []byte("card a"))}})
	bad := cardLeaf("b", []byte("tampered"))
	bad.declared = testsupport.FakeHash([]byte("original"))
	w.addEntry(entryFixture{id: "b", name: "B", leaves: []leafFixture{bad}})
	w.addEntry(entryFixture{id: "c", name: "C", leaves: []leafFixture{cardLeaf("c", []byte("card c"))}})

	cat := mustCatalog(t,
		catalog.Entry{ID: "a", DisplayName: "A"},
		catalog.Entry{ID: "b", DisplayName: "B"},
		catalog.Entry{ID: "c", DisplayName: "C"},
	)
	engine := w.engine(&testsupport.FakeHasher{}, mirror.Options{LeafPolicy: mirror.LeafPolicyRun})
	report, err := engine.Run(context.Background(), cat)
	if err == nil {
		t.Fatal("expected run to abort")
	}
	if !failure.IsRunFatal(err) {
		t.Fatalf("expected run-fatal error, got %v", err)
	}
	var integrity *failure.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %T: %v", err, err)
	}
	wantURL, _ := w.resolver.Resolve("ipfs://card-b/card_low.jpg")
	if integrity.URL != wantURL || integrity.Backend != "ipfs" {
		t.Fatalf("unexpected integrity detail: %+v", integrity)
	}
	if !strings.Contains(err.Error(), wantURL) || !strings.Contains(err.Error(), "ipfs backend") {
		t.Fatalf("error does not name URL and backend: %v", err)
	}

	for _, e := range report.Entries {
		if e.EntryID == "c" {
			t.Fatal("entry after the abort must not be processed")
		}
	}
	root := w.roots[resolver.BackendIPFS]
	if _, err := os.Stat(filepath.Join(root, "c")); !os.IsNotExist(err) {
		t.Fatalf("expected no directory for c, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "b", "resource", "card_low.jpg")); !os.IsNotExist(err) {
		t.Fatalf("mismatched bytes must not land at the target path, stat err=%v", err)
	}
	leftovers, _ := os.ReadDir(filepath.Join(root, "b", "resource"))
	if len(leftovers) != 0 {
		t.Fatalf("expected no temp files left, found %d", len(leftovers))
	}
}

func TestMirrorLeafMismatchFailsOnlyEntryByDefault(t *testing.T) {
	w := newWorld(t, resolver.BackendIPFS)
	bad := cardLeaf("b", []byte("tampered"))
	bad.declared = testsupport.FakeHash([]byte("original"))
	w.addEntry(entryFixture{id: "b", name: "B", leaves: []leafFixture{bad}})
	w.addEntry(entryFixture{id: "c", name: "C", leaves: []leafFixture{cardLeaf("c", []byte("card c"))}})

	cat := mustCatalog(t, catalog.Entry{ID: "b", DisplayName: "B"}, catalog.Entry{ID: "c", DisplayName: "C"})
	report, err := w.engine(&testsupport.FakeHasher{}, mirror.Options{}).Run(context.Background(), cat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].EntryID != "b" {
		t.Fatalf("expected only b to fail, got %+v", failed)
	}
	if !errors.Is(failed[0].Err, failure.ErrIntegrityMismatch) {
		t.Fatalf("expected integrity mismatch, got %v", failed[0].Err)
	}
	if _, err := os.Stat(filepath.Join(w.roots[resolver.BackendIPFS], "c", "resource", "card_low.jpg")); err != nil {
		t.Fatalf("expected c to be mirrored: %v", err)
	}
}

func TestMirrorExtendedMetadataMismatchAlwaysAbortsRun(t *testing.T) {
	w := newWorld(t, resolver.BackendIPFS)
	w.addEntry(entryFixture{id: "a", name: "A", extDeclared: "fake-deadbeef", leaves: []leafFixture{cardLeaf("a", []byte("card"))}})
	w.addEntry(entryFixture{id: "b", name: "B", leaves: []leafFixture{cardLeaf("b", []byte("card b"))}})

	cat := mustCatalog(t, catalog.Entry{ID: "a", DisplayName: "A"}, catalog.Entry{ID: "b", DisplayName: "B"})
	report, err := w.engine(&testsupport.FakeHasher{}, mirror.Options{LeafPolicy: mirror.LeafPolicyEntry}).Run(context.Background(), cat)
	if !errors.Is(err, failure.ErrIntegrityMismatch) || !failure.IsRunFatal(err) {
		t.Fatalf("expected run-fatal integrity mismatch, got %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("expected only the first entry in the report, got %+v", report.Entries)
	}
	if w.hitsFor("ipfs://card-a/card_low.jpg") != 0 {
		t.Fatal("leaves must not be fetched when the extended metadata is untrusted")
	}
}

func TestMirrorToleratesMissingDescriptor(t *testing.T) {
	w := newWorld(t, resolver.BackendCDN, resolver.BackendIPFS)
	w.addEntry(entryFixture{id: "a", name: "A", leaves: []leafFixture{cardLeaf("a", []byte("card a"))}})
	w.addEntry(entryFixture{id: "c", name: "C", leaves: []leafFixture{cardLeaf("c", []byte("card c"))}})

	cat := mustCatalog(t,
		catalog.Entry{ID: "a", DisplayName: "A"},
		catalog.Entry{ID: "ghost", DisplayName: "Ghost"},
		catalog.Entry{ID: "c", DisplayName: "C"},
	)
	report, err := w.engine(&testsupport.FakeHasher{}, mirror.Options{Workers: 3}).Run(context.Background(), cat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	missing := report.Missing()
	if len(missing) != 1 || missing[0].EntryID != "ghost" {
		t.Fatalf("expected exactly one missing descriptor, got %+v", missing)
	}
	if !errors.Is(missing[0].Err, failure.ErrMissingDescriptor) {
		t.Fatalf("expected ErrMissingDescriptor, got %v", missing[0].Err)
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failed())
	}
	for _, id := range []string{"a", "c"} {
		if _, err := os.Stat(filepath.Join(w.roots[resolver.BackendIPFS], id, "resource", "card_low.jpg")); err != nil {
			t.Fatalf("expected %s mirrored: %v", id, err)
		}
	}
}

func TestMirrorSchemaViolationAbortsRun(t *testing.T) {
	w := newWorld(t, resolver.BackendIPFS)
	testsupport.WriteEntryDocuments(t, w.original, "bad", []byte(`{"721": {"p": {"bad": {"image": 7}}}}`), nil)
	w.addEntry(entryFixture{id: "c", name: "C", leaves: []leafFixture{cardLeaf("c", []byte("card c"))}})

	cat := mustCatalog(t, catalog.Entry{ID: "bad", DisplayName: "Bad"}, catalog.Entry{ID: "c", DisplayName: "C"})
	_, err := w.engine(&testsupport.FakeHasher{}, mirror.Options{}).Run(context.Background(), cat)
	if !errors.Is(err, failure.ErrSchemaViolation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	if w.hitsFor("ipfs://card-c/card_low.jpg") != 0 {
		t.Fatal("later entries must not be mirrored after a schema violation")
	}
}

func TestMirrorNetworkFailureIsEntryScoped(t *testing.T) {
	w := newWorld(t, resolver.BackendIPFS)
	w.addEntry(entryFixture{id: "a", name: "A", leaves: []leafFixture{cardLeaf("a", []byte("card a"))}})
	w.failWith("ipfs://card-a/card_low.jpg", http.StatusBadGateway)
	w.addEntry(entryFixture{id: "b", name: "B", leaves: []leafFixture{cardLeaf("b", []byte("card b"))}})

	cat := mustCatalog(t, catalog.Entry{ID: "a", DisplayName: "A"}, catalog.Entry{ID: "b", DisplayName: "B"})
	report, err := w.engine(&testsupport.FakeHasher{}, mirror.Options{}).Run(context.Background(), cat)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 || !errors.Is(failed[0].Err, failure.ErrNetwork) {
		t.Fatalf("expected one network failure, got %+v", failed)
	}
	if got := w.hitsFor("ipfs://card-a/card_low.jpg"); got != 2 {
		t.Fatalf("expected one retry for the failing leaf, got %d attempts", got)
	}
	if failed[0].ErrorKind() != failure.KindNetwork {
		t.Fatalf("unexpected kind %q", failed[0].ErrorKind())
	}
}

func TestMirrorThumbnailFetchedOnceForAllRoots(t *testing.T) {
	w := newWorld(t, resolver.BackendCDN, resolver.BackendIPFS, resolver.BackendSia)
	w.addEntry(entryFixture{id: "a", name: "A", leaves: []leafFixture{cardLeaf("a", []byte("card a"))}})

	cat := mustCatalog(t, catalog.Entry{ID: "a", DisplayName: "A"})
	if _, err := w.engine(&testsupport.FakeHasher{}, mirror.Options{}).Run(context.Background(), cat); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := w.hitsFor("ipfs://thumb-a/thumbnail.png"); got != 1 {
		t.Fatalf("expected one thumbnail download, got %d", got)
	}
	for b, root := range w.roots {
		data, err := os.ReadFile(filepath.Join(root, "a", "thumbnail.png"))
		if err != nil || string(data) != "thumbnail of a" {
			t.Fatalf("%s thumbnail = %q, %v", b, data, err)
		}
		if _, err := os.Stat(filepath.Join(root, "a", "resource")); err != nil {
			t.Fatalf("%s skeleton missing: %v", b, err)
		}
	}
	// Leaves only land in the root their locator resolves to.
	if _, err := os.Stat(filepath.Join(w.roots[resolver.BackendCDN], "a", "resource", "card_low.jpg")); !os.IsNotExist(err) {
		t.Fatalf("ipfs-only leaf must not appear in cdn root, stat err=%v", err)
	}
}

func TestMirrorFallsBackToOriginalExtendedMetadata(t *testing.T) {
	w := newWorld(t, resolver.BackendCDN)
	w.addEntry(entryFixture{id: "a", name: "A", leaves: []leafFixture{
		cardLeaf("a", []byte("card a"), w.cdn("a/card_low.jpg")),
	}})

	hasher := &testsupport.FakeHasher{}
	report, err := w.engine(hasher, mirror.Options{}).Run(context.Background(), mustCatalog(t, catalog.Entry{ID: "a", DisplayName: "A"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Entries[0].Status != mirror.StatusMirrored {
		t.Fatalf("unexpected status %+v", report.Entries[0])
	}
	hashedOriginal := false
	for _, p := range hasher.Paths() {
		if p == w.store.ExtendedPath("a") {
			hashedOriginal = true
		}
	}
	if !hashedOriginal {
		t.Fatal("expected the original extended metadata to be verified")
	}
	if _, err := os.Stat(filepath.Join(w.roots[resolver.BackendCDN], "a", "resource", "card_low.jpg")); err != nil {
		t.Fatalf("expected leaf mirrored: %v", err)
	}
}

type memoryRecorder struct {
	mu        sync.Mutex
	resources []mirror.ResourceEvent
	entries   []mirror.EntryResult
}

func (m *memoryRecorder) RecordResource(_ context.Context, event mirror.ResourceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, event)
	return nil
}

func (m *memoryRecorder) RecordEntry(_ context.Context, result mirror.EntryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, result)
	return nil
}

func TestMirrorRecordsEvents(t *testing.T) {
	w := newWorld(t, resolver.BackendIPFS)
	w.addEntry(entryFixture{id: "a", name: "A", leaves: []leafFixture{cardLeaf("a", []byte("card a"))}})

	rec := &memoryRecorder{}
	cat := mustCatalog(t, catalog.Entry{ID: "a", DisplayName: "A"})
	if _, err := w.engine(&testsupport.FakeHasher{}, mirror.Options{Recorder: rec}).Run(context.Background(), cat); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.entries) != 1 || rec.entries[0].Status != mirror.StatusMirrored {
		t.Fatalf("unexpected entry records %+v", rec.entries)
	}
	outcomes := map[string]string{}
	for _, ev := range rec.resources {
		outcomes[ev.Resource] = ev.Outcome
	}
	want := map[string]string{"Novellia/0": mirror.OutcomeFetched, "thumbnail": mirror.OutcomeFetched, "card_low.jpg": mirror.OutcomeFetched}
	if !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	w := newWorld(t, resolver.BackendCDN)
	if _, err := mirror.New(mirror.Options{Store: w.store, Hasher: &testsupport.FakeHasher{}}); err == nil {
		t.Fatal("expected error without fetcher")
	}
	engineOpts := mirror.Options{CatchAll: resolver.BackendSia}
	engineOpts.Store = w.store
	engineOpts.Hasher = &testsupport.FakeHasher{}
	engineOpts.Fetcher = stubFetcher{}
	engineOpts.Roots = w.roots
	if _, err := mirror.New(engineOpts); err == nil {
		t.Fatal("expected error for catch-all without root")
	}
	engineOpts.CatchAll = ""
	engineOpts.LeafPolicy = "sometimes"
	if _, err := mirror.New(engineOpts); err == nil {
		t.Fatal("expected error for unknown leaf policy")
	}
}

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string, resolver.Backend, string) (string, error) {
	return "", errors.New("not used")
}
