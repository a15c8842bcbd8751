package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"assetmirror/internal/catalog"
	"assetmirror/internal/contenthash"
	"assetmirror/internal/descriptor"
	"assetmirror/internal/failure"
	"assetmirror/internal/fetch"
	"assetmirror/internal/fileutil"
	"assetmirror/internal/logging"
	"assetmirror/internal/resolver"
)

// LeafPolicy decides how far a leaf hash mismatch propagates.
type LeafPolicy string

const (
	// LeafPolicyEntry fails only the entry that owns the leaf.
	LeafPolicyEntry LeafPolicy = "entry"
	// LeafPolicyRun aborts the whole run.
	LeafPolicyRun LeafPolicy = "run"
)

const originalBackend = "original"

// ResourceEvent describes one resource copy attempt for one root.
type ResourceEvent struct {
	EntryID  string
	Resource string
	Backend  string
	URL      string
	Path     string
	Outcome  string
	Expected string
	Actual   string
	Err      error
}

// Recorder persists run progress. Errors are logged and otherwise ignored.
type Recorder interface {
	RecordResource(ctx context.Context, event ResourceEvent) error
	RecordEntry(ctx context.Context, result EntryResult) error
}

// Options configures an Engine.
type Options struct {
	Store        *descriptor.Store
	Resolver     resolver.Resolver
	Hasher       contenthash.Hasher
	Fetcher      fetch.Fetcher
	Roots        map[resolver.Backend]string
	CatchAll     resolver.Backend
	Workers      int
	LeafPolicy   LeafPolicy
	ThumbnailExt string
	Recorder     Recorder
	Logger       *slog.Logger
}

type backendRoot struct {
	backend resolver.Backend
	layout  descriptor.Layout
}

// Engine mirrors catalog entries into backend roots.
type Engine struct {
	store        *descriptor.Store
	resolver     resolver.Resolver
	hasher       contenthash.Hasher
	fetcher      fetch.Fetcher
	roots        []backendRoot
	byBackend    map[resolver.Backend]descriptor.Layout
	catchAll     resolver.Backend
	workers      int
	leafPolicy   LeafPolicy
	thumbnailExt string
	recorder     Recorder
	logger       *slog.Logger
}

// New validates opts and constructs an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("mirror: descriptor store is required")
	}
	if opts.Hasher == nil {
		return nil, errors.New("mirror: hasher is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("mirror: fetcher is required")
	}
	e := &Engine{
		store:        opts.Store,
		resolver:     opts.Resolver,
		hasher:       opts.Hasher,
		fetcher:      opts.Fetcher,
		byBackend:    make(map[resolver.Backend]descriptor.Layout, len(opts.Roots)),
		catchAll:     opts.CatchAll,
		workers:      opts.Workers,
		leafPolicy:   opts.LeafPolicy,
		thumbnailExt: opts.ThumbnailExt,
		recorder:     opts.Recorder,
		logger:       logging.NewComponentLogger(opts.Logger, "mirror"),
	}
	for _, backend := range resolver.Backends() {
		root, ok := opts.Roots[backend]
		if !ok || root == "" {
			continue
		}
		layout := descriptor.Layout{Root: root, ExtendedFile: opts.Store.ExtendedFile()}
		e.roots = append(e.roots, backendRoot{backend: backend, layout: layout})
		e.byBackend[backend] = layout
	}
	if len(e.roots) == 0 {
		return nil, errors.New("mirror: at least one backend root is required")
	}
	if e.catchAll != "" {
		if _, ok := e.byBackend[e.catchAll]; !ok {
			return nil, fmt.Errorf("mirror: catch-all backend %s has no root", e.catchAll)
		}
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	switch e.leafPolicy {
	case "":
		e.leafPolicy = LeafPolicyEntry
	case LeafPolicyEntry, LeafPolicyRun:
	default:
		return nil, fmt.Errorf("mirror: unknown leaf policy %q", e.leafPolicy)
	}
	return e, nil
}

// Run mirrors every catalog entry with a bounded worker pool. It returns a
// non-nil error only when the run was aborted or ctx was cancelled; entry
// scoped failures are reported in Report.Failed.
func (e *Engine) Run(ctx context.Context, cat *catalog.Catalog) (*Report, error) {
	entries := cat.Entries()
	results := make([]*EntryResult, len(entries))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		abortOnce sync.Once
		abortErr  error
	)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				result := e.runEntry(runCtx, entries[idx].ID)
				results[idx] = &result
				if result.Status == StatusFailed && failure.IsRunFatal(result.Err) {
					abortOnce.Do(func() {
						abortErr = result.Err
						cancel()
					})
				}
			}
		}()
	}

dispatch:
	for idx := range entries {
		if runCtx.Err() != nil {
			break
		}
		select {
		case jobs <- idx:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	report := &Report{}
	for _, r := range results {
		if r != nil {
			report.Entries = append(report.Entries, *r)
		}
	}
	if abortErr != nil {
		report.Aborted = abortErr
		return report, abortErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Engine) runEntry(ctx context.Context, entryID string) EntryResult {
	start := time.Now()
	entryCtx := logging.WithEntryID(ctx, entryID)
	logger := logging.WithContext(entryCtx, e.logger)

	result, err := e.MirrorEntry(entryCtx, entryID)
	result.Duration = time.Since(start)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		result.Status = StatusCanceled
		result.Err = err
	default:
		result.Status = StatusFailed
		result.Err = err
	}

	switch result.Status {
	case StatusMirrored:
		logger.Info("entry mirrored",
			logging.Int("fetched", result.Fetched),
			logging.Int("existing", result.Existing),
			logging.Duration("duration", result.Duration),
		)
	case StatusSkipped:
		logging.WarnWithContext(logger, "entry skipped: pointer descriptor missing", "descriptor_missing",
			logging.Error(result.Err),
			logging.String(logging.FieldErrorKind, failure.KindMissingDescriptor),
			logging.String(logging.FieldErrorHint, "regenerate the entry's descriptor documents in the original root"),
			logging.String(logging.FieldImpact, "entry not mirrored"),
		)
	case StatusFailed:
		hint := "re-run mirror after fixing the cause"
		if failure.IsRunFatal(result.Err) {
			hint = "descriptor chain is untrusted; fix the source documents before re-running"
		}
		logging.ErrorWithContext(logger, "entry failed", "entry_failed",
			logging.Error(result.Err),
			logging.String(logging.FieldErrorKind, failure.Kind(result.Err)),
			logging.String(logging.FieldErrorHint, hint),
		)
	case StatusCanceled:
		logger.Debug("entry canceled", logging.Error(result.Err))
	}
	e.recordEntry(ctx, result)
	return result
}

// MirrorEntry mirrors one entry. A missing pointer descriptor is not an
// error: the result carries StatusSkipped and the descriptor error.
func (e *Engine) MirrorEntry(ctx context.Context, entryID string) (EntryResult, error) {
	result := EntryResult{EntryID: entryID}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	for _, root := range e.roots {
		if err := root.layout.EnsureSkeleton(entryID); err != nil {
			return result, failure.Wrap(nil, entryID, "prepare root", root.backend.String(), err)
		}
	}

	pointer, err := e.store.Pointer(entryID)
	if err != nil {
		if errors.Is(err, failure.ErrMissingDescriptor) {
			result.Status = StatusSkipped
			result.Err = err
			return result, nil
		}
		return result, err
	}

	extended, err := pointer.ExtendedResource()
	if err != nil {
		return result, failure.Wrap(failure.ErrSchemaViolation, entryID, "pointer", "", err)
	}
	extPath, err := e.mirrorResource(ctx, entryID, extended, func(l descriptor.Layout) string {
		return l.ExtendedPath(entryID)
	}, &result)
	if err != nil {
		if errors.Is(err, failure.ErrIntegrityMismatch) {
			return result, failure.AbortRun(err)
		}
		return result, err
	}
	if extPath == "" {
		extPath, err = e.verifyOriginalExtended(ctx, entryID, extended)
		if err != nil {
			if errors.Is(err, failure.ErrMissingDescriptor) {
				result.Status = StatusSkipped
				result.Err = err
				return result, nil
			}
			return result, err
		}
	}

	meta, err := descriptor.LoadExtended(entryID, extPath)
	if err != nil {
		if errors.Is(err, failure.ErrMissingDescriptor) {
			return result, failure.Wrap(nil, entryID, "load extended metadata", extPath, err)
		}
		return result, err
	}

	if err := e.mirrorThumbnail(ctx, entryID, pointer, &result); err != nil {
		return result, err
	}

	for _, leaf := range meta.Resources {
		name, err := leaf.Filename()
		if err != nil {
			return result, failure.Wrap(failure.ErrSchemaViolation, entryID, "leaf resource", leaf.Label(), err)
		}
		_, err = e.mirrorResource(ctx, entryID, leaf, func(l descriptor.Layout) string {
			return l.LeafPath(entryID, name)
		}, &result)
		if err != nil {
			if e.leafPolicy == LeafPolicyRun && errors.Is(err, failure.ErrIntegrityMismatch) {
				return result, failure.AbortRun(err)
			}
			return result, err
		}
	}

	result.Status = StatusMirrored
	return result, nil
}

// mirrorResource ensures every URL alternative of res is present under the
// root of the backend it resolves to. It returns the first verified or
// pre-existing local copy, or "" when no URL maps to a configured root.
func (e *Engine) mirrorResource(ctx context.Context, entryID string, res descriptor.ResourceDescriptor, target func(descriptor.Layout) string, result *EntryResult) (string, error) {
	logger := logging.WithContext(ctx, e.logger)
	var first string
	for _, locator := range res.URLs {
		url, backend := e.resolver.Resolve(locator)
		layout, ok := e.layoutFor(backend)
		if !ok {
			logger.Debug("no root for backend; locator skipped",
				logging.String(logging.FieldBackend, backend.String()),
				logging.String(logging.FieldURL, url),
			)
			continue
		}
		path := target(layout)
		event := ResourceEvent{
			EntryID:  entryID,
			Resource: res.Label(),
			Backend:  backend.String(),
			URL:      url,
			Path:     path,
			Expected: res.Multihash,
		}

		exists, err := fileutil.Exists(path)
		if err != nil {
			return "", failure.Wrap(nil, entryID, "stat "+res.Label(), path, err)
		}
		if exists {
			result.Existing++
			event.Outcome = OutcomeExisting
			e.recordResource(ctx, event)
			if first == "" {
				first = path
			}
			continue
		}

		actual, err := e.fetchVerified(ctx, entryID, res, url, backend, path)
		event.Actual = actual
		if err != nil {
			event.Err = err
			event.Outcome = OutcomeFailed
			if errors.Is(err, failure.ErrIntegrityMismatch) {
				event.Outcome = OutcomeMismatch
			}
			if !errors.Is(err, context.Canceled) {
				e.recordResource(ctx, event)
			}
			return "", err
		}
		result.Fetched++
		event.Outcome = OutcomeFetched
		e.recordResource(ctx, event)
		logger.Debug("resource mirrored",
			logging.String(logging.FieldFile, res.Label()),
			logging.String(logging.FieldBackend, backend.String()),
			logging.String(logging.FieldPath, path),
		)
		if first == "" {
			first = path
		}
	}
	return first, nil
}

// fetchVerified downloads url next to path and renames it into place only
// when its hash matches the declared identifier.
func (e *Engine) fetchVerified(ctx context.Context, entryID string, res descriptor.ResourceDescriptor, url string, backend resolver.Backend, path string) (string, error) {
	tmp, err := e.fetcher.Fetch(ctx, url, backend, filepath.Dir(path))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", failure.Wrap(nil, entryID, "fetch "+res.Label(), "", err)
	}
	actual, err := e.hasher.Hash(ctx, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", failure.Wrap(nil, entryID, "hash "+res.Label(), url, err)
	}
	if !contenthash.Equal(actual, res.Multihash) {
		_ = os.Remove(tmp)
		return actual, &failure.IntegrityError{
			EntryID:  entryID,
			URL:      url,
			Backend:  backend.String(),
			Path:     path,
			Expected: res.Multihash,
			Actual:   actual,
		}
	}
	if err := fileutil.Commit(tmp, path, 0o644); err != nil {
		return actual, failure.Wrap(nil, entryID, "commit "+res.Label(), path, err)
	}
	return actual, nil
}

// verifyOriginalExtended hashes the original store's extended metadata when
// none of its URLs map to a configured root.
func (e *Engine) verifyOriginalExtended(ctx context.Context, entryID string, res descriptor.ResourceDescriptor) (string, error) {
	path := e.store.ExtendedPath(entryID)
	exists, err := fileutil.Exists(path)
	if err != nil {
		return "", failure.Wrap(nil, entryID, "stat extended metadata", path, err)
	}
	if !exists {
		return "", failure.Wrap(failure.ErrMissingDescriptor, entryID, "load extended metadata", path, nil)
	}
	actual, err := e.hasher.Hash(ctx, path)
	if err != nil {
		return "", failure.Wrap(nil, entryID, "hash extended metadata", path, err)
	}
	if !contenthash.Equal(actual, res.Multihash) {
		return "", failure.AbortRun(&failure.IntegrityError{
			EntryID:  entryID,
			URL:      path,
			Backend:  originalBackend,
			Path:     path,
			Expected: res.Multihash,
			Actual:   actual,
		})
	}
	return path, nil
}

// mirrorThumbnail copies the pointer's image into every root. Thumbnails are
// not content addressed: one download serves all roots and nothing is hashed.
func (e *Engine) mirrorThumbnail(ctx context.Context, entryID string, pointer *descriptor.PointerDescriptor, result *EntryResult) error {
	ext := pointer.ThumbnailExt(e.thumbnailExt)
	url, backend := e.resolver.Resolve(pointer.Image)

	var source string
	var missing []backendRoot
	for _, root := range e.roots {
		path := root.layout.ThumbnailPath(entryID, ext)
		exists, err := fileutil.Exists(path)
		if err != nil {
			return failure.Wrap(nil, entryID, "stat thumbnail", path, err)
		}
		if exists {
			result.Existing++
			if source == "" {
				source = path
			}
			continue
		}
		missing = append(missing, root)
	}
	if len(missing) == 0 {
		return nil
	}

	if source == "" {
		first := missing[0]
		missing = missing[1:]
		path := first.layout.ThumbnailPath(entryID, ext)
		tmp, err := e.fetcher.Fetch(ctx, url, backend, filepath.Dir(path))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return failure.Wrap(nil, entryID, "fetch thumbnail", "", err)
		}
		if err := fileutil.Commit(tmp, path, 0o644); err != nil {
			return failure.Wrap(nil, entryID, "commit thumbnail", path, err)
		}
		result.Fetched++
		e.recordResource(ctx, ResourceEvent{
			EntryID:  entryID,
			Resource: "thumbnail",
			Backend:  first.backend.String(),
			URL:      url,
			Path:     path,
			Outcome:  OutcomeFetched,
		})
		source = path
	}

	for _, root := range missing {
		path := root.layout.ThumbnailPath(entryID, ext)
		if err := fileutil.CopyFile(source, path); err != nil {
			return failure.Wrap(nil, entryID, "copy thumbnail", path, err)
		}
		e.recordResource(ctx, ResourceEvent{
			EntryID:  entryID,
			Resource: "thumbnail",
			Backend:  root.backend.String(),
			URL:      url,
			Path:     path,
			Outcome:  OutcomeCopied,
		})
	}
	return nil
}

func (e *Engine) layoutFor(backend resolver.Backend) (descriptor.Layout, bool) {
	if layout, ok := e.byBackend[backend]; ok {
		return layout, true
	}
	if e.catchAll != "" {
		return e.byBackend[e.catchAll], true
	}
	return descriptor.Layout{}, false
}

func (e *Engine) recordResource(ctx context.Context, event ResourceEvent) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordResource(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("ledger write failed", logging.Error(err))
	}
}

func (e *Engine) recordEntry(ctx context.Context, result EntryResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordEntry(context.WithoutCancel(ctx), result); err != nil {
		e.logger.Warn("ledger write failed", logging.Error(err))
	}
}
