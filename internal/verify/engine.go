package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/text/unicode/norm"

	"assetmirror/internal/catalog"
	"assetmirror/internal/contenthash"
	"assetmirror/internal/descriptor"
	"assetmirror/internal/failure"
	"assetmirror/internal/logging"
)

// DefaultEmptyThreshold is the size below which a file counts as empty.
const DefaultEmptyThreshold = 10

// Root names one directory tree to sweep.
type Root struct {
	Name string
	Path string
}

// Options configures an Engine.
type Options struct {
	Roots          []Root
	Specs          SpecTable
	EmptyThreshold int64
	// Store supplies the declared resources of each entry. When nil every
	// canonical filename is expected and no hashes are compared.
	Store *descriptor.Store
	// Hasher enables the hash comparison against declared identifiers.
	Hasher contenthash.Hasher
	Logger *slog.Logger
}

// Engine runs verification sweeps.
type Engine struct {
	roots     []Root
	specs     SpecTable
	threshold int64
	store     *descriptor.Store
	hasher    contenthash.Hasher
	logger    *slog.Logger
}

// New validates opts and constructs an Engine.
func New(opts Options) (*Engine, error) {
	if len(opts.Roots) == 0 {
		return nil, errors.New("verify: at least one root is required")
	}
	for _, root := range opts.Roots {
		if root.Path == "" {
			return nil, fmt.Errorf("verify: root %q has no path", root.Name)
		}
	}
	if opts.Hasher != nil && opts.Store == nil {
		return nil, errors.New("verify: hash comparison requires a descriptor store")
	}
	threshold := opts.EmptyThreshold
	if threshold <= 0 {
		threshold = DefaultEmptyThreshold
	}
	specs := opts.Specs
	if specs == nil {
		specs = DefaultSpecTable()
	}
	return &Engine{
		roots:     append([]Root(nil), opts.Roots...),
		specs:     specs,
		threshold: threshold,
		store:     opts.Store,
		hasher:    opts.Hasher,
		logger:    logging.NewComponentLogger(opts.Logger, "verify"),
	}, nil
}

// expectation is what one entry should look like in every root.
type expectation struct {
	files    []string
	declared map[string]string
}

// Verify checks every root × entry × expected file and returns all findings.
// Only context cancellation stops the sweep early.
func (e *Engine) Verify(ctx context.Context, cat *catalog.Catalog) (*Result, error) {
	result := &Result{Roots: len(e.roots), Entries: cat.Len()}

	expected := make(map[string]expectation, cat.Len())
	for _, entry := range cat.Entries() {
		expected[entry.ID] = e.expectationFor(ctx, entry.ID)
	}

	for _, root := range e.roots {
		layout := descriptor.Layout{Root: root.Path}
		before := len(result.Findings)
		for _, entry := range cat.Entries() {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			exp := expected[entry.ID]
			for _, name := range exp.files {
				findings, err := e.checkFile(ctx, root, entry, name, layout.LeafPath(entry.ID, name), exp.declared[name])
				if err != nil {
					return result, err
				}
				result.Checked++
				for _, f := range findings {
					e.logFinding(ctx, f)
				}
				result.Findings = append(result.Findings, findings...)
			}
		}
		e.logger.Info("root verified",
			logging.String("root", root.Name),
			logging.String(logging.FieldPath, root.Path),
			logging.Int("findings", len(result.Findings)-before),
		)
	}
	return result, nil
}

// expectationFor lists the leaf files entryID should carry. The original
// store's extended metadata decides when it is readable; otherwise every
// canonical file is expected.
func (e *Engine) expectationFor(ctx context.Context, entryID string) expectation {
	all := expectation{files: descriptor.CanonicalFilenames()}
	if e.store == nil {
		return all
	}
	meta, err := e.store.Extended(entryID)
	if err != nil {
		logger := logging.WithContext(logging.WithEntryID(ctx, entryID), e.logger)
		logger.Debug("extended metadata unavailable; expecting every canonical file",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, failure.Kind(err)),
		)
		return all
	}
	exp := expectation{declared: make(map[string]string, len(meta.Resources))}
	declared := make(map[string]bool, len(meta.Resources))
	for _, res := range meta.Resources {
		name, err := res.Filename()
		if err != nil || declared[name] {
			continue
		}
		declared[name] = true
		exp.declared[name] = res.Multihash
	}
	for _, name := range descriptor.CanonicalFilenames() {
		if declared[name] {
			exp.files = append(exp.files, name)
		}
	}
	return exp
}

func (e *Engine) checkFile(ctx context.Context, root Root, entry catalog.Entry, name, path, declaredHash string) ([]Finding, error) {
	finding := func(sev Severity, code Code, format string, args ...any) Finding {
		return Finding{
			Severity: sev,
			Code:     code,
			Root:     root.Name,
			EntryID:  entry.ID,
			File:     name,
			Path:     path,
			Detail:   fmt.Sprintf(format, args...),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Finding{finding(SeverityWarning, CodeMissing, "%s does not exist", name)}, nil
		}
		return []Finding{finding(SeverityWarning, CodeUnreadableData, "stat failed: %v", err)}, nil
	}
	if info.IsDir() {
		return []Finding{finding(SeverityWarning, CodeMissing, "%s is a directory", name)}, nil
	}

	size := info.Size()
	if size < e.threshold {
		return []Finding{finding(SeverityWarning, CodeEmptyFile, "size %d bytes is below %d", size, e.threshold)}, nil
	}

	var findings []Finding
	if spec, ok := e.specs[name]; ok {
		if size < spec.MinSizeBytes {
			findings = append(findings, finding(SeverityWarning, CodeSizeOutOfSpec, "size %d bytes below minimum %d", size, spec.MinSizeBytes))
		}
		if spec.MaxSizeBytes > 0 && size > spec.MaxSizeBytes {
			findings = append(findings, finding(SeverityWarning, CodeSizeOutOfSpec, "size %d bytes above maximum %d", size, spec.MaxSizeBytes))
		}
		width, height, err := imageDimensions(path)
		switch {
		case err != nil:
			findings = append(findings, finding(SeverityWarning, CodeUnreadableImage, "decode image: %v", err))
		case width != spec.Width || height != spec.Height:
			findings = append(findings, finding(SeverityWarning, CodeDimensionMismatch,
				"actual %dx%d, expected %dx%d", width, height, spec.Width, spec.Height))
		}
	}

	if name == descriptor.FileCharacter {
		declaredName, err := characterName(path)
		switch {
		case err != nil:
			findings = append(findings, finding(SeverityWarning, CodeUnreadableData, "parse character data: %v", err))
		case !SameName(declaredName, entry.DisplayName):
			findings = append(findings, finding(SeverityFatal, CodeIdentityMismatch,
				"character name %q does not match catalog name %q", declaredName, entry.DisplayName))
		}
	}

	if e.hasher != nil && declaredHash != "" {
		actual, err := e.hasher.Hash(ctx, path)
		switch {
		case err != nil && ctx.Err() != nil:
			return findings, ctx.Err()
		case err != nil:
			findings = append(findings, finding(SeverityWarning, CodeHashMismatch, "hash failed: %v", err))
		case !contenthash.Equal(actual, declaredHash):
			findings = append(findings, finding(SeverityWarning, CodeHashMismatch, "expected %s, got %s", declaredHash, actual))
		}
	}
	return findings, nil
}

func (e *Engine) logFinding(ctx context.Context, f Finding) {
	logger := logging.WithContext(logging.WithEntryID(ctx, f.EntryID), e.logger)
	attrs := []logging.Attr{
		logging.String("root", f.Root),
		logging.String(logging.FieldFile, f.File),
		logging.String("code", string(f.Code)),
		logging.String("detail", f.Detail),
	}
	if f.Severity == SeverityFatal {
		attrs = append(attrs,
			logging.String(logging.FieldErrorKind, failure.KindIdentityMismatch),
			logging.String(logging.FieldErrorHint, "the entry's character data belongs to another entry; regenerate its resources"),
		)
		logging.ErrorWithContext(logger, "verification failed", "verify_fatal", attrs...)
		return
	}
	attrs = append(attrs, logging.String(logging.FieldImpact, "advisory only"))
	logging.WarnWithContext(logger, "verification finding", "verify_finding", attrs...)
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func characterName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	if doc.Name == nil {
		return "", errors.New("name field is absent")
	}
	return *doc.Name, nil
}

// SameName compares two display names after NFC normalization.
func SameName(a, b string) bool {
	return norm.NFC.String(a) == norm.NFC.String(b)
}

// FatalError summarises fatal findings as an error wrapping
// failure.ErrIdentityMismatch, or returns nil when there are none.
func FatalError(r *Result) error {
	fatal := r.Fatal()
	if len(fatal) == 0 {
		return nil
	}
	first := fatal[0]
	return failure.Wrap(failure.ErrIdentityMismatch, first.EntryID, "verify",
		fmt.Sprintf("%d fatal finding(s); first in %s root: %s", len(fatal), first.Root, first.Detail), nil)
}
