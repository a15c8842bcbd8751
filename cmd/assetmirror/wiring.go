package main

import (
	"fmt"
	"log/slog"

	"assetmirror/internal/catalog"
	"assetmirror/internal/config"
	"assetmirror/internal/contenthash"
	"assetmirror/internal/descriptor"
	"assetmirror/internal/fetch"
	"assetmirror/internal/mirror"
	"assetmirror/internal/resolver"
	"assetmirror/internal/verify"
)

func newResolver(cfg *config.Config) resolver.Resolver {
	return resolver.New(cfg.Backends.SiaPortal, cfg.Backends.IPFSGateway)
}

func newDescriptorStore(cfg *config.Config) (*descriptor.Store, error) {
	return descriptor.NewStore(descriptor.StoreOptions{
		Root:         cfg.Paths.OriginalRoot,
		PointerFile:  cfg.Descriptor.PointerFile,
		ExtendedFile: cfg.Descriptor.ExtendedFile,
		PolicyID:     cfg.Descriptor.PolicyID,
	})
}

func newHasher(cfg *config.Config) (contenthash.Hasher, error) {
	return contenthash.New(contenthash.Options{
		Mode:       cfg.Hasher.Mode,
		IPFSBinary: cfg.Hasher.IPFSBinary,
		ChunkSize:  cfg.Hasher.ChunkSize,
	})
}

func newFetcher(cfg *config.Config, logger *slog.Logger) *fetch.HTTPFetcher {
	return fetch.New(fetch.Options{
		Timeout:               cfg.FetchTimeout(),
		Retries:               cfg.Fetch.Retries,
		RetryBaseDelay:        cfg.RetryBaseDelay(),
		RetryMaxDelay:         cfg.RetryMaxDelay(),
		RequestsPerSecond:     cfg.Fetch.RequestsPerSecond,
		Burst:                 cfg.Fetch.Burst,
		PerBackendConcurrency: cfg.Fetch.PerBackendConcurrency,
		UserAgent:             cfg.Fetch.UserAgent,
		Logger:                logger,
	})
}

func loadCatalog(cfg *config.Config, only []string) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Paths.CatalogIndex)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(only) == 0 {
		return cat, nil
	}
	return cat.Filter(only)
}

func mirrorRoots(cfg *config.Config) (map[resolver.Backend]string, error) {
	roots := make(map[resolver.Backend]string)
	for name, path := range cfg.MirrorRoots() {
		backend, ok := resolver.ParseBackend(name)
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", name)
		}
		roots[backend] = path
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("no mirror roots configured; set backends.cdn_root, ipfs_root or sia_root")
	}
	return roots, nil
}

func verifyRoots(cfg *config.Config) []verify.Root {
	var roots []verify.Root
	for _, root := range cfg.AllRoots() {
		roots = append(roots, verify.Root{Name: root.Name, Path: root.Path})
	}
	return roots
}

type mirrorDeps struct {
	store   *descriptor.Store
	fetcher *fetch.HTTPFetcher
	engine  *mirror.Engine
}

func newMirrorEngine(cfg *config.Config, logger *slog.Logger, recorder mirror.Recorder) (*mirrorDeps, error) {
	store, err := newDescriptorStore(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := newHasher(cfg)
	if err != nil {
		return nil, err
	}
	roots, err := mirrorRoots(cfg)
	if err != nil {
		return nil, err
	}
	var catchAll resolver.Backend
	if cfg.Backends.CatchAll != "" {
		backend, ok := resolver.ParseBackend(cfg.Backends.CatchAll)
		if !ok {
			return nil, fmt.Errorf("backends.catch_all: unknown backend %q", cfg.Backends.CatchAll)
		}
		catchAll = backend
	}
	fetcher := newFetcher(cfg, logger)
	engine, err := mirror.New(mirror.Options{
		Store:        store,
		Resolver:     newResolver(cfg),
		Hasher:       hasher,
		Fetcher:      fetcher,
		Roots:        roots,
		CatchAll:     catchAll,
		Workers:      cfg.Mirror.Workers,
		LeafPolicy:   mirror.LeafPolicy(cfg.Mirror.LeafMismatchPolicy),
		ThumbnailExt: cfg.Descriptor.ThumbnailExt,
		Recorder:     recorder,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return &mirrorDeps{store: store, fetcher: fetcher, engine: engine}, nil
}
