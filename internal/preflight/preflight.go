package preflight

import (
	"context"
	"fmt"

	"assetmirror/internal/config"
	"assetmirror/internal/deps"
)

// MinFreeBytes is the free space each mirror root should have.
const MinFreeBytes uint64 = 512 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

// Options toggles the network checks.
type Options struct {
	CheckGateways bool
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckReadableDirectory("Original root", cfg.Paths.OriginalRoot))
	results = append(results, CheckFile("Catalog index", cfg.Paths.CatalogIndex))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	for _, root := range cfg.AllRoots()[1:] {
		name := fmt.Sprintf("%s root", root.Name)
		access := CheckDirectoryAccess(name, root.Path)
		results = append(results, access)
		if access.Passed {
			results = append(results, CheckFreeSpace(name+" free space", root.Path, MinFreeBytes))
		}
	}

	if opts.CheckGateways {
		results = append(results, CheckGateway(ctx, "Sia portal", cfg.Backends.SiaPortal))
		results = append(results, CheckGateway(ctx, "IPFS gateway", cfg.Backends.IPFSGateway))
	}

	for _, status := range CheckSystemDeps(cfg) {
		detail := status.Detail
		if status.Available {
			detail = fmt.Sprintf("%s (found)", status.Command)
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   detail,
		})
	}
	return results
}

// CheckSystemDeps evaluates the external binaries cfg may invoke.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		deps.IPFSRequirement(cfg.Hasher.IPFSBinary, cfg.Hasher.Mode == config.HasherIPFSCLI),
	}
	return deps.CheckBinaries(requirements)
}
