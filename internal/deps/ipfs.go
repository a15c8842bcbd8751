package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultIPFSBinary is the command used when none is configured.
const DefaultIPFSBinary = "ipfs"

// IPFSRequirement describes the ipfs binary used by the CLI hasher. It is
// only required when that hasher is selected.
func IPFSRequirement(binary string, required bool) Requirement {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultIPFSBinary
	}
	desc := "Optional cross-check for content hashes"
	if required {
		desc = "Required by hasher mode ipfs-cli"
	}
	return Requirement{
		Name:        "IPFS",
		Command:     binary,
		Description: desc,
		Optional:    !required,
	}
}

// IPFSVersion runs "<binary> version" and returns its trimmed output.
func IPFSVersion(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, "version").Output()
	if err != nil {
		return "", fmt.Errorf("%s version: %w", binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}
