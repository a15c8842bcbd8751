package contenthash

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLI hashes files by invoking `ipfs add <path> --only-hash -q`. The ipfs
// binary must be installed; nothing is added to the local repository.
type CLI struct {
	binary string
}

// NewCLI returns a CLI hasher using binary (defaults to "ipfs").
func NewCLI(binary string) *CLI {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ipfs"
	}
	return &CLI{binary: binary}
}

// Binary reports the executable invoked by the hasher.
func (c *CLI) Binary() string { return c.binary }

// Hash implements Hasher.
func (c *CLI) Hash(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, "add", path, "--only-hash", "-q")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("%s add %s: %w: %s", c.binary, path, err, detail)
		}
		return "", fmt.Errorf("%s add %s: %w", c.binary, path, err)
	}
	lines := strings.Fields(stdout.String())
	if len(lines) == 0 {
		return "", fmt.Errorf("%s add %s: empty output", c.binary, path)
	}
	// -q prints one hash per added node; the final one is the root.
	return lines[len(lines)-1], nil
}
