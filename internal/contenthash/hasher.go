package contenthash

import (
	"context"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

const (
	// ModeUnixFS computes identifiers in-process.
	ModeUnixFS = "unixfs"
	// ModeIPFSCLI delegates to `ipfs add --only-hash`.
	ModeIPFSCLI = "ipfs-cli"
)

// Hasher produces a deterministic content identifier for a file.
type Hasher interface {
	Hash(ctx context.Context, path string) (string, error)
}

// Options selects and tunes a Hasher implementation.
type Options struct {
	Mode       string
	IPFSBinary string
	ChunkSize  int
}

// New returns the Hasher described by opts.
func New(opts Options) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", ModeUnixFS:
		return NewUnixFS(opts.ChunkSize), nil
	case ModeIPFSCLI:
		return NewCLI(opts.IPFSBinary), nil
	default:
		return nil, fmt.Errorf("hasher mode: unsupported value %q", opts.Mode)
	}
}

// Equal reports whether two identifiers address the same content. CIDs are
// compared by codec and multihash so v0 and v1 renderings of one DAG match;
// anything that does not parse as a CID falls back to exact string equality.
func Equal(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == b {
		return true
	}
	ca, errA := cid.Decode(a)
	cb, errB := cid.Decode(b)
	if errA != nil || errB != nil {
		return false
	}
	return ca.Type() == cb.Type() && string(ca.Hash()) == string(cb.Hash())
}
