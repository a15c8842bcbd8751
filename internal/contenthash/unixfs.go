package contenthash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// DefaultChunkSize matches the size-262144 chunker used by `ipfs add`.
	DefaultChunkSize = 256 * 1024
	// maxLinks is the balanced-layout fan-out used by the IPFS importer.
	maxLinks = 174

	unixfsTypeFile = 2
)

// UnixFS computes CIDv0 identifiers using the dag-pb balanced layout with
// protobuf UnixFS leaves, which is what `ipfs add --only-hash` produces with
// default flags.
type UnixFS struct {
	chunkSize int
}

// NewUnixFS returns a native hasher. Non-positive chunk sizes use the default.
func NewUnixFS(chunkSize int) *UnixFS {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &UnixFS{chunkSize: chunkSize}
}

// Hash implements Hasher.
func (u *UnixFS) Hash(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	id, err := u.Sum(ctx, file)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return id, nil
}

// dagNode summarises an encoded node; only what parents need is retained.
type dagNode struct {
	hash     multihash.Multihash
	fileSize uint64
	treeSize uint64
}

// Sum reads r to EOF and returns the CIDv0 string of its UnixFS DAG.
func (u *UnixFS) Sum(ctx context.Context, r io.Reader) (string, error) {
	buf := make([]byte, u.chunkSize)
	var level []dagNode
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			node, nodeErr := leafNode(buf[:n])
			if nodeErr != nil {
				return "", nodeErr
			}
			level = append(level, node)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if len(level) == 0 {
		node, err := leafNode(nil)
		if err != nil {
			return "", err
		}
		level = append(level, node)
	}

	for len(level) > 1 {
		next := make([]dagNode, 0, (len(level)+maxLinks-1)/maxLinks)
		for start := 0; start < len(level); start += maxLinks {
			end := min(start+maxLinks, len(level))
			node, err := parentNode(level[start:end])
			if err != nil {
				return "", err
			}
			next = append(next, node)
		}
		level = next
	}
	return cid.NewCidV0(level[0].hash).String(), nil
}

func leafNode(data []byte) (dagNode, error) {
	var fs []byte
	fs = protowire.AppendTag(fs, 1, protowire.VarintType)
	fs = protowire.AppendVarint(fs, unixfsTypeFile)
	if len(data) > 0 {
		fs = protowire.AppendTag(fs, 2, protowire.BytesType)
		fs = protowire.AppendBytes(fs, data)
	}
	fs = protowire.AppendTag(fs, 3, protowire.VarintType)
	fs = protowire.AppendVarint(fs, uint64(len(data)))

	encoded := encodePBNode(nil, fs)
	hash, err := multihash.Sum(encoded, multihash.SHA2_256, -1)
	if err != nil {
		return dagNode{}, fmt.Errorf("multihash: %w", err)
	}
	return dagNode{hash: hash, fileSize: uint64(len(data)), treeSize: uint64(len(encoded))}, nil
}

func parentNode(children []dagNode) (dagNode, error) {
	var total uint64
	for _, child := range children {
		total += child.fileSize
	}

	var fs []byte
	fs = protowire.AppendTag(fs, 1, protowire.VarintType)
	fs = protowire.AppendVarint(fs, unixfsTypeFile)
	fs = protowire.AppendTag(fs, 3, protowire.VarintType)
	fs = protowire.AppendVarint(fs, total)
	for _, child := range children {
		fs = protowire.AppendTag(fs, 4, protowire.VarintType)
		fs = protowire.AppendVarint(fs, child.fileSize)
	}

	encoded := encodePBNode(children, fs)
	hash, err := multihash.Sum(encoded, multihash.SHA2_256, -1)
	if err != nil {
		return dagNode{}, fmt.Errorf("multihash: %w", err)
	}
	treeSize := uint64(len(encoded))
	for _, child := range children {
		treeSize += child.treeSize
	}
	return dagNode{hash: hash, fileSize: total, treeSize: treeSize}, nil
}

// encodePBNode writes a dag-pb PBNode: links (field 2) precede data (field 1).
// Links always carry an explicit empty name, as the IPFS importer emits.
func encodePBNode(links []dagNode, data []byte) []byte {
	var out []byte
	for _, link := range links {
		var l []byte
		l = protowire.AppendTag(l, 1, protowire.BytesType)
		l = protowire.AppendBytes(l, link.hash)
		l = protowire.AppendTag(l, 2, protowire.BytesType)
		l = protowire.AppendString(l, "")
		l = protowire.AppendTag(l, 3, protowire.VarintType)
		l = protowire.AppendVarint(l, link.treeSize)

		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, l)
	}
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, data)
	return out
}
