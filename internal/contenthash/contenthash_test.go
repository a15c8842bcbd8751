package contenthash_test

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ipfs/go-cid"

	"assetmirror/internal/contenthash"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestUnixFSKnownIdentifiers(t *testing.T) {
	dir := t.TempDir()
	hasher := contenthash.NewUnixFS(0)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "QmbFMke1KXqnYyBBWxB74N4c5SBnJMVAiMNRcGu6x1AwQH"},
		{"hello world", []byte("hello world\n"), "QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name, tt.data)
			got, err := hasher.Hash(context.Background(), path)
			if err != nil {
				t.Fatalf("Hash: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestUnixFSDeterministicAndSensitive(t *testing.T) {
	dir := t.TempDir()
	hasher := contenthash.NewUnixFS(0)
	data := bytes.Repeat([]byte("collectible-card-"), 4096)

	first := writeFile(t, dir, "a.bin", data)
	second := writeFile(t, dir, "b.bin", data)

	altered := append([]byte(nil), data...)
	altered[len(altered)/2] ^= 0xff
	third := writeFile(t, dir, "c.bin", altered)

	ctx := context.Background()
	h1, err := hasher.Hash(ctx, first)
	if err != nil {
		t.Fatalf("hash first: %v", err)
	}
	h1again, err := hasher.Hash(ctx, first)
	if err != nil {
		t.Fatalf("hash first again: %v", err)
	}
	h2, err := hasher.Hash(ctx, second)
	if err != nil {
		t.Fatalf("hash second: %v", err)
	}
	h3, err := hasher.Hash(ctx, third)
	if err != nil {
		t.Fatalf("hash third: %v", err)
	}
	if h1 != h1again || h1 != h2 {
		t.Fatalf("expected identical bytes to hash identically: %s %s %s", h1, h1again, h2)
	}
	if h1 == h3 {
		t.Fatalf("expected single-byte change to alter hash, both %s", h1)
	}
}

// seededBytes reproduces the byte stream the IPFS importer pins its stable
// CID against: math/rand seeded with 0xdeadbeef, one Intn(255) per byte.
type seededBytes struct{ r *rand.Rand }

func (s seededBytes) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(s.r.Intn(255))
	}
	return len(p), nil
}

// cyclicBytes yields 0, 1, ..., 250, 0, 1, ... without end.
type cyclicBytes struct{ n int }

func (c *cyclicBytes) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c.n % 251)
		c.n++
	}
	return len(p), nil
}

func TestUnixFSMatchesIPFSImporter(t *testing.T) {
	const chunk = contenthash.DefaultChunkSize
	seeded := func() io.Reader { return seededBytes{rand.New(rand.NewSource(0xdeadbeef))} }
	cyclic := func() io.Reader { return &cyclicBytes{} }

	tests := []struct {
		name   string
		source func() io.Reader
		size   int64
		want   string
	}{
		{"one full chunk", seeded, chunk, "QmZsarAkLHgRn8Zux5qbHgDHsTktougoFnC98hw1bza6ks"},
		{"one byte past a chunk", seeded, chunk + 1, "QmSwSgWgsbRHBZjkofhN5vgRmmnpBTiwHN7fWEC4PJ3vWV"},
		{"ten MiB", seeded, 10 << 20, "QmZN1qquw84zhV4j6vT56tCcmFxaDaySL1ezTXFvMdNmrK"},
		{"full root fan-out", cyclic, 174 * chunk, "QmXCym15aFeWjAWyPFaAgwVmkuKB7EBsV77Skt54KmxChF"},
		{"second tree level", cyclic, 175*chunk + 5, "QmagSFfvPvAFXZm9mwAVndNCzXpY4nHRu58riErtS5tf8K"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := contenthash.NewUnixFS(0).Sum(context.Background(), io.LimitReader(tt.source(), tt.size))
			if err != nil {
				t.Fatalf("Sum: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestUnixFSMultiLevelTree(t *testing.T) {
	dir := t.TempDir()
	// 4-byte chunks force more than maxLinks leaves and a second tree level.
	small := contenthash.NewUnixFS(4)
	data := bytes.Repeat([]byte("abcdefgh"), 200)
	path := writeFile(t, dir, "tree.bin", data)

	ctx := context.Background()
	got, err := small.Hash(ctx, path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	again, err := small.Hash(ctx, path)
	if err != nil {
		t.Fatalf("Hash again: %v", err)
	}
	if got != again {
		t.Fatalf("multi-level hash not deterministic: %s vs %s", got, again)
	}
	single, err := contenthash.NewUnixFS(0).Hash(ctx, path)
	if err != nil {
		t.Fatalf("Hash single chunk: %v", err)
	}
	if single == got {
		t.Fatal("expected chunking to change the DAG root")
	}
	if _, err := cid.Decode(got); err != nil {
		t.Fatalf("result is not a CID: %v", err)
	}
}

func TestUnixFSHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.bin", []byte("data"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := contenthash.NewUnixFS(0).Hash(ctx, path); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestEqual(t *testing.T) {
	v0 := "QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o"
	parsed, err := cid.Decode(v0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v1 := cid.NewCidV1(cid.DagProtobuf, parsed.Hash()).String()

	if !contenthash.Equal(v0, v1) {
		t.Fatalf("expected %s and %s to be equal", v0, v1)
	}
	if !contenthash.Equal(" opaque ", "opaque") {
		t.Fatal("expected trimmed opaque identifiers to match")
	}
	if contenthash.Equal(v0, "QmbFMke1KXqnYyBBWxB74N4c5SBnJMVAiMNRcGu6x1AwQH") {
		t.Fatal("expected distinct CIDs to differ")
	}
	if contenthash.Equal("not-a-cid", "also-not") {
		t.Fatal("expected distinct opaque identifiers to differ")
	}
}

func TestNewSelectsMode(t *testing.T) {
	h, err := contenthash.New(contenthash.Options{Mode: "unixfs"})
	if err != nil {
		t.Fatalf("New unixfs: %v", err)
	}
	if _, ok := h.(*contenthash.UnixFS); !ok {
		t.Fatalf("expected *UnixFS, got %T", h)
	}
	h, err = contenthash.New(contenthash.Options{Mode: "ipfs-cli", IPFSBinary: "/opt/ipfs"})
	if err != nil {
		t.Fatalf("New ipfs-cli: %v", err)
	}
	cli, ok := h.(*contenthash.CLI)
	if !ok || cli.Binary() != "/opt/ipfs" {
		t.Fatalf("expected CLI hasher for /opt/ipfs, got %T", h)
	}
	if _, err := contenthash.New(contenthash.Options{Mode: "md5"}); err == nil {
		t.Fatal("expected unsupported mode error")
	}
}

func TestCLIUsesFinalOutputLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	stub := writeFile(t, dir, "ipfs", []byte("#!/bin/sh\necho QmChild\necho QmRoot\n"))
	if err := os.Chmod(stub, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	target := writeFile(t, dir, "card.png", []byte("png"))

	got, err := contenthash.NewCLI(stub).Hash(context.Background(), target)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if got != "QmRoot" {
		t.Fatalf("got %q want QmRoot", got)
	}
}

func TestCLIReportsFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	stub := writeFile(t, dir, "ipfs", []byte("#!/bin/sh\necho 'daemon offline' >&2\nexit 3\n"))
	if err := os.Chmod(stub, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	_, err := contenthash.NewCLI(stub).Hash(context.Background(), filepath.Join(dir, "missing"))
	if err == nil {
		t.Fatal("expected error from failing binary")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("daemon offline")) {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}
