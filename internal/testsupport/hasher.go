package testsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
)

// FakeHasher is an in-memory contenthash.Hasher keyed by file bytes.
type FakeHasher struct {
	mu    sync.Mutex
	calls int
	paths []string
}

// FakeHash returns the identifier FakeHasher produces for data.
func FakeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return "fake-" + hex.EncodeToString(sum[:])
}

// Hash implements contenthash.Hasher.
func (f *FakeHasher) Hash(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls++
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	return FakeHash(data), nil
}

// Calls reports how many files were hashed.
func (f *FakeHasher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Paths lists every hashed path in call order.
func (f *FakeHasher) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}
