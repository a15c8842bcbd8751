package resolver_test

import (
	"testing"

	"assetmirror/internal/resolver"
)

func TestResolve(t *testing.T) {
	r := resolver.New("https://portal.example/", "https://gateway.example/ipfs/")

	tests := []struct {
		name    string
		locator string
		wantURL string
		wantTag resolver.Backend
	}{
		{"sia link", "sia://AAB4cDtpWxyz", "https://portal.example/AAB4cDtpWxyz", resolver.BackendSia},
		{"sia empty path", "sia://", "https://portal.example/", resolver.BackendSia},
		{"ipfs cid", "ipfs://QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o", "https://gateway.example/ipfs/QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o", resolver.BackendIPFS},
		{"ipfs nested path", "ipfs://Qmabc/card.png", "https://gateway.example/ipfs/Qmabc/card.png", resolver.BackendIPFS},
		{"https url", "https://cdn.example.com/abc123/resource/card.png", "https://cdn.example.com/abc123/resource/card.png", resolver.BackendCDN},
		{"http url", "http://www.example.org/x.json", "http://www.example.org/x.json", resolver.BackendCDN},
		{"http loopback with port", "http://127.0.0.1:8080/a/b.jpg", "http://127.0.0.1:8080/a/b.jpg", resolver.BackendCDN},
		{"bare host path", "cdn.example.com/abc123/nvla.json", "https://cdn.example.com/abc123/nvla.json", resolver.BackendCDN},
		{"bare starting with http lexically", "httpbin.org/get", "https://httpbin.org/get", resolver.BackendCDN},
		{"malformed scheme", "http:/missing-slash.com", "https://http:/missing-slash.com", resolver.BackendCDN},
		{"scheme without dotted host", "http://localhost/file", "https://http://localhost/file", resolver.BackendCDN},
		{"uppercase ipfs prefix is not ipfs", "IPFS://Qmabc", "https://IPFS://Qmabc", resolver.BackendCDN},
		{"empty string", "", "https://", resolver.BackendCDN},
		{"prefix only inside string", "example.com/ipfs://Qm", "https://example.com/ipfs://Qm", resolver.BackendCDN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, gotTag := r.Resolve(tt.locator)
			if gotURL != tt.wantURL {
				t.Fatalf("url: got %q want %q", gotURL, tt.wantURL)
			}
			if gotTag != tt.wantTag {
				t.Fatalf("backend: got %q want %q", gotTag, tt.wantTag)
			}
		})
	}
}

func TestResolveIsPure(t *testing.T) {
	r := resolver.New("https://portal.example/", "https://gateway.example/ipfs/")
	for i := 0; i < 3; i++ {
		url, tag := r.Resolve("ipfs://Qmabc")
		if url != "https://gateway.example/ipfs/Qmabc" || tag != resolver.BackendIPFS {
			t.Fatalf("iteration %d: unexpected result %q %q", i, url, tag)
		}
	}
}

func TestParseBackend(t *testing.T) {
	for _, value := range []string{"cdn", " IPFS ", "Sia"} {
		if _, ok := resolver.ParseBackend(value); !ok {
			t.Fatalf("expected %q to parse", value)
		}
	}
	if _, ok := resolver.ParseBackend("s3"); ok {
		t.Fatal("expected unknown backend to be rejected")
	}
}
