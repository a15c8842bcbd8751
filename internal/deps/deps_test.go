package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank command status: %#v", results[2])
	}
}

func TestIPFSRequirement(t *testing.T) {
	req := IPFSRequirement("", false)
	if req.Command != DefaultIPFSBinary || !req.Optional {
		t.Fatalf("unexpected optional requirement: %#v", req)
	}
	req = IPFSRequirement(" /opt/ipfs ", true)
	if req.Command != "/opt/ipfs" || req.Optional {
		t.Fatalf("unexpected required requirement: %#v", req)
	}
}

func TestIPFSVersion(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "ipfs")
	script := []byte("#!/bin/sh\nif [ \"$1\" = version ]; then echo 'ipfs version 0.29.0'; exit 0; fi\nexit 1\n")
	if err := os.WriteFile(stub, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	version, err := IPFSVersion(context.Background(), stub)
	if err != nil {
		t.Fatalf("IPFSVersion: %v", err)
	}
	if version != "ipfs version 0.29.0" {
		t.Fatalf("unexpected version %q", version)
	}

	if _, err := IPFSVersion(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
