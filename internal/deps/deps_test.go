package deps

import (
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
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
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

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestCheckSharedLibraryFound(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libonnxruntime.so.1")
	if err := os.WriteFile(lib, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write stub lib: %v", err)
	}

	status := CheckSharedLibrary("ONNX Runtime", lib)
	if !status.Available {
		t.Fatalf("expected library to be available, got detail %q", status.Detail)
	}
}

func TestCheckSharedLibraryMissing(t *testing.T) {
	status := CheckSharedLibrary("ONNX Runtime", filepath.Join(t.TempDir(), "nope.so"))
	if status.Available {
		t.Fatal("expected missing library to report unavailable")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message for missing library")
	}
}

func TestCheckAudioDeviceRequiresNonEmptyName(t *testing.T) {
	status := CheckAudioDevice("")
	if status.Available {
		t.Fatal("expected empty device name to be reported unavailable")
	}
}
