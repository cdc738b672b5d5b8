package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectInputsSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cas.txt")
	if err := os.WriteFile(path, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := collectInputs(path)
	if err != nil {
		t.Fatalf("collectInputs failed: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Errorf("expected [%s], got %v", path, files)
	}
}

func TestCollectInputsDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.cas", "ignored.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := collectInputs(dir)
	if err != nil {
		t.Fatalf("collectInputs failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 statement files, got %v", files)
	}
}

func TestCollectInputsMissingPath(t *testing.T) {
	if _, err := collectInputs(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestRunAddMappingRejectsBadFormat(t *testing.T) {
	if err := runAddMapping(nil, "no separator here"); err == nil {
		t.Error("expected error for mapping without '='")
	}
}
