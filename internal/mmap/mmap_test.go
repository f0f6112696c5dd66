package mmap

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.ipf")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenReadOnlyExposesContent(t *testing.T) {
	want := []byte("hello mmap world")
	path := writeTempFile(t, want)

	m, err := Open(path, ReadOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if string(m.Bytes()) != string(want) {
		t.Fatalf("Bytes() = %q, want %q", m.Bytes(), want)
	}
}

func TestReadWriteMutationPersistsAfterSync(t *testing.T) {
	path := writeTempFile(t, []byte("AAAAAAAA"))

	m, err := Open(path, ReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	copy(m.Bytes(), "BBBB")
	if err := m.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "BBBBAAAA" {
		t.Fatalf("file contents = %q, want %q", got, "BBBBAAAA")
	}
}

func TestOpenRejectsEmptyFile(t *testing.T) {
	path := writeTempFile(t, nil)
	if _, err := Open(path, ReadOnly); err == nil {
		t.Fatalf("Open(empty file) succeeded, want error")
	}
}

func TestOpenRejectsMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.ipf"), ReadOnly); err == nil {
		t.Fatalf("Open(missing file) succeeded, want error")
	}
}
