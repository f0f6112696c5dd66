package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// The following constants mirror the on-disk IPF layout documented in
// internal/archive; they are duplicated here (rather than imported, since
// they're unexported) purely to synthesize a test archive file.
const (
	footerSize     = 24
	entryFixedSize = 20
	magic          = 0x00465049

	offFileNameLength    = 0
	offCompressedSize    = 2
	offUncompressedSize  = 6
	offDataOffset        = 10
	offArchiveNameLength = 14
	offCRC32             = 16

	offEntryCount      = 0
	offDirectoryOffset = 2
	offMagic           = 6
	offBaseRevision    = 10
	offSubVersion      = 14
)

// buildArchive assembles a minimal single-entry IPF archive. The test
// below gives it a jpg entry, an interesting extension that is also
// clear-stored, so run()'s extract path writes it out verbatim
// without needing the cipher or zlib adapter.
func buildArchive(archiveName, fileName string, data []byte) []byte {
	var body bytes.Buffer
	body.Write(data)

	dirOffset := uint32(body.Len())
	var rec [entryFixedSize]byte
	binary.LittleEndian.PutUint16(rec[offFileNameLength:], uint16(len(fileName)))
	binary.LittleEndian.PutUint32(rec[offCompressedSize:], uint32(len(data)))
	binary.LittleEndian.PutUint32(rec[offUncompressedSize:], uint32(len(data)))
	binary.LittleEndian.PutUint32(rec[offDataOffset:], 0)
	binary.LittleEndian.PutUint16(rec[offArchiveNameLength:], uint16(len(archiveName)))
	body.Write(rec[:])
	body.WriteString(archiveName)
	body.WriteString(fileName)

	var footer [footerSize]byte
	binary.LittleEndian.PutUint16(footer[offEntryCount:], 1)
	binary.LittleEndian.PutUint32(footer[offDirectoryOffset:], dirOffset)
	binary.LittleEndian.PutUint32(footer[offMagic:], magic)
	body.Write(footer[:])
	return body.Bytes()
}

// TestRunExtractDefaultsOutputDirToInputBasename exercises the
// no-output_dir case: spec.md §6 requires it to default to
// <input_basename_without_extension>/, not to the current directory.
func TestRunExtractDefaultsOutputDirToInputBasename(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(wd)

	data := []byte("jpg bytes stored in clear")
	arc := buildArchive("sample.ipf", "icon.jpg", data)
	if err := os.WriteFile("sample.ipf", arc, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := run("sample.ipf", "", false, false, true, false, ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join("sample", "sample.ipf", "icon.jpg"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("contents = %q, want %q", got, data)
	}
}
