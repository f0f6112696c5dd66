// Package extract drives the three top-level archive actions: unpacking
// an archive to a directory tree (converting IES entries to CSV),
// in-place decryption, and in-place re-encryption. It is the "everything
// else" layer around the archive reader, cipher, table decoder, and zlib
// adapter: filesystem traversal, directory creation, CSV printing, and
// MD5 placeholder emission for entries the driver doesn't decode.
package extract

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ipf-tools/ipfunpacker/internal/archive"
	"github.com/ipf-tools/ipfunpacker/internal/cipher"
	"github.com/ipf-tools/ipfunpacker/internal/ies"
	"github.com/ipf-tools/ipfunpacker/internal/zlibadapter"
)

var (
	// ErrPath is returned when an entry's filename can't be turned into a
	// safe on-disk path (e.g. it resolves outside the output root).
	ErrPath = errors.New("extract: path error")
	// ErrCipherMisuse is returned when decrypt/encrypt is asked to run the
	// stream cipher over a zero-length, non-exempt entry, which should
	// never occur in a well-formed archive.
	ErrCipherMisuse = errors.New("extract: cipher invoked on empty entry")
	// ErrCRCMismatch is returned when -verify-crc is set and an entry's
	// stored directory CRC32 doesn't match its on-disk payload bytes.
	ErrCRCMismatch = errors.New("extract: entry CRC32 mismatch")
)

// interestingExts are extensions the driver does anything with beyond
// hashing a placeholder. clearExts are extensions stored unencrypted in
// the archive; jpg is deliberately in both, so it is interesting enough
// to be written out but never fed through the cipher or zlib.
var (
	interestingExts = map[string]bool{"xml": true, "ies": true, "jpg": true, "png": true, "tga": true, "lua": true}
	clearExts       = map[string]bool{"mp3": true, "fsb": true, "jpg": true}
)

func extOf(filename string) string {
	ext := filepath.Ext(filename)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func isInteresting(ext string) bool { return interestingExts[ext] }
func isClear(ext string) bool       { return clearExts[ext] }

// nativePath turns an in-archive, backslash-separated name into a
// filesystem-safe relative path, rejecting anything that would escape
// the output root.
func nativePath(name string) (string, error) {
	native := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	cleaned := filepath.Clean(native)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%w: entry name %q escapes output root", ErrPath, name)
	}
	return cleaned, nil
}

// Stats tallies what an Extract run did, for a final summary log line.
type Stats struct {
	Decoded   int
	Written   int
	Placeheld int
	Failed    int
}

// Extract walks arc's entries and unpacks them under outputRoot, in a
// subdirectory named after each entry's own archive-name field (not the
// input file path, since an archive's entries may in principle carry
// different archive names). Per-entry failures are logged and skipped;
// the run only fails outright on a malformed footer/directory. When
// verifyCRC is set, each entry's stored directory CRC32 is checked
// against its on-disk (still encrypted/compressed) bytes before
// anything is decoded; a mismatch counts as a per-entry failure like any
// other.
func Extract(arc []byte, outputRoot string, verifyCRC bool) (Stats, error) {
	var stats Stats

	err := archive.Read(arc, func(e archive.Entry) (bool, error) {
		if err := extractEntry(e, outputRoot, verifyCRC, &stats); err != nil {
			log.Printf("extract: skipping %q in %q: %v", e.FileName, e.ArchiveName, err)
			stats.Failed++
		}
		return true, nil
	})
	if err != nil {
		return stats, fmt.Errorf("extract: %w", err)
	}
	return stats, nil
}

func extractEntry(e archive.Entry, outputRoot string, verifyCRC bool, stats *Stats) error {
	if verifyCRC {
		if got := crc32.ChecksumIEEE(e.Data); got != e.CRC32 {
			return fmt.Errorf("%w: entry %q in %q: got %#08x, directory says %#08x", ErrCRCMismatch, e.FileName, e.ArchiveName, got, e.CRC32)
		}
	}

	rel, err := nativePath(e.FileName)
	if err != nil {
		return err
	}
	outPath := filepath.Join(outputRoot, e.ArchiveName, rel)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", outPath, err)
	}

	ext := extOf(e.FileName)
	if !isInteresting(ext) {
		digest := md5.Sum(e.Data)
		if err := os.WriteFile(outPath, []byte(hex.EncodeToString(digest[:])), 0o644); err != nil {
			return fmt.Errorf("write placeholder for %q: %w", outPath, err)
		}
		stats.Placeheld++
		return nil
	}

	if isClear(ext) {
		if err := os.WriteFile(outPath, e.Data, 0o644); err != nil {
			return fmt.Errorf("write %q: %w", outPath, err)
		}
		stats.Written++
		return nil
	}

	plain := append([]byte(nil), e.Data...)
	cipher.Decrypt(plain)
	decompressed, err := zlibadapter.Decompress(plain, int(e.UncompressedSize))
	if err != nil {
		return fmt.Errorf("decompress %q: %w", outPath, err)
	}

	if ext == "ies" {
		var buf bytes.Buffer
		err := ies.Decode(decompressed, func(t *ies.Table) (bool, error) {
			writeCSV(&buf, t)
			return true, nil
		})
		if err != nil {
			return fmt.Errorf("decode table %q: %w", outPath, err)
		}
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %q: %w", outPath, err)
		}
		stats.Decoded++
		return nil
	}

	if err := os.WriteFile(outPath, decompressed, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", outPath, err)
	}
	stats.Written++
	return nil
}

// writeCSV renders a table as columns in declaration order, comma
// separated, one row per line. Floats that equal their integer
// truncation print with no decimal point; strings are double-quoted
// with no escaping of interior quotes.
func writeCSV(w *bytes.Buffer, t *ies.Table) {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	w.WriteString(strings.Join(names, ","))
	w.WriteByte('\n')

	for _, row := range t.Rows {
		fields := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			if c.IsFloat {
				fields[i] = formatFloat(c.Float)
			} else {
				fields[i] = `"` + c.Str + `"`
			}
		}
		w.WriteString(strings.Join(fields, ","))
		w.WriteByte('\n')
	}
}

func formatFloat(v float32) string {
	if v == float32(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// Crypt runs the stream cipher over every non-exempt entry's payload
// bytes in place, within mapped (read-write) arc. encrypt selects the
// direction: true encrypts, false decrypts. Any per-entry failure aborts the whole run, since
// a partially (de)crypted archive is corrupt.
func Crypt(arc []byte, encrypt bool) error {
	return archive.Read(arc, func(e archive.Entry) (bool, error) {
		ext := extOf(e.FileName)
		if isClear(ext) {
			return true, nil
		}
		if len(e.Data) == 0 {
			return false, fmt.Errorf("%w: entry %q in %q", ErrCipherMisuse, e.FileName, e.ArchiveName)
		}
		if encrypt {
			cipher.Encrypt(e.Data)
		} else {
			cipher.Decrypt(e.Data)
		}
		return true, nil
	})
}
