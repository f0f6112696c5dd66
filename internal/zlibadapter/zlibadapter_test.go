package zlibadapter

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib.Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib.Close: %v", err)
	}
	return buf.Bytes()
}

func TestDecompressRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("ies table bytes, ies table bytes "), 50)
	src := compress(t, want)

	got, err := Decompress(src, len(want))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Decompress round trip mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestDecompressEmptyPayload(t *testing.T) {
	src := compress(t, nil)
	got, err := Decompress(src, 0)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Decompress(empty) = %d bytes, want 0", len(got))
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress([]byte("not a zlib stream at all"), 0)
	if !errors.Is(err, ErrDecompressFailed) {
		t.Fatalf("Decompress error = %v, want ErrDecompressFailed", err)
	}
}

func TestDecompressRejectsTruncatedStream(t *testing.T) {
	src := compress(t, bytes.Repeat([]byte{0x42}, 1000))
	truncated := src[:len(src)/2]

	_, err := Decompress(truncated, 1000)
	if !errors.Is(err, ErrDecompressFailed) {
		t.Fatalf("Decompress error = %v, want ErrDecompressFailed", err)
	}
}
