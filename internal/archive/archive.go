// Package archive implements the IPF container parser: locating the
// trailing footer of a memory-mapped archive, iterating its entry
// directory, and yielding per-entry byte ranges as views into the caller's
// buffer. It never decrypts or decompresses; that is the extract
// driver's job (see the extract package).
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	footerSize     = 24 // fixed trailer: entry count, directory offset, magic, revision, subversion, reserved
	entryFixedSize = 20 // fixed portion of one directory record, before the variable name fields
	maxNameLength  = 1024

	// magic identifies the trailing footer as belonging to an IPF archive.
	// Stored little-endian as the four bytes "IPF\x00".
	magic uint32 = 0x00465049
)

var (
	ErrMalformedFooter  = errors.New("archive: malformed footer")
	ErrEntryOutOfBounds = errors.New("archive: entry out of bounds")
	ErrNameTooLong      = errors.New("archive: entry name too long")
)

// footer field offsets within the trailing footerSize-byte region.
const (
	offEntryCount      = 0
	offDirectoryOffset = 2
	offMagic           = 6
	offBaseRevision    = 10
	offSubVersion      = 14
	// 18..24 is reserved/unused padding to round the footer out to 24 bytes.
)

// entry fixed-record field offsets, relative to the start of the record.
const (
	offFileNameLength    = 0
	offCompressedSize    = 2
	offUncompressedSize  = 6
	offDataOffset        = 10
	offArchiveNameLength = 14
	offCRC32             = 16
)

// Footer carries the parsed trailer fields a caller may want to inspect,
// e.g. to report or gate on archive revision, without reaching into the
// on-disk layout.
type Footer struct {
	EntryCount      uint16
	DirectoryOffset uint32
	BaseRevision    uint32
	SubVersion      uint32
}

// Entry is one logical file inside an IPF archive: a directory record plus
// the byte range of its still-encrypted, still-compressed payload. Data is
// a view into the buffer passed to Read; it is never copied.
type Entry struct {
	ArchiveName      string
	FileName         string
	UncompressedSize uint32
	CRC32            uint32
	Data             []byte
}

// Visitor is invoked once per entry, in directory order. Returning
// cont=false stops iteration early without that being an error.
type Visitor func(e Entry) (cont bool, err error)

// ReadFooter locates and validates the trailing footer of buf without
// touching the directory.
func ReadFooter(buf []byte) (Footer, error) {
	if len(buf) < footerSize {
		return Footer{}, fmt.Errorf("%w: buffer of %d bytes shorter than footer (%d)", ErrMalformedFooter, len(buf), footerSize)
	}
	tail := buf[len(buf)-footerSize:]

	gotMagic := binary.LittleEndian.Uint32(tail[offMagic:])
	if gotMagic != magic {
		return Footer{}, fmt.Errorf("%w: bad magic %#08x, want %#08x", ErrMalformedFooter, gotMagic, magic)
	}

	f := Footer{
		EntryCount:      binary.LittleEndian.Uint16(tail[offEntryCount:]),
		DirectoryOffset: binary.LittleEndian.Uint32(tail[offDirectoryOffset:]),
		BaseRevision:    binary.LittleEndian.Uint32(tail[offBaseRevision:]),
		SubVersion:      binary.LittleEndian.Uint32(tail[offSubVersion:]),
	}

	footerStart := int64(len(buf) - footerSize)
	minDirectorySpan := int64(f.EntryCount)*int64(entryFixedSize) + int64(f.DirectoryOffset)
	if minDirectorySpan > footerStart {
		return Footer{}, fmt.Errorf("%w: %d entries at offset %d overrun footer at %d", ErrMalformedFooter, f.EntryCount, f.DirectoryOffset, footerStart)
	}
	return f, nil
}

// Read walks the footer, then enumerates entries in directory order,
// invoking visit for each. It returns an error if the footer is malformed
// or any entry's declared byte range escapes buf; visit's own error, if
// any, is returned unwrapped so callers can inspect it with errors.As.
func Read(buf []byte, visit Visitor) error {
	footer, err := ReadFooter(buf)
	if err != nil {
		return err
	}

	footerStart := int64(len(buf) - footerSize)
	cursor := int64(footer.DirectoryOffset)

	for i := uint16(0); i < footer.EntryCount; i++ {
		if cursor+entryFixedSize > footerStart {
			return fmt.Errorf("%w: entry %d fixed record overruns directory at %d", ErrEntryOutOfBounds, i, footerStart)
		}
		rec := buf[cursor : cursor+entryFixedSize]

		fileNameLen := binary.LittleEndian.Uint16(rec[offFileNameLength:])
		compressedSize := binary.LittleEndian.Uint32(rec[offCompressedSize:])
		uncompressedSize := binary.LittleEndian.Uint32(rec[offUncompressedSize:])
		dataOffset := binary.LittleEndian.Uint32(rec[offDataOffset:])
		archiveNameLen := binary.LittleEndian.Uint16(rec[offArchiveNameLength:])
		crc := binary.LittleEndian.Uint32(rec[offCRC32:])
		cursor += entryFixedSize

		if archiveNameLen > maxNameLength || fileNameLen > maxNameLength {
			return fmt.Errorf("%w: entry %d: archive name %d bytes, file name %d bytes", ErrNameTooLong, i, archiveNameLen, fileNameLen)
		}

		namesEnd := cursor + int64(archiveNameLen) + int64(fileNameLen)
		if namesEnd > footerStart {
			return fmt.Errorf("%w: entry %d name fields overrun directory at %d", ErrEntryOutOfBounds, i, footerStart)
		}
		archiveName := string(buf[cursor : cursor+int64(archiveNameLen)])
		cursor += int64(archiveNameLen)
		fileName := string(buf[cursor : cursor+int64(fileNameLen)])
		cursor += int64(fileNameLen)

		dataEnd := int64(dataOffset) + int64(compressedSize)
		if dataEnd > int64(footer.DirectoryOffset) || dataEnd > int64(len(buf)) {
			return fmt.Errorf("%w: entry %d (%q) data [%d,%d) overruns directory at %d", ErrEntryOutOfBounds, i, fileName, dataOffset, dataEnd, footer.DirectoryOffset)
		}

		e := Entry{
			ArchiveName:      archiveName,
			FileName:         fileName,
			UncompressedSize: uncompressedSize,
			CRC32:            crc,
			Data:             buf[dataOffset:dataEnd],
		}
		cont, err := visit(e)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
