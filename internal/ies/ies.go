// Package ies decodes the IES tabular format embedded as entries inside
// IPF archives: a schema-driven variable-width row/column layout with
// obfuscated column names, mixed float/string cells, variable-length
// string data after each row's fixed stride, and a per-row tail of
// option flags.
package ies

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	headerSize           = 128
	displayNameSize      = 64
	columnDescriptorSize = 134
	columnNameSize       = 64
)

// header field offsets, relative to the start of the 128-byte region.
const (
	offDisplayName  = 0
	offRowCount     = 64
	offColumnCounts = 68 // packed: low 16 bits = value columns, high 16 bits = bool columns
	offRowStride    = 72
	offDataSize     = 76
	offReserved     = 80 // first byte: has-row-id-region flag; rest unused
)

// column descriptor field offsets, relative to the start of one record.
const (
	offName1     = 0
	offName2     = 64
	offType      = 128
	offSortOrder = 130
	offRowOffset = 132
)

const (
	typeFloat   = 0
	typeString1 = 1
	typeString2 = 2
)

var (
	ErrBadHeader       = errors.New("ies: bad header")
	ErrBadColumnType   = errors.New("ies: bad column type")
	ErrCellOutOfBounds = errors.New("ies: cell out of bounds")
	ErrVisitorStopped  = errors.New("ies: visitor stopped")
)

// Column describes one declared column, in declaration (file) order.
type Column struct {
	Name      string
	Name2     string
	Type      uint16 // 0 = float, 1 or 2 = string
	SortOrder uint16
	RowOffset uint16
}

// IsString reports whether the column holds string cells.
func (c Column) IsString() bool { return c.Type == typeString1 || c.Type == typeString2 }

// Cell is one row value, aligned to its column by position.
type Cell struct {
	Float   float32
	Str     string
	IsFloat bool
}

// Row holds one row's cells, indexed the same way as Table.Columns.
type Row struct {
	Cells []Cell
}

// Table is a fully materialized IES table: columns in declaration order
// and rows as an indexed cell sequence aligned to those columns.
type Table struct {
	DisplayName string
	Columns     []Column
	Rows        []Row
}

// Visitor is called exactly once with the decoded table. Returning
// cont=false without an error still causes Decode to report
// ErrVisitorStopped, since there is only ever one call to stop at.
type Visitor func(t *Table) (cont bool, err error)

// Decode parses the header, deobfuscates column names, materializes the
// column table and row array, and invokes visit once with the result.
func Decode(buf []byte, visit Visitor) error {
	table, err := parse(buf)
	if err != nil {
		return err
	}
	cont, err := visit(table)
	if err != nil {
		return err
	}
	if !cont {
		return ErrVisitorStopped
	}
	return nil
}

type colMeta struct {
	Column
	declIdx int
}

func parse(buf []byte) (*Table, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: buffer of %d bytes shorter than header (%d)", ErrBadHeader, len(buf), headerSize)
	}
	hdr := buf[:headerSize]

	displayName := decodeDisplayName(hdr[offDisplayName : offDisplayName+displayNameSize])
	rowCount := binary.LittleEndian.Uint32(hdr[offRowCount:])
	columnCounts := binary.LittleEndian.Uint32(hdr[offColumnCounts:])
	valueColumnCount := uint32(columnCounts & 0xFFFF)
	boolColumnCount := uint64(columnCounts >> 16)
	rowStride := binary.LittleEndian.Uint32(hdr[offRowStride:])
	dataSize := binary.LittleEndian.Uint32(hdr[offDataSize:])
	hasRowIDs := hdr[offReserved] != 0

	rest := buf[headerSize:]
	if uint64(dataSize) > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: declared data size %d exceeds available %d bytes", ErrBadHeader, dataSize, len(rest))
	}
	body := rest[:dataSize]

	descriptorsSize := uint64(valueColumnCount) * uint64(columnDescriptorSize)
	if descriptorsSize > uint64(len(body)) {
		return nil, fmt.Errorf("%w: %d columns (%d bytes) exceed body of %d bytes", ErrBadHeader, valueColumnCount, descriptorsSize, len(body))
	}

	metas := make([]colMeta, valueColumnCount)
	cursor := uint64(0)
	for i := range metas {
		desc := body[cursor : cursor+uint64(columnDescriptorSize)]
		typeTag := binary.LittleEndian.Uint16(desc[offType:])
		if typeTag != typeFloat && typeTag != typeString1 && typeTag != typeString2 {
			return nil, fmt.Errorf("%w: column %d has type %d", ErrBadColumnType, i, typeTag)
		}
		metas[i] = colMeta{
			Column: Column{
				Name:      decodeColumnName(desc[offName1 : offName1+columnNameSize]),
				Name2:     decodeColumnName(desc[offName2 : offName2+columnNameSize]),
				Type:      typeTag,
				SortOrder: binary.LittleEndian.Uint16(desc[offSortOrder:]),
				RowOffset: binary.LittleEndian.Uint16(desc[offRowOffset:]),
			},
			declIdx: i,
		}
		cursor += uint64(columnDescriptorSize)
	}

	if hasRowIDs {
		rowIDRegion := uint64(rowCount) * 4
		if cursor+rowIDRegion > uint64(len(body)) {
			return nil, fmt.Errorf("%w: row-id region of %d bytes exceeds body of %d bytes", ErrBadHeader, rowIDRegion, len(body))
		}
		cursor += rowIDRegion
	}

	// Cells inside a row's fixed stride are addressed by RowOffset directly,
	// but the variable-length string tail that follows the stride must be
	// walked in the columns' stable sort order, not declaration order.
	walkOrder := append([]colMeta(nil), metas...)
	sort.SliceStable(walkOrder, func(i, j int) bool { return walkOrder[i].SortOrder < walkOrder[j].SortOrder })

	columns := make([]Column, len(metas))
	for _, m := range metas {
		columns[m.declIdx] = m.Column
	}

	rows := make([]Row, rowCount)
	for r := range rows {
		if cursor+uint64(rowStride) > uint64(len(body)) {
			return nil, fmt.Errorf("%w: row %d fixed region exceeds body of %d bytes", ErrCellOutOfBounds, r, len(body))
		}
		fixed := body[cursor : cursor+uint64(rowStride)]
		varCursor := cursor + uint64(rowStride)

		cells := make([]Cell, len(metas))
		for _, m := range walkOrder {
			off := uint64(m.RowOffset)
			switch m.Type {
			case typeFloat:
				if off+4 > uint64(len(fixed)) {
					return nil, fmt.Errorf("%w: row %d column %q float at offset %d exceeds stride %d", ErrCellOutOfBounds, r, m.Name, off, rowStride)
				}
				bits := binary.LittleEndian.Uint32(fixed[off:])
				cells[m.declIdx] = Cell{IsFloat: true, Float: math.Float32frombits(bits)}
			case typeString1, typeString2:
				if off+2 > uint64(len(fixed)) {
					return nil, fmt.Errorf("%w: row %d column %q length at offset %d exceeds stride %d", ErrCellOutOfBounds, r, m.Name, off, rowStride)
				}
				strLen := uint64(binary.LittleEndian.Uint16(fixed[off:]))
				if varCursor+strLen > uint64(len(body)) {
					return nil, fmt.Errorf("%w: row %d column %q string of %d bytes exceeds body", ErrCellOutOfBounds, r, m.Name, strLen)
				}
				cells[m.declIdx] = Cell{Str: string(body[varCursor : varCursor+strLen])}
				varCursor += strLen
			}
		}

		if varCursor+boolColumnCount > uint64(len(body)) {
			return nil, fmt.Errorf("%w: row %d boolean tail of %d bytes exceeds body", ErrCellOutOfBounds, r, boolColumnCount)
		}
		varCursor += boolColumnCount

		rows[r] = Row{Cells: cells}
		cursor = varCursor
	}

	return &Table{DisplayName: displayName, Columns: columns, Rows: rows}, nil
}

// decodeDisplayName reads the table's plain-text (non-obfuscated) display
// name, truncated at the first NUL.
func decodeDisplayName(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		b = b[:idx]
	}
	return string(b)
}

// deobfuscateName XORs every byte with 0x01, then swaps each adjacent byte
// pair (bytes i and i+1 for even i). This transform is its own inverse;
// applying it twice to the same buffer yields the original bytes.
func deobfuscateName(b [columnNameSize]byte) [columnNameSize]byte {
	for i := range b {
		b[i] ^= 0x01
	}
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return b
}

// decodeColumnName deobfuscates a 64-byte column name field and truncates
// it at the first NUL to recover UTF-8 text.
func decodeColumnName(raw []byte) string {
	var b [columnNameSize]byte
	copy(b[:], raw)
	b = deobfuscateName(b)
	out := b[:]
	if idx := bytes.IndexByte(out, 0); idx >= 0 {
		out = out[:idx]
	}
	return string(out)
}
