// Package mmap memory-maps an IPF archive file so the rest of the module
// can treat it as one flat byte slice: entry payloads become zero-copy
// views into this mapping instead of individually read buffers.
package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mode selects the protection and sharing flags for the mapping.
type Mode int

const (
	// ReadOnly is used by extraction: the archive is never modified.
	ReadOnly Mode = iota
	// ReadWrite is used by in-place decrypt/encrypt, where the cipher
	// rewrites entry payload bytes directly inside the mapping and Sync
	// flushes them back to the file.
	ReadWrite
)

// File is an open, memory-mapped archive file.
type File struct {
	f    *os.File
	data []byte
}

// Open maps the whole of path into memory under mode.
func Open(path string, mode Mode) (*File, error) {
	flag := os.O_RDONLY
	prot := unix.PROT_READ
	if mode == ReadWrite {
		flag = os.O_RDWR
		prot |= unix.PROT_WRITE
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: stat %s: %w", path, err)
	}
	size := info.Size()
	if size == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: map %s: %w", path, err)
	}

	return &File{f: f, data: data}, nil
}

// Bytes returns the mapped region. Callers must not retain slices of it
// past Close.
func (m *File) Bytes() []byte { return m.data }

// Sync flushes modified pages back to the underlying file. Only
// meaningful for a mapping opened with ReadWrite.
func (m *File) Sync() error {
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmap: msync %s: %w", m.f.Name(), err)
	}
	return nil
}

// Close unmaps the region and closes the underlying file.
func (m *File) Close() error {
	var err error
	if m.data != nil {
		if uerr := unix.Munmap(m.data); uerr != nil {
			err = fmt.Errorf("mmap: munmap %s: %w", m.f.Name(), uerr)
		}
		m.data = nil
	}
	if cerr := m.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("mmap: close %s: %w", m.f.Name(), cerr)
	}
	return err
}
