package blob

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// mmapThreshold is the file size above which we memory-map instead of
// buffering. Files smaller than this are read into an owned buffer.
const mmapThreshold = 10 * 1024 * 1024 // 10 MiB

// LoadedFile is a file's contents, held either as an owned buffer (small
// files) or a read-only memory map (large files). Every FileSpan cut from
// that file shares it through an ordinary pointer; there is no reference
// count. A buffer is reclaimed by the garbage collector once nothing refers
// to it, while a memory map stays mapped until Close.
type LoadedFile struct {
	buf []byte
	mm  mmap.MMap
	fh  *os.File
}

// Load reads path into a LoadedFile, buffering small files and
// memory-mapping large ones.
func Load(path string) (*LoadedFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	fi, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, errors.Wrapf(err, "stat'ing %s", path)
	}

	if fi.Size() < mmapThreshold {
		defer fh.Close()
		buf := make([]byte, fi.Size())
		if _, err := io.ReadFull(fh, buf); err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		return &LoadedFile{buf: buf}, nil
	}

	if fi.Size() == 0 {
		fh.Close()
		return &LoadedFile{buf: []byte{}}, nil
	}

	m, err := mmap.Map(fh, mmap.RDONLY, 0)
	if err != nil {
		fh.Close()
		return nil, errors.Wrapf(err, "memory-mapping %s", path)
	}
	return &LoadedFile{mm: m, fh: fh}, nil
}

// Bytes returns the file's full contents.
func (f *LoadedFile) Bytes() []byte {
	if f.mm != nil {
		return f.mm
	}
	return f.buf
}

// Close releases the memory map (if any) and closes the underlying file
// handle. Callers share a *LoadedFile through ordinary Go references (the
// chunker keeps one alive per FileSpan it hands out); Close should be
// called once every span derived from this file has been consumed by the
// pack writer.
func (f *LoadedFile) Close() error {
	if f.mm != nil {
		if err := f.mm.Unmap(); err != nil {
			return err
		}
	}
	if f.fh != nil {
		return f.fh.Close()
	}
	return nil
}

// FileSpan is a [start, end) byte range into a shared LoadedFile.
type FileSpan struct {
	file  *LoadedFile
	start int
	end   int
}

// NewFileSpan returns the span [start, end) of file.
func NewFileSpan(file *LoadedFile, start, end int) FileSpan {
	return FileSpan{file: file, start: start, end: end}
}

// Bytes returns the span's bytes.
func (s FileSpan) Bytes() []byte {
	return s.file.Bytes()[s.start:s.end]
}

// Len returns the span's length.
func (s FileSpan) Len() int {
	return s.end - s.start
}
