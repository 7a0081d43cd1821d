package rframe

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the stream codec of a delimited file.
type Compression int

const (
	NoCompression Compression = iota
	Gzip
	Zstd
	LZ4
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return "none"
	}
}

// CompressionFromPath picks the codec from the file extension.
func CompressionFromPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".lz4":
		return LZ4
	default:
		return NoCompression
	}
}

type stackedCloser struct {
	io.Reader
	io.Writer
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openCompressed opens path for reading, decoding it by extension.
func openCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapError("open", ErrParse, err)
	}
	s := &stackedCloser{closers: []func() error{f.Close}}
	switch CompressionFromPath(path) {
	case Gzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, wrapError("open", ErrParse, err)
		}
		s.Reader = zr
		s.closers = append([]func() error{zr.Close}, s.closers...)
	case Zstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, wrapError("open", ErrParse, err)
		}
		s.Reader = zr
		s.closers = append([]func() error{func() error { zr.Close(); return nil }}, s.closers...)
	case LZ4:
		s.Reader = lz4.NewReader(f)
	default:
		s.Reader = f
	}
	return s, nil
}

// createCompressed creates path for writing, encoding it by extension.
// Close flushes the encoder before closing the file.
func createCompressed(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, wrapError("create", ErrParse, err)
	}
	s := &stackedCloser{closers: []func() error{f.Close}}
	switch CompressionFromPath(path) {
	case Gzip:
		zw := gzip.NewWriter(f)
		s.Writer = zw
		s.closers = append([]func() error{zw.Close}, s.closers...)
	case Zstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, wrapError("create", ErrParse, err)
		}
		s.Writer = zw
		s.closers = append([]func() error{zw.Close}, s.closers...)
	case LZ4:
		zw := lz4.NewWriter(f)
		s.Writer = zw
		s.closers = append([]func() error{zw.Close}, s.closers...)
	default:
		s.Writer = f
	}
	return s, nil
}
