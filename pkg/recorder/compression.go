package recorder

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressionType defines the compression algorithm to use
type CompressionType int

const (
	// NoCompression indicates no compression
	NoCompression CompressionType = iota
	// ZstdCompression indicates Zstandard compression
	ZstdCompression
)

// DefaultCompression is the default compression algorithm
var DefaultCompression = ZstdCompression

// ParseCompression maps "none" or "zstd" to a CompressionType
func ParseCompression(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return ZstdCompression, nil
	case "none", "off":
		return NoCompression, nil
	default:
		return NoCompression, fmt.Errorf("unknown compression %q", name)
	}
}

func (c CompressionType) String() string {
	if c == ZstdCompression {
		return "zstd"
	}
	return "none"
}

// NewCompressedWriter returns a writer that compresses data before writing.
// Each writer produces one zstd frame; frames written one after another to
// the same file decode as a single stream.
func NewCompressedWriter(w io.Writer, compressionType CompressionType) io.Writer {
	if compressionType == NoCompression {
		return w
	}
	encoder, _ := zstd.NewWriter(w)
	return encoder
}

// NewCompressedReader returns a reader that decompresses data after reading
func NewCompressedReader(r io.Reader, compressionType CompressionType) (io.Reader, error) {
	if compressionType == NoCompression {
		return r, nil
	}
	return zstd.NewReader(r)
}

// CloseCompressedWriter closes the compressed writer if needed
func CloseCompressedWriter(w io.Writer, compressionType CompressionType) error {
	if compressionType == NoCompression {
		return nil
	}
	if zw, ok := w.(*zstd.Encoder); ok {
		return zw.Close()
	}
	return nil
}

// FlushCompressedWriter pushes buffered data out as a complete block
func FlushCompressedWriter(w io.Writer) error {
	if zw, ok := w.(*zstd.Encoder); ok {
		return zw.Flush()
	}
	return nil
}

// CloseCompressedReader releases the decoder behind a compressed reader
func CloseCompressedReader(r io.Reader) {
	if zr, ok := r.(*zstd.Decoder); ok {
		zr.Close()
	}
}
