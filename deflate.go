//
// zlib streams for image data and compressed text/profile chunks
//
// PNG Second Edition, deflate/inflate compression
// https://www.w3.org/TR/2003/REC-PNG-20031110/#10Compression
//

package pngstream

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// CompressionStrategy selects how the deflate encoder is driven.
type CompressionStrategy int

const (
	StrategyDefault CompressionStrategy = iota
	// StrategyFiltered keeps the configured level but never goes above 6.
	StrategyFiltered
	// StrategyHuffmanOnly disables match searching entirely.
	StrategyHuffmanOnly
)

func (s CompressionStrategy) String() string {
	switch s {
	case StrategyDefault:
		return "default"
	case StrategyFiltered:
		return "filtered"
	case StrategyHuffmanOnly:
		return "huffman"
	}
	return "unknown"
}

// ParseCompressionStrategy accepts the names printed by String.
func ParseCompressionStrategy(s string) (CompressionStrategy, bool) {
	for _, st := range []CompressionStrategy{StrategyDefault, StrategyFiltered, StrategyHuffmanOnly} {
		if st.String() == s {
			return st, true
		}
	}
	return StrategyDefault, false
}

// zlibLevel maps a 0..9 effort level plus a strategy to an encoder level.
func zlibLevel(level int, strategy CompressionStrategy) int {
	if level < 0 || level > 9 {
		level = zlib.DefaultCompression
	}
	switch strategy {
	case StrategyHuffmanOnly:
		return zlib.HuffmanOnly
	case StrategyFiltered:
		if level == zlib.DefaultCompression || level > 6 {
			return 6
		}
	}
	return level
}

// newDeflater opens a zlib stream over w.
func newDeflater(w io.Writer, level int, strategy CompressionStrategy) (*zlib.Writer, error) {
	zw, err := zlib.NewWriterLevel(w, zlibLevel(level, strategy))
	if err != nil {
		return nil, formatErr("bad compression level %d", level)
	}
	return zw, nil
}

// newInflater opens a zlib stream over r. A broken zlib header is a format
// error, anything else from the source is an i/o error.
func newInflater(r io.Reader) (io.ReadCloser, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, classifyInflateErr(err, "opening zlib stream")
	}
	return zr, nil
}

func classifyInflateErr(err error, what string) error {
	if isClassified(err) {
		return err
	}
	var corrupt flate.CorruptInputError
	var internal flate.InternalError
	switch {
	case err == zlib.ErrHeader, err == zlib.ErrChecksum, err == zlib.ErrDictionary:
		return formatErr("%s: %v", what, err)
	case err == io.EOF, err == io.ErrUnexpectedEOF:
		return formatErr("%s: compressed data truncated", what)
	case errors.As(err, &corrupt), errors.As(err, &internal):
		return formatErr("%s: %v", what, err)
	}
	return ioErr(err, "%s", what)
}

// compressBytes deflates a whole buffer, used by zTXt, iTXt and iCCP.
func compressBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := newDeflater(&buf, zlib.BestCompression, StrategyDefault)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, ioErr(err, "deflating")
	}
	if err := zw.Close(); err != nil {
		return nil, ioErr(err, "deflating")
	}
	return buf.Bytes(), nil
}

// decompressBytes inflates a whole buffer, refusing output beyond limit bytes
// when limit > 0.
func decompressBytes(data []byte, limit int64) ([]byte, error) {
	zr, err := newInflater(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var src io.Reader = zr
	if limit > 0 {
		src = io.LimitReader(zr, limit+1)
	}
	out, err := io.ReadAll(src)
	if err != nil {
		return nil, classifyInflateErr(err, "inflating chunk")
	}
	if limit > 0 && int64(len(out)) > limit {
		return nil, capacityErr("inflated chunk exceeds %d bytes", limit)
	}
	return out, nil
}
