package pngstream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("Comment: made with pngstream\n"), 50)
	z, err := compressBytes(data)
	require.NoError(t, err)
	assert.Less(t, len(z), len(data))

	back, err := decompressBytes(z, 0)
	require.NoError(t, err)
	assert.Equal(t, data, back)
}

func TestDecompressLimit(t *testing.T) {
	z, err := compressBytes(make([]byte, 4096))
	require.NoError(t, err)

	_, err = decompressBytes(z, 4095)
	assert.True(t, errors.Is(err, ErrCapacity))

	out, err := decompressBytes(z, 4096)
	require.NoError(t, err)
	assert.Len(t, out, 4096)
}

func TestDecompressGarbage(t *testing.T) {
	_, err := decompressBytes([]byte{1, 2, 3, 4, 5}, 0)
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)

	z, err := compressBytes([]byte("truncate me please, truncate me please"))
	require.NoError(t, err)
	_, err = decompressBytes(z[:len(z)-6], 0)
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
}

func TestZlibLevel(t *testing.T) {
	assert.Equal(t, 9, zlibLevel(9, StrategyDefault))
	assert.Equal(t, 6, zlibLevel(9, StrategyFiltered))
	assert.Equal(t, 3, zlibLevel(3, StrategyFiltered))
	assert.Equal(t, zlib.HuffmanOnly, zlibLevel(9, StrategyHuffmanOnly))
	assert.Equal(t, zlib.DefaultCompression, zlibLevel(42, StrategyDefault))
}

func TestParseCompressionStrategy(t *testing.T) {
	for _, s := range []CompressionStrategy{StrategyDefault, StrategyFiltered, StrategyHuffmanOnly} {
		got, ok := ParseCompressionStrategy(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseCompressionStrategy("fast")
	assert.False(t, ok)
}
