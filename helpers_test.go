package pngstream

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var quiet = zerolog.Nop()

func quietReaderConfig() *ReaderConfig {
	cfg := DefaultReaderConfig()
	cfg.Logger = &quiet
	cfg.Unpack = true
	return &cfg
}

func quietWriterConfig() *WriterConfig {
	cfg := DefaultWriterConfig()
	cfg.Logger = &quiet
	return &cfg
}

func mustInfo(t testing.TB, cols, rows, bitDepth int, alpha, grey, indexed bool) ImageInfo {
	t.Helper()
	info, err := NewImageInfo(cols, rows, bitDepth, alpha, grey, indexed)
	require.NoError(t, err)
	return info
}

// randomRaster returns rows of unpacked samples.
func randomRaster(info ImageInfo, seed int64) [][]int {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]int, info.Rows)
	for y := range rows {
		rows[y] = make([]int, info.SamplesPerRow)
		for i := range rows[y] {
			rows[y][i] = rng.Intn(info.MaxSample() + 1)
		}
	}
	return rows
}

func greyPalette(n int) [][3]byte {
	p := make([][3]byte, n)
	for i := range p {
		v := byte(i * 255 / max(n-1, 1))
		p[i] = [3]byte{v, v, 255 - v}
	}
	return p
}

// encodeRaster writes rows with a fresh writer; setup runs before the first
// row.
func encodeRaster(t testing.TB, info ImageInfo, rows [][]int, cfg *WriterConfig, setup func(w *Writer)) []byte {
	t.Helper()
	if cfg == nil {
		cfg = quietWriterConfig()
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, info, cfg)
	require.NoError(t, err)
	if info.Indexed {
		require.NoError(t, w.SetPalette(greyPalette(1<<info.BitDepth)))
	}
	if setup != nil {
		setup(w)
	}
	for y, row := range rows {
		require.NoError(t, w.WriteRowInt(row, y))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// decodeRaster reads every row as unpacked ints.
func decodeRaster(t testing.TB, data []byte, cfg *ReaderConfig) ([][]int, *Reader) {
	t.Helper()
	if cfg == nil {
		cfg = quietReaderConfig()
	}
	r, err := NewReader(bytes.NewReader(data), cfg)
	require.NoError(t, err)
	rows := make([][]int, r.Info.Rows)
	for y := range rows {
		line, err := r.ReadRowInt(y)
		require.NoError(t, err)
		rows[y] = append([]int(nil), line.Ints...)
	}
	require.NoError(t, r.Close())
	return rows, r
}

type rawChunk struct {
	id   string
	data []byte
}

func ihdrBytes(t testing.TB, info ImageInfo, interlaced bool) []byte {
	t.Helper()
	b, err := (&HeaderChunk{Info: info, Interlaced: interlaced}).encode(nil)
	require.NoError(t, err)
	return b
}

// buildPNG frames the signature and the given chunks, nothing more.
func buildPNG(t testing.TB, chunks ...rawChunk) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(pngHeader)
	for _, c := range chunks {
		require.NoError(t, writeChunk(&buf, c.id, c.data))
	}
	return buf.Bytes()
}

func deflate(t testing.TB, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// plainImageData is the zlib stream of rows stored with filter None.
func plainImageData(t testing.TB, info ImageInfo, rows [][]int) []byte {
	t.Helper()
	var raw []byte
	line := make([]byte, info.BytesPerRow)
	for _, row := range rows {
		samplesToRaw(info.BitDepth, row, line, info.SamplesPerRow)
		raw = append(raw, 0)
		raw = append(raw, line...)
	}
	return deflate(t, raw)
}

// adam7ImageData is the zlib stream of an interlaced image, every sub-row
// stored with filter None, passes without pixels omitted.
func adam7ImageData(t testing.TB, info ImageInfo, rows [][]int) []byte {
	t.Helper()
	var raw []byte
	ch := info.Channels
	for p := 1; p <= 7; p++ {
		ps := adam7Passes[p-1]
		cols, nrows := passSize(info, p)
		if cols == 0 || nrows == 0 {
			continue
		}
		sub := make([]int, cols*ch)
		line := make([]byte, (info.BitsPerPixel*cols+7)/8)
		for sy := 0; sy < nrows; sy++ {
			y := ps.Y0 + sy*ps.DY
			for sx := 0; sx < cols; sx++ {
				x := ps.X0 + sx*ps.DX
				copy(sub[sx*ch:(sx+1)*ch], rows[y][x*ch:(x+1)*ch])
			}
			samplesToRaw(info.BitDepth, sub, line, cols*ch)
			raw = append(raw, 0)
			raw = append(raw, line...)
		}
	}
	return deflate(t, raw)
}

func simplePNG(t testing.TB, info ImageInfo, rows [][]int, extra ...rawChunk) []byte {
	t.Helper()
	chunks := []rawChunk{{ChunkIHDR, ihdrBytes(t, info, false)}}
	chunks = append(chunks, extra...)
	chunks = append(chunks,
		rawChunk{ChunkIDAT, plainImageData(t, info, rows)},
		rawChunk{ChunkIEND, nil})
	return buildPNG(t, chunks...)
}
