package pngstream

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scanChunks splits a PNG stream into its raw chunks.
func scanChunks(t *testing.T, data []byte) []rawChunk {
	t.Helper()
	r := bytes.NewReader(data)
	require.NoError(t, readSignature(r))
	var out []rawChunk
	for r.Len() > 0 {
		length, id, err := readChunkHeader(r)
		require.NoError(t, err)
		payload, err := readChunkPayload(r, id, length, true)
		require.NoError(t, err)
		out = append(out, rawChunk{id, payload})
	}
	return out
}

func chunkIDs(chunks []rawChunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.id
	}
	return ids
}

func TestWriterChunkPlacement(t *testing.T) {
	info := mustInfo(t, 5, 3, 4, false, false, true)
	rows := randomRaster(info, 1)
	data := encodeRaster(t, info, rows, nil, func(w *Writer) {
		require.NoError(t, w.QueueChunk(&TextChunk{Keyword: "Late", Text: "1"}, false))
		require.NoError(t, w.QueueChunk(&TextChunk{Keyword: "Early", Text: "2"}, true))
		require.NoError(t, w.SetPhysicalDPI(72))
		require.NoError(t, w.SetTransparency(&TransparencyChunk{PaletteAlpha: []byte{0, 128}}))
		require.NoError(t, w.SetGamma(0.45455))
		require.NoError(t, w.SetTime(time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC)))
	})

	ids := chunkIDs(scanChunks(t, data))
	assert.Equal(t, []string{
		"IHDR",
		"tEXt", "gAMA", // header group: priority text, then gAMA
		"PLTE",
		"pHYs", "tRNS",
		"IDAT",
		"tEXt", "tIME",
		"IEND",
	}, ids)

	got, r := decodeRaster(t, data, nil)
	assert.Equal(t, rows, got)
	m := r.Metadata()
	dpi, ok := m.Physical().DPI()
	assert.True(t, ok)
	assert.InDelta(t, 72, dpi, 0.01)
	assert.InDelta(t, 0.45455, m.Gamma().Gamma, 1e-5)
	assert.Equal(t, []byte{0, 128}, m.Transparency().PaletteAlpha)
	assert.True(t, m.Time().Time.Equal(time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC)))
	assert.Equal(t, map[string]string{"Late": "1", "Early": "2"}, m.Texts())
}

func TestWriterPaletteRules(t *testing.T) {
	grey := mustInfo(t, 2, 2, 8, false, true, false)
	w, err := NewWriter(&bytes.Buffer{}, grey, quietWriterConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, w.SetPalette(greyPalette(4)), ErrFormat)

	indexed := mustInfo(t, 2, 2, 8, false, false, true)
	w, err = NewWriter(&bytes.Buffer{}, indexed, quietWriterConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, w.WriteRowInt([]int{0, 1}, 0), ErrFormat)

	// a palette larger than the bit depth allows
	small := mustInfo(t, 2, 2, 1, false, false, true)
	w, err = NewWriter(&bytes.Buffer{}, small, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.SetPalette(greyPalette(3)))
	assert.ErrorIs(t, w.WriteRowInt([]int{0, 1}, 0), ErrFormat)
}

func TestWriterPaletteInRGB(t *testing.T) {
	info := mustInfo(t, 3, 2, 8, false, false, false)
	rows := randomRaster(info, 4)
	data := encodeRaster(t, info, rows, nil, func(w *Writer) {
		require.NoError(t, w.SetPalette(greyPalette(16)))
	})
	_, r := decodeRaster(t, data, nil)
	require.NotNil(t, r.Metadata().Palette())
	assert.Len(t, r.Metadata().Palette().Entries, 16)
}

func TestWriterRowSequence(t *testing.T) {
	info := mustInfo(t, 2, 10, 8, false, true, false)

	w, err := NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	for y := 0; y < 9; y++ {
		require.NoError(t, w.WriteRowInt([]int{y, y}, y))
	}
	assert.ErrorIs(t, w.Close(), ErrSequence)
	assert.ErrorIs(t, w.WriteRowInt([]int{0, 0}, 9), ErrSequence)

	w, err = NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteRowInt([]int{0, 0}, 0))
	assert.ErrorIs(t, w.WriteRowInt([]int{0, 0}, 2), ErrSequence)

	w, err = NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	for y := 0; y < info.Rows; y++ {
		require.NoError(t, w.WriteRowInt([]int{0, 0}, -1))
	}
	assert.ErrorIs(t, w.WriteRowInt([]int{0, 0}, -1), ErrSequence)
}

func TestWriterShortRow(t *testing.T) {
	info := mustInfo(t, 4, 1, 8, false, false, false)
	w, err := NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, w.WriteRowInt([]int{1, 2, 3}, 0), ErrFormat)
}

func TestWriterLateChunks(t *testing.T) {
	info := mustInfo(t, 2, 2, 8, false, true, false)

	w, err := NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteRowInt([]int{1, 2}, 0))
	assert.ErrorIs(t, w.SetGamma(1), ErrSequence)

	// queued too late for its position: Close reports it
	w, err = NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteRowInt([]int{1, 2}, 0))
	require.NoError(t, w.QueueChunk(NewPhysicalDPI(300), false))
	require.NoError(t, w.WriteRowInt([]int{1, 2}, 1))
	err = w.Close()
	assert.ErrorIs(t, err, ErrSequence)
	assert.Contains(t, err.Error(), ChunkPHYS)

	// but a trailing text is still fine
	var buf bytes.Buffer
	w, err = NewWriter(&buf, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteRowInt([]int{1, 2}, 0))
	require.NoError(t, w.QueueChunk(&TextChunk{Keyword: "k", Text: "v"}, false))
	require.NoError(t, w.WriteRowInt([]int{1, 2}, 1))
	require.NoError(t, w.Close())
	assert.Equal(t, []string{"IHDR", "IDAT", "tEXt", "IEND"}, chunkIDs(scanChunks(t, buf.Bytes())))
}

func TestWriterDuplicates(t *testing.T) {
	info := mustInfo(t, 2, 2, 8, false, true, false)
	w, err := NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.QueueChunk(&GammaChunk{Gamma: 1}, false))
	assert.ErrorIs(t, w.QueueChunk(&GammaChunk{Gamma: 2}, false), ErrFormat)

	w, err = NewWriter(&bytes.Buffer{}, info, quietWriterConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, w.QueueChunk(&HeaderChunk{Info: info}, false), ErrFormat)
}

func TestWriterSettersReplace(t *testing.T) {
	info := mustInfo(t, 2, 2, 8, false, true, false)
	rows := [][]int{{1, 2}, {3, 4}}
	long := strings.Repeat("lorem ipsum ", 200)
	data := encodeRaster(t, info, rows, nil, func(w *Writer) {
		require.NoError(t, w.SetGamma(1))
		require.NoError(t, w.SetGamma(0.5))
		require.NoError(t, w.SetText("Title", "first"))
		require.NoError(t, w.SetText("Title", "second"))
		require.NoError(t, w.SetText("Description", long))
		require.NoError(t, w.SetText("Author", "Łukasz"))
	})

	chunks := scanChunks(t, data)
	count := map[string]int{}
	for _, c := range chunks {
		count[c.id]++
	}
	assert.Equal(t, 1, count[ChunkGAMA])
	assert.Equal(t, 1, count[ChunkTEXT])
	assert.Equal(t, 1, count[ChunkZTXT])
	assert.Equal(t, 1, count[ChunkITXT])

	_, r := decodeRaster(t, data, nil)
	m := r.Metadata()
	assert.InDelta(t, 0.5, m.Gamma().Gamma, 1e-5)
	assert.Equal(t, map[string]string{
		"Title":       "second",
		"Description": long,
		"Author":      "Łukasz",
	}, m.Texts())
}

func TestWriterIDATSize(t *testing.T) {
	info := mustInfo(t, 40, 20, 8, false, false, false)
	rows := randomRaster(info, 11)

	cfg := quietWriterConfig()
	cfg.CompressionLevel = 0
	cfg.MaxIDATSize = 100
	data := encodeRaster(t, info, rows, cfg, nil)

	var sizes []int
	for _, c := range scanChunks(t, data) {
		if c.id == ChunkIDAT {
			sizes = append(sizes, len(c.data))
		}
	}
	require.Greater(t, len(sizes), 20)
	for _, n := range sizes[:len(sizes)-1] {
		assert.Equal(t, 100, n)
	}
	assert.LessOrEqual(t, sizes[len(sizes)-1], 100)

	got, _ := decodeRaster(t, data, nil)
	assert.Equal(t, rows, got)

	// tiny sizes fall back to the default
	cfg.MaxIDATSize = 8
	data = encodeRaster(t, info, rows, cfg, nil)
	sizes = sizes[:0]
	for _, c := range scanChunks(t, data) {
		if c.id == ChunkIDAT {
			sizes = append(sizes, len(c.data))
		}
	}
	assert.Len(t, sizes, 1)
}

func TestWriterCompressionRatio(t *testing.T) {
	info := mustInfo(t, 64, 64, 8, false, true, false)
	flat := make([][]int, info.Rows)
	for y := range flat {
		flat[y] = make([]int, info.SamplesPerRow)
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, info, quietWriterConfig())
	require.NoError(t, err)
	assert.Zero(t, w.CompressionRatio())
	for y, row := range flat {
		require.NoError(t, w.WriteRowInt(row, y))
	}
	require.NoError(t, w.Close())
	ratio := w.CompressionRatio()
	assert.Greater(t, ratio, 0.0)
	assert.Less(t, ratio, 0.1)
}

func TestWriterClosesSink(t *testing.T) {
	info := mustInfo(t, 1, 1, 8, false, true, false)
	sink := &closingBuffer{}
	w, err := NewWriter(sink, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteRowInt([]int{9}, 0))
	require.NoError(t, w.Close())
	assert.True(t, sink.closed)
	assert.ErrorIs(t, w.Close(), ErrSequence)

	got, _ := decodeRaster(t, sink.Bytes(), nil)
	assert.Equal(t, [][]int{{9}}, got)
}

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (s *closingBuffer) Close() error {
	s.closed = true
	return nil
}

func sourceWithMetadata(t *testing.T) []byte {
	info := mustInfo(t, 4, 3, 2, false, false, true)
	rows := randomRaster(info, 21)
	return simplePNG(t, info, rows,
		rawChunk{ChunkGAMA, []byte{0, 0, 0xb1, 0x8f}},
		rawChunk{ChunkPLTE, []byte{0, 0, 0, 255, 0, 0, 0, 255, 0, 0, 0, 255}},
		rawChunk{ChunkTRNS, []byte{0, 255}},
		rawChunk{ChunkPHYS, []byte{0, 0, 0x0b, 0x13, 0, 0, 0x0b, 0x13, 1}},
		rawChunk{ChunkTEXT, []byte("Software\x00test")},
		rawChunk{"prVt", []byte("opaque")})
}

func TestCopyChunks(t *testing.T) {
	src := sourceWithMetadata(t)

	copyWith := func(mask CopyMask) []string {
		r, err := NewReader(bytes.NewReader(src), quietReaderConfig())
		require.NoError(t, err)

		var buf bytes.Buffer
		w, err := NewWriter(&buf, r.Info, quietWriterConfig())
		require.NoError(t, err)
		require.NoError(t, w.CopyChunks(r, mask))
		if mask&(CopyPalette|CopyAll) == 0 {
			require.NoError(t, w.SetPalette(greyPalette(4)))
		}
		for y := 0; y < r.Info.Rows; y++ {
			line, err := r.ReadRowInt(y)
			require.NoError(t, err)
			require.NoError(t, w.WriteRow(line))
		}
		require.NoError(t, w.Close())

		var ids []string
		for _, c := range scanChunks(t, buf.Bytes()) {
			if !IsCritical(c.id) {
				ids = append(ids, c.id)
			}
		}
		return ids
	}

	assert.Equal(t, []string{"pHYs", "tEXt"}, copyWith(CopyPhysical|CopyText))
	assert.Equal(t, []string{"tRNS"}, copyWith(CopyPalette|CopyTransparency))
	assert.Equal(t, []string{"prVt"}, copyWith(CopyUnknown))
	assert.Equal(t, []string{"tRNS", "pHYs", "tEXt", "prVt"}, copyWith(CopyAlmostAll))
	assert.Equal(t, []string{"gAMA", "tRNS", "pHYs", "tEXt", "prVt"}, copyWith(CopyAll))
}

func TestCopyChunksTrailing(t *testing.T) {
	info := mustInfo(t, 3, 3, 8, false, true, false)
	rows := randomRaster(info, 5)
	src := encodeRaster(t, info, rows, nil, func(w *Writer) {
		require.NoError(t, w.QueueChunk(&TextChunk{Keyword: "Early", Text: "a"}, true))
		require.NoError(t, w.QueueChunk(&TextChunk{Keyword: "Late", Text: "b"}, false))
	})

	r, err := NewReader(bytes.NewReader(src), quietReaderConfig())
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.CopyChunks(r, CopyText))
	for y := range rows {
		line, err := r.ReadRowInt(y)
		require.NoError(t, err)
		require.NoError(t, w.WriteRow(line))
	}
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"IHDR", "tEXt", "IDAT", "tEXt", "IEND"}, chunkIDs(scanChunks(t, buf.Bytes())))
	_, out := decodeRaster(t, buf.Bytes(), nil)
	assert.Equal(t, map[string]string{"Early": "a", "Late": "b"}, out.Metadata().Texts())
}

func TestCopyChunksKeepsExplicitSettings(t *testing.T) {
	src := sourceWithMetadata(t)
	r, err := NewReader(bytes.NewReader(src), quietReaderConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, r.Info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.SetPhysicalDPI(300))
	require.NoError(t, w.CopyChunks(r, CopyAll))
	for y := 0; y < r.Info.Rows; y++ {
		line, err := r.ReadRowInt(y)
		require.NoError(t, err)
		require.NoError(t, w.WriteRow(line))
	}
	require.NoError(t, w.Close())

	_, out := decodeRaster(t, buf.Bytes(), nil)
	dpi, ok := out.Metadata().Physical().DPI()
	assert.True(t, ok)
	assert.InDelta(t, 300, dpi, 0.1)
}

func TestParseCopyMask(t *testing.T) {
	m, ok := ParseCopyMask("text, phys")
	assert.True(t, ok)
	assert.Equal(t, CopyText|CopyPhysical, m)

	_, ok = ParseCopyMask("text,bogus")
	assert.False(t, ok)
}
