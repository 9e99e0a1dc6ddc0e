package pngstream

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type model struct {
	name                 string
	alpha, grey, indexed bool
	depths               []int
}

var allModels = []model{
	{"grey", false, true, false, []int{1, 2, 4, 8, 16}},
	{"rgb", false, false, false, []int{8, 16}},
	{"indexed", false, false, true, []int{1, 2, 4, 8}},
	{"greyalpha", true, true, false, []int{8, 16}},
	{"rgba", true, false, false, []int{8, 16}},
}

var allStrategies = map[string]FilterStrategy{
	"none":       FilterFixed(FilterNone),
	"sub":        FilterFixed(FilterSub),
	"up":         FilterFixed(FilterUp),
	"average":    FilterFixed(FilterAverage),
	"paeth":      FilterFixed(FilterPaeth),
	"adaptive":   FilterAdaptive,
	"aggressive": FilterAggressive,
}

func TestRoundTripAllModels(t *testing.T) {
	for _, m := range allModels {
		for _, bd := range m.depths {
			for sname, strategy := range allStrategies {
				m, bd, strategy := m, bd, strategy
				t.Run(fmt.Sprintf("%s%d/%s", m.name, bd, sname), func(t *testing.T) {
					info := mustInfo(t, 13, 7, bd, m.alpha, m.grey, m.indexed)
					rows := randomRaster(info, int64(bd*31+len(sname)))

					cfg := quietWriterConfig()
					cfg.Filter = strategy
					data := encodeRaster(t, info, rows, cfg, nil)

					got, r := decodeRaster(t, data, nil)
					assert.Equal(t, info, r.Info)
					if diff := cmp.Diff(rows, got); diff != "" {
						t.Fatalf("raster mismatch (-want +got):\n%s", diff)
					}
				})
			}
		}
	}
}

func TestRoundTripPackedRows(t *testing.T) {
	info := mustInfo(t, 11, 4, 2, false, true, false)
	rows := randomRaster(info, 3)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, info, quietWriterConfig())
	require.NoError(t, err)
	var packed [][]byte
	for y, row := range rows {
		u := NewSampleLine(info, SampleByte, true)
		for i, v := range row {
			u.Bytes[i] = byte(v)
		}
		p := u.Pack(false)
		p.Row = y
		packed = append(packed, p.Bytes)
		require.NoError(t, w.WriteRow(p))
	}
	require.NoError(t, w.Close())

	cfg := quietReaderConfig()
	cfg.Unpack = false
	r, err := NewReader(bytes.NewReader(buf.Bytes()), cfg)
	require.NoError(t, err)
	for y := range rows {
		line, err := r.ReadRowByte(y)
		require.NoError(t, err)
		assert.False(t, line.Unpacked)
		assert.Equal(t, packed[y], line.Bytes, "row %d", y)
	}
	require.NoError(t, r.Close())
}

func TestByteRowsOf16BitKeepHighByte(t *testing.T) {
	info := mustInfo(t, 3, 2, 16, false, false, false)
	rows := randomRaster(info, 9)
	data := encodeRaster(t, info, rows, nil, nil)

	r, err := NewReader(bytes.NewReader(data), quietReaderConfig())
	require.NoError(t, err)
	for y := range rows {
		line, err := r.ReadRowByte(y)
		require.NoError(t, err)
		for i, v := range rows[y] {
			assert.Equal(t, byte(v>>8), line.Bytes[i])
		}
	}
	require.NoError(t, r.Close())
}

func TestWriteRowByteOn16Bit(t *testing.T) {
	info := mustInfo(t, 2, 1, 16, false, true, false)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, info, quietWriterConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteRowByte([]byte{0x12, 0xff}, 0))
	require.NoError(t, w.Close())

	got, _ := decodeRaster(t, buf.Bytes(), nil)
	assert.Equal(t, [][]int{{0x1200, 0xff00}}, got)
}

func TestFilterUsedIsReported(t *testing.T) {
	info := mustInfo(t, 8, 3, 8, false, true, false)
	rows := randomRaster(info, 1)
	cfg := quietWriterConfig()
	cfg.Filter = FilterFixed(FilterPaeth)
	data := encodeRaster(t, info, rows, cfg, nil)

	r, err := NewReader(bytes.NewReader(data), quietReaderConfig())
	require.NoError(t, err)
	line, err := r.ReadRowInt(0)
	require.NoError(t, err)
	assert.Equal(t, FilterPaeth, line.FilterUsed)
	r.Abort()
}

type sliceRows [][]int

func (s sliceRows) ProduceRow(row int) ([]int, error) { return s[row], nil }

type collectRows struct{ rows [][]int }

func (c *collectRows) ConsumeRow(row int, samples []int) error {
	c.rows = append(c.rows, append([]int(nil), samples...))
	return nil
}

func TestEncodeDecodeAdapters(t *testing.T) {
	info := mustInfo(t, 5, 5, 4, false, false, true)
	rows := randomRaster(info, 5)

	var buf bytes.Buffer
	err := Encode(&buf, info, sliceRows(rows), quietWriterConfig(),
		&PaletteChunk{Entries: greyPalette(16)},
		&TextChunk{Keyword: "Title", Text: "adapters"})
	require.NoError(t, err)

	var got collectRows
	r, err := Decode(bytes.NewReader(buf.Bytes()), &got, quietReaderConfig())
	require.NoError(t, err)
	assert.Equal(t, rows, got.rows)
	title, ok := r.Metadata().Text("Title")
	assert.True(t, ok)
	assert.Equal(t, "adapters", title)
	assert.Equal(t, GroupEnd, r.CurrentGroup())
}
