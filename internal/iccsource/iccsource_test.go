package iccsource

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"testing"

	"github.com/mixcode/pngstream"
	"github.com/mixcode/pngstream/imageadapt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func testProfile(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	copy(p[36:], "acsp")
	return p
}

func testImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 6, 4))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 10)
	}
	return img
}

func jpegICCSegment(seq, count int, data []byte) []byte {
	seg := []byte{0xff, markerAPP2, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(2+len(iccSegmentTag)+2+len(data)))
	seg = append(seg, iccSegmentTag...)
	seg = append(seg, byte(seq), byte(count))
	return append(seg, data...)
}

// jpegWith encodes a JPEG and splices segs in right after the start of image.
func jpegWith(t *testing.T, segs ...[]byte) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	b := buf.Bytes()
	out := append([]byte{}, b[:2]...)
	for _, s := range segs {
		out = append(out, s...)
	}
	return append(out, b[2:]...)
}

func TestFromJPEG(t *testing.T) {
	profile := testProfile(1000)
	data := jpegWith(t,
		jpegICCSegment(2, 2, profile[600:]),
		jpegICCSegment(1, 2, profile[:600]),
	)

	p, err := Load(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, FormatJPEG, p.Format)
	assert.Equal(t, profile, p.Data)
	assert.Empty(t, p.Name)
}

func TestFromJPEGWithoutProfile(t *testing.T) {
	data := jpegWith(t)
	got, err := FromJPEG(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFromJPEGBroken(t *testing.T) {
	profile := testProfile(100)

	_, err := FromJPEG(bytes.NewReader(jpegWith(t, jpegICCSegment(1, 2, profile))))
	assert.ErrorIs(t, err, pngstream.ErrFormat, "missing segment")

	_, err = FromJPEG(bytes.NewReader(jpegWith(t, jpegICCSegment(1, 2, profile), jpegICCSegment(1, 2, profile))))
	assert.ErrorIs(t, err, pngstream.ErrFormat, "repeated segment")

	_, err = FromJPEG(bytes.NewReader(jpegWith(t, jpegICCSegment(3, 2, profile))))
	assert.ErrorIs(t, err, pngstream.ErrFormat, "sequence beyond count")

	_, err = FromJPEG(bytes.NewReader([]byte("not a jpeg")))
	assert.ErrorIs(t, err, pngstream.ErrFormat)

	data := jpegWith(t)
	_, err = FromJPEG(bytes.NewReader(data[:len(data)/2]))
	assert.Error(t, err, "truncated")
}

// gifWith encodes an animated GIF and inserts an ICC extension before the
// trailer.
func gifWith(t *testing.T, profile []byte) []byte {
	frame := func(c uint8) *image.Paletted {
		img := image.NewPaletted(image.Rect(0, 0, 5, 3), palette.Plan9)
		for i := range img.Pix {
			img.Pix[i] = c + uint8(i)
		}
		return img
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, &gif.GIF{
		Image: []*image.Paletted{frame(1), frame(40)},
		Delay: []int{10, 10},
	}))
	b := buf.Bytes()
	require.Equal(t, byte(gifTrailer), b[len(b)-1])

	out := append([]byte{}, b[:len(b)-1]...)
	if profile != nil {
		out = append(out, gifExtension, gifextApplication, 11)
		out = append(out, "ICCRGBG1012"...)
		for len(profile) > 0 {
			n := len(profile)
			if n > 255 {
				n = 255
			}
			out = append(out, byte(n))
			out = append(out, profile[:n]...)
			profile = profile[n:]
		}
		out = append(out, 0)
	}
	return append(out, gifTrailer)
}

func TestFromGIF(t *testing.T) {
	profile := testProfile(700)

	p, err := Load(bytes.NewReader(gifWith(t, profile)))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, FormatGIF, p.Format)
	assert.Equal(t, profile, p.Data)

	p, err = Load(bytes.NewReader(gifWith(t, nil)))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFromGIFBroken(t *testing.T) {
	_, err := FromGIF(bytes.NewReader([]byte("GIF10aXXXXXXX")))
	assert.ErrorIs(t, err, pngstream.ErrFormat)

	data := gifWith(t, testProfile(300))
	_, err = FromGIF(bytes.NewReader(data[:len(data)-20]))
	assert.Error(t, err)
}

type tiffEntry struct {
	tag, typ uint16
	count    uint32
	value    []byte // inline value, or the out-of-line data
}

// buildTIFF lays out one directory per entry list, each followed by the
// out-of-line values it refers to.
func buildTIFF(order binary.AppendByteOrder, dirs ...[]tiffEntry) []byte {
	var buf []byte
	if order == binary.BigEndian {
		buf = []byte("MM")
	} else {
		buf = []byte("II")
	}
	buf = order.AppendUint16(buf, 42)
	buf = order.AppendUint32(buf, 8)

	for i, entries := range dirs {
		start := len(buf)
		dataAt := start + 2 + 12*len(entries) + 4
		var extra []byte
		buf = order.AppendUint16(buf, uint16(len(entries)))
		for _, e := range entries {
			buf = order.AppendUint16(buf, e.tag)
			buf = order.AppendUint16(buf, e.typ)
			buf = order.AppendUint32(buf, e.count)
			if len(e.value) <= 4 {
				v := make([]byte, 4)
				copy(v, e.value)
				buf = append(buf, v...)
			} else {
				buf = order.AppendUint32(buf, uint32(dataAt+len(extra)))
				extra = append(extra, e.value...)
			}
		}
		next := 0
		if i < len(dirs)-1 {
			next = dataAt + len(extra)
		}
		buf = order.AppendUint32(buf, uint32(next))
		buf = append(buf, extra...)
	}
	return buf
}

func TestFromTIFF(t *testing.T) {
	profile := testProfile(500)
	width := tiffEntry{tag: 256, typ: 3, count: 1, value: []byte{0, 6}}

	for _, order := range []binary.AppendByteOrder{binary.BigEndian, binary.LittleEndian} {
		t.Run(order.String(), func(t *testing.T) {
			data := buildTIFF(order,
				[]tiffEntry{width},
				[]tiffEntry{width, {tag: tiffTagICCProfile, typ: tiffTypeUNDEFINED, count: uint32(len(profile)), value: profile}},
			)
			p, err := Load(bytes.NewReader(data))
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, FormatTIFF, p.Format)
			assert.Equal(t, profile, p.Data)

			inline := buildTIFF(order, []tiffEntry{{tag: tiffTagICCProfile, typ: tiffTypeBYTE, count: 3, value: []byte{1, 2, 3}}})
			got, err := FromTIFF(bytes.NewReader(inline))
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3}, got)
		})
	}
}

func TestFromTIFFWithoutProfile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, testImage(), nil))
	p, err := Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFromTIFFBroken(t *testing.T) {
	wrongType := buildTIFF(binary.BigEndian, []tiffEntry{{tag: tiffTagICCProfile, typ: 3, count: 1, value: []byte{0, 1}}})
	_, err := FromTIFF(bytes.NewReader(wrongType))
	assert.ErrorIs(t, err, pngstream.ErrFormat)

	loop := buildTIFF(binary.LittleEndian, []tiffEntry{{tag: 256, typ: 3, count: 1, value: []byte{6, 0}}})
	binary.LittleEndian.PutUint32(loop[len(loop)-4:], 8) // next directory is itself
	_, err = FromTIFF(bytes.NewReader(loop))
	assert.ErrorIs(t, err, pngstream.ErrFormat)

	_, err = FromTIFF(bytes.NewReader([]byte("MM\x00\x2b\x00\x00\x00\x08")))
	assert.ErrorIs(t, err, pngstream.ErrFormat)
}

func TestFromPNG(t *testing.T) {
	profile := testProfile(400)
	info, rows, chunks, err := imageadapt.FromImage(testImage())
	require.NoError(t, err)
	chunks = append(chunks, &pngstream.ICCProfileChunk{Name: "display", Profile: profile})

	var buf bytes.Buffer
	require.NoError(t, pngstream.Encode(&buf, info, rows, nil, chunks...))

	p, err := Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, FormatPNG, p.Format)
	assert.Equal(t, "display", p.Name)
	assert.Equal(t, profile, p.Data)

	c := p.Chunk("fallback")
	assert.Equal(t, "display", c.Name)
	assert.Equal(t, profile, c.Profile)
}

func TestLoadUnknown(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("BM")))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestChunkFallbackName(t *testing.T) {
	p := &Profile{Format: FormatJPEG, Data: []byte{1}}
	assert.Equal(t, "fallback", p.Chunk("fallback").Name)
}
