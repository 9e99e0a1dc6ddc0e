//
// critical chunks: IHDR, PLTE, IDAT, IEND
//
// PNG Second Edition, critical chunks
// https://www.w3.org/TR/2003/REC-PNG-20031110/#11Critical-chunks
//

package pngstream

import (
	"bytes"

	bst "github.com/mixcode/binarystruct"
)

// unmarshalFixed decodes a fixed-size payload into v.
func unmarshalFixed(id string, data []byte, size int, v interface{}) error {
	if len(data) != size {
		return formatErr("%s: bad length %d, want %d", id, len(data), size)
	}
	if _, err := bst.Read(bytes.NewReader(data), bst.BigEndian, v); err != nil {
		return formatErr("%s: %v", id, err)
	}
	return nil
}

func marshalFixed(id string, v interface{}) ([]byte, error) {
	b, err := bst.Marshal(v, bst.BigEndian)
	if err != nil {
		return nil, formatErr("%s: %v", id, err)
	}
	return b, nil
}

// IHDR layout; 13 bytes
type ihdrLayout struct {
	Width       int `binary:"uint32"`
	Height      int `binary:"uint32"`
	BitDepth    byte
	ColorType   byte
	Compression byte
	Filter      byte
	Interlace   byte
}

const ihdrSize = 13

// HeaderChunk is the IHDR.
type HeaderChunk struct {
	Info       ImageInfo
	Interlaced bool
}

func (c *HeaderChunk) ChunkID() string { return ChunkIHDR }

func (c *HeaderChunk) encode(*ImageInfo) ([]byte, error) {
	h := ihdrLayout{
		Width:     c.Info.Cols,
		Height:    c.Info.Rows,
		BitDepth:  byte(c.Info.BitDepth),
		ColorType: c.Info.ColorType(),
	}
	if c.Interlaced {
		h.Interlace = 1
	}
	return marshalFixed(ChunkIHDR, h)
}

func parseHeader(data []byte, _ *ImageInfo) (ChunkData, error) {
	var h ihdrLayout
	if err := unmarshalFixed(ChunkIHDR, data, ihdrSize, &h); err != nil {
		return nil, err
	}
	if h.Compression != 0 {
		return nil, formatErr("IHDR: unknown compression method %d", h.Compression)
	}
	if h.Filter != 0 {
		return nil, formatErr("IHDR: unknown filter method %d", h.Filter)
	}
	if h.Interlace > 1 {
		return nil, formatErr("IHDR: unknown interlace method %d", h.Interlace)
	}
	info, err := NewImageInfoFromColorType(h.Width, h.Height, int(h.BitDepth), h.ColorType)
	if err != nil {
		return nil, err
	}
	return &HeaderChunk{Info: info, Interlaced: h.Interlace == 1}, nil
}

// PaletteChunk is the PLTE: up to 256 RGB entries.
type PaletteChunk struct {
	Entries [][3]byte
}

func (c *PaletteChunk) ChunkID() string { return ChunkPLTE }

func (c *PaletteChunk) encode(info *ImageInfo) ([]byte, error) {
	if err := c.check(info); err != nil {
		return nil, err
	}
	b := make([]byte, 0, 3*len(c.Entries))
	for _, e := range c.Entries {
		b = append(b, e[0], e[1], e[2])
	}
	return b, nil
}

func (c *PaletteChunk) check(info *ImageInfo) error {
	n := len(c.Entries)
	if n < 1 || n > 256 {
		return formatErr("PLTE: %d entries", n)
	}
	if info != nil && info.Indexed && n > 1<<info.BitDepth {
		return formatErr("PLTE: %d entries do not fit %d-bit indices", n, info.BitDepth)
	}
	return nil
}

func parsePalette(data []byte, info *ImageInfo) (ChunkData, error) {
	if len(data)%3 != 0 {
		return nil, formatErr("PLTE: length %d is not a multiple of 3", len(data))
	}
	c := &PaletteChunk{Entries: make([][3]byte, len(data)/3)}
	for i := range c.Entries {
		copy(c.Entries[i][:], data[3*i:])
	}
	if err := c.check(info); err != nil {
		return nil, err
	}
	return c, nil
}

// ToRGB expands a row of palette indices to RGB samples, or RGBA when trns
// carries palette alpha. Indices outside the palette map to black.
func (c *PaletteChunk) ToRGB(line *SampleLine, trns *TransparencyChunk) []int {
	if !line.Unpacked {
		line = line.Unpack(false)
	}
	ch := 3
	if trns != nil {
		ch = 4
	}
	out := make([]int, line.Info.Cols*ch)
	for x := 0; x < line.Info.Cols; x++ {
		idx := line.Sample(x)
		if idx < len(c.Entries) {
			e := c.Entries[idx]
			out[x*ch], out[x*ch+1], out[x*ch+2] = int(e[0]), int(e[1]), int(e[2])
		}
		if ch == 4 {
			out[x*ch+3] = 255
			if idx < len(trns.PaletteAlpha) {
				out[x*ch+3] = int(trns.PaletteAlpha[idx])
			}
		}
	}
	return out
}

// ImageDataChunk stands for an IDAT in chunk lists; the data itself streams
// through the reader and writer.
type ImageDataChunk struct{}

func (c *ImageDataChunk) ChunkID() string { return ChunkIDAT }

func (c *ImageDataChunk) encode(*ImageInfo) ([]byte, error) { return nil, nil }

func parseImageData([]byte, *ImageInfo) (ChunkData, error) { return &ImageDataChunk{}, nil }

// EndChunk is the IEND.
type EndChunk struct{}

func (c *EndChunk) ChunkID() string { return ChunkIEND }

func (c *EndChunk) encode(*ImageInfo) ([]byte, error) { return nil, nil }

func parseEnd(data []byte, _ *ImageInfo) (ChunkData, error) {
	if len(data) != 0 {
		return nil, formatErr("IEND: length %d, want 0", len(data))
	}
	return &EndChunk{}, nil
}
