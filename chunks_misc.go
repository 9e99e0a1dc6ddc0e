//
// miscellaneous ancillary chunks: tIME, pHYs, oFFs, sTER, hIST, bKGD, tRNS, sPLT
//
// PNG Second Edition, miscellaneous information
// https://www.w3.org/TR/2003/REC-PNG-20031110/#11addnlsiinfo
// PNG extensions (oFFs, sTER)
// http://www.libpng.org/pub/png/spec/register/pngext-1.5.0.html
//

package pngstream

import (
	"bytes"
	"time"

	bst "github.com/mixcode/binarystruct"
)

// single 16-bit sample, as in greyscale bKGD and tRNS or a hIST entry
type u16Layout struct {
	V int `binary:"uint16"`
}

// 16-bit colour, as in truecolour bKGD and tRNS
type rgbLayout struct {
	R, G, B int `binary:"uint16"`
}

func (l rgbLayout) array() [3]int { return [3]int{l.R, l.G, l.B} }

func newRGBLayout(c [3]int) rgbLayout { return rgbLayout{R: c[0], G: c[1], B: c[2]} }

type timeLayout struct {
	Year   uint16
	Month  byte
	Day    byte
	Hour   byte
	Minute byte
	Second byte
}

// TimeChunk is the tIME: last modification, UTC.
type TimeChunk struct {
	Time time.Time
}

func (c *TimeChunk) ChunkID() string { return ChunkTIME }

func (c *TimeChunk) encode(*ImageInfo) ([]byte, error) {
	t := c.Time.UTC()
	return marshalFixed(ChunkTIME, timeLayout{
		Year:   uint16(t.Year()),
		Month:  byte(t.Month()),
		Day:    byte(t.Day()),
		Hour:   byte(t.Hour()),
		Minute: byte(t.Minute()),
		Second: byte(t.Second()),
	})
}

func parseTime(data []byte, _ *ImageInfo) (ChunkData, error) {
	var l timeLayout
	if err := unmarshalFixed(ChunkTIME, data, 7, &l); err != nil {
		return nil, err
	}
	if l.Month < 1 || l.Month > 12 || l.Day < 1 || l.Day > 31 || l.Hour > 23 || l.Minute > 59 || l.Second > 60 {
		return nil, formatErr("tIME: bad date %+v", l)
	}
	t := time.Date(int(l.Year), time.Month(l.Month), int(l.Day), int(l.Hour), int(l.Minute), int(l.Second), 0, time.UTC)
	return &TimeChunk{Time: t}, nil
}

type physLayout struct {
	PixelsPerUnitX uint32
	PixelsPerUnitY uint32
	Unit           byte
}

// PhysicalChunk is the pHYs: pixel density, per metre when Unit is 1,
// aspect ratio only when 0.
type PhysicalChunk struct {
	PixelsPerUnitX uint32
	PixelsPerUnitY uint32
	Unit           byte
}

const metresPerInch = 0.0254

// NewPhysicalDPI builds a square density from dots per inch.
func NewPhysicalDPI(dpi float64) *PhysicalChunk {
	ppm := uint32(dpi/metresPerInch + 0.5)
	return &PhysicalChunk{PixelsPerUnitX: ppm, PixelsPerUnitY: ppm, Unit: 1}
}

// DPI returns the density in dots per inch; ok is false unless the unit is
// metres and both axes agree.
func (c *PhysicalChunk) DPI() (dpi float64, ok bool) {
	if c.Unit != 1 || c.PixelsPerUnitX != c.PixelsPerUnitY {
		return 0, false
	}
	return float64(c.PixelsPerUnitX) * metresPerInch, true
}

func (c *PhysicalChunk) ChunkID() string { return ChunkPHYS }

func (c *PhysicalChunk) encode(*ImageInfo) ([]byte, error) {
	if c.Unit > 1 {
		return nil, formatErr("pHYs: unit %d", c.Unit)
	}
	return marshalFixed(ChunkPHYS, physLayout(*c))
}

func parsePhysical(data []byte, _ *ImageInfo) (ChunkData, error) {
	var l physLayout
	if err := unmarshalFixed(ChunkPHYS, data, 9, &l); err != nil {
		return nil, err
	}
	if l.Unit > 1 {
		return nil, formatErr("pHYs: unit %d", l.Unit)
	}
	c := PhysicalChunk(l)
	return &c, nil
}

type offsLayout struct {
	X    int32
	Y    int32
	Unit byte
}

// OffsetChunk is the oFFs: image position on a page, in pixels (Unit 0) or
// micrometres (Unit 1).
type OffsetChunk struct {
	X, Y int32
	Unit byte
}

func (c *OffsetChunk) ChunkID() string { return ChunkOFFS }

func (c *OffsetChunk) encode(*ImageInfo) ([]byte, error) {
	if c.Unit > 1 {
		return nil, formatErr("oFFs: unit %d", c.Unit)
	}
	return marshalFixed(ChunkOFFS, offsLayout(*c))
}

func parseOffset(data []byte, _ *ImageInfo) (ChunkData, error) {
	var l offsLayout
	if err := unmarshalFixed(ChunkOFFS, data, 9, &l); err != nil {
		return nil, err
	}
	if l.Unit > 1 {
		return nil, formatErr("oFFs: unit %d", l.Unit)
	}
	c := OffsetChunk(l)
	return &c, nil
}

// StereoChunk is the sTER: 0 cross-fuse, 1 diverging-fuse layout.
type StereoChunk struct {
	Mode byte
}

func (c *StereoChunk) ChunkID() string { return ChunkSTER }

func (c *StereoChunk) encode(*ImageInfo) ([]byte, error) {
	if c.Mode > 1 {
		return nil, formatErr("sTER: mode %d", c.Mode)
	}
	return []byte{c.Mode}, nil
}

func parseStereo(data []byte, _ *ImageInfo) (ChunkData, error) {
	if len(data) != 1 || data[0] > 1 {
		return nil, formatErr("sTER: bad payload %v", data)
	}
	return &StereoChunk{Mode: data[0]}, nil
}

// HistogramChunk is the hIST: usage frequency of each palette entry.
type HistogramChunk struct {
	Frequencies []int
}

func (c *HistogramChunk) ChunkID() string { return ChunkHIST }

func (c *HistogramChunk) encode(*ImageInfo) ([]byte, error) {
	if len(c.Frequencies) < 1 || len(c.Frequencies) > 256 {
		return nil, formatErr("hIST: %d entries", len(c.Frequencies))
	}
	var b bytes.Buffer
	for _, f := range c.Frequencies {
		e, err := marshalFixed(ChunkHIST, u16Layout{f})
		if err != nil {
			return nil, err
		}
		b.Write(e)
	}
	return b.Bytes(), nil
}

func parseHistogram(data []byte, _ *ImageInfo) (ChunkData, error) {
	if len(data)%2 != 0 || len(data) < 2 || len(data) > 512 {
		return nil, formatErr("hIST: length %d", len(data))
	}
	c := &HistogramChunk{Frequencies: make([]int, len(data)/2)}
	rd := bytes.NewReader(data)
	for i := range c.Frequencies {
		var l u16Layout
		if _, err := bst.Read(rd, bst.BigEndian, &l); err != nil {
			return nil, formatErr("hIST: %v", err)
		}
		c.Frequencies[i] = l.V
	}
	return c, nil
}

// BackgroundChunk is the bKGD. Which field is used depends on the colour
// model: PaletteIndex for indexed, Gray for greyscale, RGB otherwise.
type BackgroundChunk struct {
	Gray         int
	RGB          [3]int
	PaletteIndex int
}

func (c *BackgroundChunk) ChunkID() string { return ChunkBKGD }

func (c *BackgroundChunk) encode(info *ImageInfo) ([]byte, error) {
	switch {
	case info.Indexed:
		if c.PaletteIndex < 0 || c.PaletteIndex > 255 {
			return nil, formatErr("bKGD: palette index %d", c.PaletteIndex)
		}
		return []byte{byte(c.PaletteIndex)}, nil
	case info.Greyscale:
		return marshalFixed(c.ChunkID(), u16Layout{c.Gray})
	}
	return marshalFixed(c.ChunkID(), newRGBLayout(c.RGB))
}

func parseBackground(data []byte, info *ImageInfo) (ChunkData, error) {
	c := &BackgroundChunk{}
	switch {
	case info.Indexed:
		if len(data) != 1 {
			return nil, formatErr("bKGD: length %d for indexed image", len(data))
		}
		c.PaletteIndex = int(data[0])
	case info.Greyscale:
		var l u16Layout
		if err := unmarshalFixed(ChunkBKGD, data, 2, &l); err != nil {
			return nil, err
		}
		c.Gray = l.V
	default:
		var l rgbLayout
		if err := unmarshalFixed(ChunkBKGD, data, 6, &l); err != nil {
			return nil, err
		}
		c.RGB = l.array()
	}
	return c, nil
}

// TransparencyChunk is the tRNS. Indexed images give one alpha per palette
// entry; greyscale and truecolour images give a single transparent colour.
type TransparencyChunk struct {
	Gray         int
	RGB          [3]int
	PaletteAlpha []byte
}

func (c *TransparencyChunk) ChunkID() string { return ChunkTRNS }

func (c *TransparencyChunk) encode(info *ImageInfo) ([]byte, error) {
	switch {
	case info.Alpha:
		return nil, formatErr("tRNS: not allowed with an alpha channel")
	case info.Indexed:
		if len(c.PaletteAlpha) < 1 || len(c.PaletteAlpha) > 256 {
			return nil, formatErr("tRNS: %d palette entries", len(c.PaletteAlpha))
		}
		return c.PaletteAlpha, nil
	case info.Greyscale:
		return marshalFixed(c.ChunkID(), u16Layout{c.Gray})
	}
	return marshalFixed(c.ChunkID(), newRGBLayout(c.RGB))
}

func parseTransparency(data []byte, info *ImageInfo) (ChunkData, error) {
	c := &TransparencyChunk{}
	switch {
	case info.Alpha:
		return nil, formatErr("tRNS: not allowed with an alpha channel")
	case info.Indexed:
		if len(data) < 1 || len(data) > 256 {
			return nil, formatErr("tRNS: %d palette entries", len(data))
		}
		c.PaletteAlpha = append([]byte(nil), data...)
	case info.Greyscale:
		var l u16Layout
		if err := unmarshalFixed(ChunkTRNS, data, 2, &l); err != nil {
			return nil, err
		}
		c.Gray = l.V
	default:
		var l rgbLayout
		if err := unmarshalFixed(ChunkTRNS, data, 6, &l); err != nil {
			return nil, err
		}
		c.RGB = l.array()
	}
	return c, nil
}

// SuggestedPaletteEntry is one sPLT colour with its frequency.
type SuggestedPaletteEntry struct {
	R, G, B, A int
	Frequency  int
}

// SuggestedPaletteChunk is an sPLT. Several may appear, one per name.
type SuggestedPaletteChunk struct {
	Name        string
	SampleDepth int // 8 or 16
	Entries     []SuggestedPaletteEntry
}

func (c *SuggestedPaletteChunk) ChunkID() string  { return ChunkSPLT }
func (c *SuggestedPaletteChunk) innerKey() string { return c.Name }

// sPLT entries at sample depth 8 and 16
type splt8Layout struct {
	R, G, B, A int `binary:"uint8"`
	Frequency  int `binary:"uint16"`
}

type splt16Layout struct {
	R, G, B, A int `binary:"uint16"`
	Frequency  int `binary:"uint16"`
}

// header of an sPLT: name and sample depth
type spltHeader struct {
	Name  string `binary:"zstring"`
	Depth byte
}

func (c *SuggestedPaletteChunk) encode(*ImageInfo) ([]byte, error) {
	name, err := encodeKeyword(ChunkSPLT, c.Name)
	if err != nil {
		return nil, err
	}
	if c.SampleDepth != 8 && c.SampleDepth != 16 {
		return nil, formatErr("sPLT: sample depth %d", c.SampleDepth)
	}
	head, err := marshalFixed(ChunkSPLT, spltHeader{Name: string(name), Depth: byte(c.SampleDepth)})
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.Write(head)
	for _, e := range c.Entries {
		var entry []byte
		if c.SampleDepth == 8 {
			entry, err = marshalFixed(ChunkSPLT, splt8Layout(e))
		} else {
			entry, err = marshalFixed(ChunkSPLT, splt16Layout(e))
		}
		if err != nil {
			return nil, err
		}
		b.Write(entry)
	}
	return b.Bytes(), nil
}

func parseSuggestedPalette(data []byte, _ *ImageInfo) (ChunkData, error) {
	var h spltHeader
	n, err := bst.Read(bytes.NewReader(data), bst.BigEndian, &h)
	if err != nil {
		return nil, formatErr("sPLT: truncated header")
	}
	if err := checkKeyword(ChunkSPLT, []byte(h.Name)); err != nil {
		return nil, err
	}
	entrySize := 6
	switch h.Depth {
	case 8:
	case 16:
		entrySize = 10
	default:
		return nil, formatErr("sPLT: sample depth %d", h.Depth)
	}
	rest := data[n:]
	if len(rest)%entrySize != 0 {
		return nil, formatErr("sPLT: %d bytes of entries at depth %d", len(rest), h.Depth)
	}
	name, _ := latin1Decode([]byte(h.Name))
	c := &SuggestedPaletteChunk{Name: name, SampleDepth: int(h.Depth)}
	for ; len(rest) > 0; rest = rest[entrySize:] {
		var e SuggestedPaletteEntry
		if h.Depth == 8 {
			var l splt8Layout
			if err := unmarshalFixed(ChunkSPLT, rest[:entrySize], entrySize, &l); err != nil {
				return nil, err
			}
			e = SuggestedPaletteEntry(l)
		} else {
			var l splt16Layout
			if err := unmarshalFixed(ChunkSPLT, rest[:entrySize], entrySize, &l); err != nil {
				return nil, err
			}
			e = SuggestedPaletteEntry(l)
		}
		c.Entries = append(c.Entries, e)
	}
	return c, nil
}
