package imageadapt

import (
	"image"
	"image/color"

	"github.com/mixcode/pngstream"
)

// Canvas collects decoded rows into an image.Image. Pass it to
// pngstream.Decode, which hands it the header before the first row.
//
// Samples below 8 bits are scaled up to 8. A single-colour tRNS becomes an
// alpha channel.
type Canvas struct {
	info pngstream.ImageInfo
	trns *pngstream.TransparencyChunk

	gray     *image.Gray
	gray16   *image.Gray16
	nrgba    *image.NRGBA
	nrgba64  *image.NRGBA64
	paletted *image.Paletted
}

func NewCanvas() *Canvas { return &Canvas{} }

// Image returns the picture; nil before the header was consumed.
func (c *Canvas) Image() image.Image {
	switch {
	case c.gray != nil:
		return c.gray
	case c.gray16 != nil:
		return c.gray16
	case c.nrgba != nil:
		return c.nrgba
	case c.nrgba64 != nil:
		return c.nrgba64
	case c.paletted != nil:
		return c.paletted
	}
	return nil
}

func (c *Canvas) ConsumeHeader(info pngstream.ImageInfo, meta pngstream.Metadata) error {
	c.info = info
	rect := image.Rect(0, 0, info.Cols, info.Rows)
	trns := meta.Transparency()
	deep := info.BitDepth == 16

	switch {
	case info.Indexed:
		plte := meta.Palette()
		if plte == nil {
			return pngstream.ErrFormat
		}
		pal := make(color.Palette, len(plte.Entries))
		for i, e := range plte.Entries {
			a := byte(0xff)
			if trns != nil && i < len(trns.PaletteAlpha) {
				a = trns.PaletteAlpha[i]
			}
			pal[i] = color.NRGBA{e[0], e[1], e[2], a}
		}
		c.paletted = image.NewPaletted(rect, pal)
	case info.Greyscale && !info.Alpha && trns == nil:
		if deep {
			c.gray16 = image.NewGray16(rect)
		} else {
			c.gray = image.NewGray(rect)
		}
	default:
		c.trns = trns
		if deep {
			c.nrgba64 = image.NewNRGBA64(rect)
		} else {
			c.nrgba = image.NewNRGBA(rect)
		}
	}
	return nil
}

func (c *Canvas) ConsumeRow(row int, samples []int) error {
	info := c.info
	switch {
	case c.paletted != nil:
		p := c.paletted.Pix[row*c.paletted.Stride:]
		for x := 0; x < info.Cols; x++ {
			p[x] = uint8(samples[x])
		}
	case c.gray != nil:
		p := c.gray.Pix[row*c.gray.Stride:]
		for x := 0; x < info.Cols; x++ {
			p[x] = c.scale8(samples[x])
		}
	case c.gray16 != nil:
		p := c.gray16.Pix[row*c.gray16.Stride:]
		for x := 0; x < info.Cols; x++ {
			p[2*x], p[2*x+1] = uint8(samples[x]>>8), uint8(samples[x])
		}
	case c.nrgba != nil:
		p := c.nrgba.Pix[row*c.nrgba.Stride:]
		for x := 0; x < info.Cols; x++ {
			r, g, b, a := c.pixel(samples, x)
			p[4*x], p[4*x+1], p[4*x+2], p[4*x+3] = c.scale8(r), c.scale8(g), c.scale8(b), c.scale8(a)
		}
	case c.nrgba64 != nil:
		p := c.nrgba64.Pix[row*c.nrgba64.Stride:]
		for x := 0; x < info.Cols; x++ {
			r, g, b, a := c.pixel(samples, x)
			for i, v := range [4]int{r, g, b, a} {
				p[8*x+2*i], p[8*x+2*i+1] = uint8(v>>8), uint8(v)
			}
		}
	default:
		return pngstream.ErrSequence
	}
	return nil
}

// pixel reads pixel x as RGBA at the image bit depth.
func (c *Canvas) pixel(samples []int, x int) (r, g, b, a int) {
	info := c.info
	top := info.MaxSample()
	s := samples[x*info.Channels:]
	if info.Greyscale {
		r, g, b = s[0], s[0], s[0]
	} else {
		r, g, b = s[0], s[1], s[2]
	}
	a = top
	switch {
	case info.Alpha:
		a = s[info.Channels-1]
	case c.trns == nil:
	case info.Greyscale && s[0] == c.trns.Gray:
		a = 0
	case !info.Greyscale && r == c.trns.RGB[0] && g == c.trns.RGB[1] && b == c.trns.RGB[2]:
		a = 0
	}
	return
}

func (c *Canvas) scale8(v int) uint8 {
	top := c.info.MaxSample()
	if top == 0xff {
		return uint8(v)
	}
	return uint8(v * 0xff / top)
}
