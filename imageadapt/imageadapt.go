// Package imageadapt moves pixels between image.Image and PNG row streams.
package imageadapt

import (
	"image"
	"image/color"

	"github.com/mixcode/pngstream"
	"golang.org/x/image/draw"
)

type rowFunc func(row int) ([]int, error)

func (f rowFunc) ProduceRow(row int) ([]int, error) { return f(row) }

// FromImage describes img as a PNG and returns a producer of its rows, plus
// the chunks the encoding needs (PLTE and tRNS for paletted images).
// Images without a direct PNG counterpart are converted to 8 or 16-bit RGBA.
func FromImage(img image.Image) (pngstream.ImageInfo, pngstream.RowProducer, []pngstream.ChunkData, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch m := img.(type) {
	case *image.Gray:
		info, err := pngstream.NewImageInfo(w, h, 8, false, true, false)
		return info, pixRows(info, m.Pix, m.Stride, 1), nil, err

	case *image.Gray16:
		info, err := pngstream.NewImageInfo(w, h, 16, false, true, false)
		return info, pixRows(info, m.Pix, m.Stride, 2), nil, err

	case *image.NRGBA:
		if m.Opaque() {
			info, err := pngstream.NewImageInfo(w, h, 8, false, false, false)
			return info, dropAlphaRows(info, m.Pix, m.Stride, 1), nil, err
		}
		info, err := pngstream.NewImageInfo(w, h, 8, true, false, false)
		return info, pixRows(info, m.Pix, m.Stride, 1), nil, err

	case *image.NRGBA64:
		if m.Opaque() {
			info, err := pngstream.NewImageInfo(w, h, 16, false, false, false)
			return info, dropAlphaRows(info, m.Pix, m.Stride, 2), nil, err
		}
		info, err := pngstream.NewImageInfo(w, h, 16, true, false, false)
		return info, pixRows(info, m.Pix, m.Stride, 2), nil, err

	case *image.Paletted:
		if len(m.Palette) > 0 && len(m.Palette) <= 256 {
			return fromPaletted(m)
		}
	}

	if deep(img.ColorModel()) {
		dst := image.NewNRGBA64(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return FromImage(dst)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return FromImage(dst)
}

func deep(m color.Model) bool {
	return m == color.RGBA64Model || m == color.NRGBA64Model || m == color.Gray16Model
}

// pixRows serves rows straight from a Pix slice whose layout matches the PNG
// samples, bytesPerSample being 1 or 2 (big-endian).
func pixRows(info pngstream.ImageInfo, pix []byte, stride, bytesPerSample int) pngstream.RowProducer {
	buf := make([]int, info.SamplesPerRow)
	return rowFunc(func(row int) ([]int, error) {
		p := pix[row*stride:]
		for i := range buf {
			if bytesPerSample == 2 {
				buf[i] = int(p[2*i])<<8 | int(p[2*i+1])
			} else {
				buf[i] = int(p[i])
			}
		}
		return buf, nil
	})
}

// dropAlphaRows serves the RGB part of an opaque RGBA Pix slice.
func dropAlphaRows(info pngstream.ImageInfo, pix []byte, stride, bytesPerSample int) pngstream.RowProducer {
	buf := make([]int, info.SamplesPerRow)
	return rowFunc(func(row int) ([]int, error) {
		p := pix[row*stride:]
		for x := 0; x < info.Cols; x++ {
			for c := 0; c < 3; c++ {
				i := (4*x + c) * bytesPerSample
				if bytesPerSample == 2 {
					buf[3*x+c] = int(p[i])<<8 | int(p[i+1])
				} else {
					buf[3*x+c] = int(p[i])
				}
			}
		}
		return buf, nil
	})
}

func paletteDepth(n int) int {
	switch {
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 16:
		return 4
	}
	return 8
}

func fromPaletted(m *image.Paletted) (pngstream.ImageInfo, pngstream.RowProducer, []pngstream.ChunkData, error) {
	b := m.Bounds()
	info, err := pngstream.NewImageInfo(b.Dx(), b.Dy(), paletteDepth(len(m.Palette)), false, false, true)
	if err != nil {
		return info, nil, nil, err
	}

	plte := &pngstream.PaletteChunk{Entries: make([][3]byte, len(m.Palette))}
	alpha := make([]byte, len(m.Palette))
	lastTranslucent := -1
	for i, c := range m.Palette {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		plte.Entries[i] = [3]byte{n.R, n.G, n.B}
		alpha[i] = n.A
		if n.A != 0xff {
			lastTranslucent = i
		}
	}
	chunks := []pngstream.ChunkData{plte}
	if lastTranslucent >= 0 {
		chunks = append(chunks, &pngstream.TransparencyChunk{PaletteAlpha: alpha[:lastTranslucent+1]})
	}
	return info, pixRows(info, m.Pix, m.Stride, 1), chunks, nil
}
