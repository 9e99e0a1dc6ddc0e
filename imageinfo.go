//
// image header: dimensions, bit depth and colour model
//
// PNG Second Edition, IHDR image header
// https://www.w3.org/TR/2003/REC-PNG-20031110/#11IHDR
//

package pngstream

import (
	"fmt"
)

// colour type bits of the IHDR
const (
	ctPalette = 1
	ctColor   = 2
	ctAlpha   = 4

	maxDimension = 1<<31 - 1
)

// ImageInfo describes the sample layout of an image. Build it with
// NewImageInfo; the derived fields are filled in there and never change.
type ImageInfo struct {
	Cols     int // width in pixels
	Rows     int // height in pixels
	BitDepth int // bits per sample: 1, 2, 4, 8 or 16

	Alpha     bool
	Greyscale bool
	Indexed   bool

	Packed              bool // more than one sample per byte
	Channels            int
	BitsPerPixel        int
	BytesPerPixel       int // rounded up; the filter distance
	BytesPerRow         int // without the filter type byte
	SamplesPerRow       int
	SamplesPerRowPacked int // elements of a packed row
}

// NewImageInfo validates the combination and derives the row geometry.
func NewImageInfo(cols, rows, bitDepth int, alpha, greyscale, indexed bool) (ImageInfo, error) {
	info := ImageInfo{
		Cols:      cols,
		Rows:      rows,
		BitDepth:  bitDepth,
		Alpha:     alpha,
		Greyscale: greyscale,
		Indexed:   indexed,
	}
	if cols < 1 || cols > maxDimension || rows < 1 || rows > maxDimension {
		return ImageInfo{}, formatErr("invalid image size %dx%d", cols, rows)
	}
	if indexed && greyscale {
		return ImageInfo{}, formatErr("an image cannot be both indexed and greyscale")
	}
	if indexed && alpha {
		return ImageInfo{}, formatErr("indexed images carry transparency in tRNS, not an alpha channel")
	}
	if !validBitDepth(info.ColorType(), bitDepth) {
		return ImageInfo{}, formatErr("bit depth %d not allowed for colour type %d", bitDepth, info.ColorType())
	}

	switch {
	case indexed:
		info.Channels = 1
	case greyscale:
		info.Channels = 1
		if alpha {
			info.Channels = 2
		}
	default:
		info.Channels = 3
		if alpha {
			info.Channels = 4
		}
	}
	info.Packed = bitDepth < 8
	info.BitsPerPixel = info.Channels * bitDepth
	info.BytesPerPixel = (info.BitsPerPixel + 7) / 8
	info.BytesPerRow = int((int64(info.BitsPerPixel)*int64(cols) + 7) / 8)
	info.SamplesPerRow = info.Channels * cols
	if info.Packed {
		info.SamplesPerRowPacked = info.BytesPerRow
	} else {
		info.SamplesPerRowPacked = info.SamplesPerRow
	}
	return info, nil
}

// NewImageInfoFromColorType decodes the IHDR colour type byte.
func NewImageInfoFromColorType(cols, rows, bitDepth int, colorType byte) (ImageInfo, error) {
	switch colorType {
	case 0, 2, 3, 4, 6:
	default:
		return ImageInfo{}, formatErr("invalid colour type %d", colorType)
	}
	return NewImageInfo(cols, rows, bitDepth,
		colorType&ctAlpha != 0,
		colorType&ctColor == 0,
		colorType&ctPalette != 0)
}

// ColorType is the IHDR colour type byte.
func (i ImageInfo) ColorType() byte {
	var ct byte
	if i.Alpha {
		ct |= ctAlpha
	}
	if i.Indexed {
		ct |= ctPalette | ctColor
	} else if !i.Greyscale {
		ct |= ctColor
	}
	return ct
}

// MaxSample is the largest value a sample can hold.
func (i ImageInfo) MaxSample() int {
	return 1<<i.BitDepth - 1
}

func (i ImageInfo) String() string {
	return fmt.Sprintf("%dx%d %d-bit %s", i.Cols, i.Rows, i.BitDepth, i.modelName())
}

func (i ImageInfo) modelName() string {
	switch {
	case i.Indexed:
		return "indexed"
	case i.Greyscale && i.Alpha:
		return "grey+alpha"
	case i.Greyscale:
		return "grey"
	case i.Alpha:
		return "RGBA"
	}
	return "RGB"
}

func validBitDepth(colorType byte, bitDepth int) bool {
	switch colorType {
	case 0:
		switch bitDepth {
		case 1, 2, 4, 8, 16:
			return true
		}
	case 3:
		switch bitDepth {
		case 1, 2, 4, 8:
			return true
		}
	case 2, 4, 6:
		return bitDepth == 8 || bitDepth == 16
	}
	return false
}
