//
// colour space chunks: gAMA, cHRM, sRGB, iCCP, sBIT
// the values are carried, not applied
//
// PNG Second Edition, colour space information
// https://www.w3.org/TR/2003/REC-PNG-20031110/#11addnlcolinfo
//

package pngstream

import (
	"math"
)

const gammaScale = 100000

func toFixed(v float64) uint32 { return uint32(math.Round(v * gammaScale)) }

func fromFixed(v uint32) float64 { return float64(v) / gammaScale }

// GammaChunk is the gAMA.
type GammaChunk struct {
	Gamma float64
}

func (c *GammaChunk) ChunkID() string { return ChunkGAMA }

func (c *GammaChunk) encode(*ImageInfo) ([]byte, error) {
	if c.Gamma <= 0 || c.Gamma*gammaScale > math.MaxUint32 {
		return nil, formatErr("gAMA: gamma %v out of range", c.Gamma)
	}
	return marshalFixed(ChunkGAMA, toFixed(c.Gamma))
}

func parseGamma(data []byte, _ *ImageInfo) (ChunkData, error) {
	var g uint32
	if err := unmarshalFixed(ChunkGAMA, data, 4, &g); err != nil {
		return nil, err
	}
	return &GammaChunk{Gamma: fromFixed(g)}, nil
}

type chrmLayout struct {
	WhiteX, WhiteY uint32
	RedX, RedY     uint32
	GreenX, GreenY uint32
	BlueX, BlueY   uint32
}

// ChromaticityChunk is the cHRM: CIE x,y of the white point and primaries.
type ChromaticityChunk struct {
	WhiteX, WhiteY float64
	RedX, RedY     float64
	GreenX, GreenY float64
	BlueX, BlueY   float64
}

func (c *ChromaticityChunk) ChunkID() string { return ChunkCHRM }

func (c *ChromaticityChunk) encode(*ImageInfo) ([]byte, error) {
	return marshalFixed(ChunkCHRM, chrmLayout{
		toFixed(c.WhiteX), toFixed(c.WhiteY),
		toFixed(c.RedX), toFixed(c.RedY),
		toFixed(c.GreenX), toFixed(c.GreenY),
		toFixed(c.BlueX), toFixed(c.BlueY),
	})
}

func parseChromaticity(data []byte, _ *ImageInfo) (ChunkData, error) {
	var l chrmLayout
	if err := unmarshalFixed(ChunkCHRM, data, 32, &l); err != nil {
		return nil, err
	}
	return &ChromaticityChunk{
		fromFixed(l.WhiteX), fromFixed(l.WhiteY),
		fromFixed(l.RedX), fromFixed(l.RedY),
		fromFixed(l.GreenX), fromFixed(l.GreenY),
		fromFixed(l.BlueX), fromFixed(l.BlueY),
	}, nil
}

// SRGBChunk is the sRGB rendering intent.
type SRGBChunk struct {
	Intent byte // 0 perceptual, 1 relative colorimetric, 2 saturation, 3 absolute colorimetric
}

func (c *SRGBChunk) ChunkID() string { return ChunkSRGB }

func (c *SRGBChunk) encode(*ImageInfo) ([]byte, error) {
	if c.Intent > 3 {
		return nil, formatErr("sRGB: rendering intent %d", c.Intent)
	}
	return []byte{c.Intent}, nil
}

func parseSRGB(data []byte, _ *ImageInfo) (ChunkData, error) {
	if len(data) != 1 || data[0] > 3 {
		return nil, formatErr("sRGB: bad payload %v", data)
	}
	return &SRGBChunk{Intent: data[0]}, nil
}

// ICCProfileChunk is the iCCP: a named, deflated ICC profile.
type ICCProfileChunk struct {
	Name    string
	Profile []byte
}

func (c *ICCProfileChunk) ChunkID() string { return ChunkICCP }

func (c *ICCProfileChunk) encode(*ImageInfo) ([]byte, error) {
	name, err := encodeKeyword(ChunkICCP, c.Name)
	if err != nil {
		return nil, err
	}
	head, err := marshalFixed(ChunkICCP, keywordMethodHeader{Keyword: string(name)})
	if err != nil {
		return nil, err
	}
	z, err := compressBytes(c.Profile)
	if err != nil {
		return nil, err
	}
	return append(head, z...), nil
}

func parseICCProfile(data []byte, _ *ImageInfo) (ChunkData, error) {
	name, rest, err := readKeywordMethod(ChunkICCP, data)
	if err != nil {
		return nil, err
	}
	profile, err := decompressBytes(rest, maxInflatedChunk)
	if err != nil {
		return nil, err
	}
	return &ICCProfileChunk{Name: name, Profile: profile}, nil
}

// SignificantBitsChunk is the sBIT: original precision per channel.
type SignificantBitsChunk struct {
	Bits []byte
}

func (c *SignificantBitsChunk) ChunkID() string { return ChunkSBIT }

// sbitLen is the number of sBIT entries for a colour model; indexed images
// list the RGB precision of the palette.
func sbitLen(info *ImageInfo) int {
	if info.Indexed {
		return 3
	}
	return info.Channels
}

func checkSbit(info *ImageInfo, bits []byte) error {
	if len(bits) != sbitLen(info) {
		return formatErr("sBIT: %d entries, want %d", len(bits), sbitLen(info))
	}
	max := info.BitDepth
	if info.Indexed {
		max = 8
	}
	for _, b := range bits {
		if b == 0 || int(b) > max {
			return formatErr("sBIT: %d significant bits of %d", b, max)
		}
	}
	return nil
}

func (c *SignificantBitsChunk) encode(info *ImageInfo) ([]byte, error) {
	if err := checkSbit(info, c.Bits); err != nil {
		return nil, err
	}
	return c.Bits, nil
}

func parseSignificantBits(data []byte, info *ImageInfo) (ChunkData, error) {
	if err := checkSbit(info, data); err != nil {
		return nil, err
	}
	return &SignificantBitsChunk{Bits: append([]byte(nil), data...)}, nil
}
