//
// one image row as samples
//
// PNG Second Edition, scanline serialization
// https://www.w3.org/TR/2003/REC-PNG-20031110/#7Scanline
//

package pngstream

// SampleKind selects the storage width of a SampleLine.
type SampleKind int

const (
	SampleInt  SampleKind = iota // one int per element, 16-bit samples kept whole
	SampleByte                   // one byte per element, 16-bit samples keep only the high byte
)

func (k SampleKind) String() string {
	if k == SampleByte {
		return "byte"
	}
	return "int"
}

// SampleLine holds one image row.
//
// For bit depths below 8 the row is either packed (several samples per
// element, exactly as stored in the file) or unpacked (one sample per
// element). Deeper images are always unpacked.
type SampleLine struct {
	Info     ImageInfo
	Row      int
	Kind     SampleKind
	Unpacked bool

	Ints  []int
	Bytes []byte

	// FilterUsed is the filter type the row was stored with (reading only).
	FilterUsed FilterType
}

// NewSampleLine allocates a zeroed row.
func NewSampleLine(info ImageInfo, kind SampleKind, unpacked bool) *SampleLine {
	l := &SampleLine{
		Info:       info,
		Row:        -1,
		Kind:       kind,
		Unpacked:   unpacked || !info.Packed,
		FilterUsed: -1,
	}
	if kind == SampleByte {
		l.Bytes = make([]byte, l.Len())
	} else {
		l.Ints = make([]int, l.Len())
	}
	return l
}

// Len is the element count of the row.
func (l *SampleLine) Len() int {
	if l.Unpacked {
		return l.Info.SamplesPerRow
	}
	return l.Info.SamplesPerRowPacked
}

// Sample returns element i regardless of the storage width.
func (l *SampleLine) Sample(i int) int {
	if l.Kind == SampleByte {
		return int(l.Bytes[i])
	}
	return l.Ints[i]
}

// Unpack returns an unpacked copy of a packed row. Scaled samples are shifted
// into the high bits of a byte.
func (l *SampleLine) Unpack(scale bool) *SampleLine {
	out := NewSampleLine(l.Info, l.Kind, true)
	out.Row, out.FilterUsed = l.Row, l.FilterUsed
	switch {
	case l.Unpacked && l.Kind == SampleByte:
		copy(out.Bytes, l.Bytes)
	case l.Unpacked:
		copy(out.Ints, l.Ints)
	case l.Kind == SampleByte:
		UnpackBytes(l.Info, l.Bytes, out.Bytes, scale)
	default:
		UnpackInts(l.Info, l.Ints, out.Ints, scale)
	}
	return out
}

// Pack returns a packed copy of an unpacked row. scaled says whether the
// samples were produced by Unpack(true).
func (l *SampleLine) Pack(scaled bool) *SampleLine {
	if !l.Info.Packed {
		return l.Unpack(false)
	}
	out := NewSampleLine(l.Info, l.Kind, false)
	out.Row, out.FilterUsed = l.Row, l.FilterUsed
	switch {
	case !l.Unpacked && l.Kind == SampleByte:
		copy(out.Bytes, l.Bytes)
	case !l.Unpacked:
		copy(out.Ints, l.Ints)
	case l.Kind == SampleByte:
		PackBytes(l.Info, l.Bytes, out.Bytes, scaled)
	default:
		PackInts(l.Info, l.Ints, out.Ints, scaled)
	}
	return out
}

type sample interface {
	~int | ~byte
}

// UnpackInts spreads a packed row (one byte value per element) into one
// sample per element. It is a no-op copy for bit depths of 8 and up.
func UnpackInts(info ImageInfo, packed, unpacked []int, scale bool) {
	unpackSamples(info, packed, unpacked, scale)
}

// UnpackBytes is UnpackInts for byte rows.
func UnpackBytes(info ImageInfo, packed, unpacked []byte, scale bool) {
	unpackSamples(info, packed, unpacked, scale)
}

// PackInts is the inverse of UnpackInts. Padding bits after the last sample
// are zero.
func PackInts(info ImageInfo, unpacked, packed []int, scaled bool) {
	packSamples(info, unpacked, packed, scaled)
}

// PackBytes is PackInts for byte rows.
func PackBytes(info ImageInfo, unpacked, packed []byte, scaled bool) {
	packSamples(info, unpacked, packed, scaled)
}

func unpackSamples[T sample](info ImageInfo, src, dst []T, scale bool) {
	if !info.Packed {
		copy(dst, src[:info.SamplesPerRow])
		return
	}
	bd := uint(info.BitDepth)
	mask := T(1)<<bd - 1
	shift0 := 8 - bd
	for i := 0; i < info.SamplesPerRow; i++ {
		bit := uint(i) * bd
		v := (src[bit>>3] >> (shift0 - bit&7)) & mask
		if scale {
			v <<= shift0
		}
		dst[i] = v
	}
}

func packSamples[T sample](info ImageInfo, src, dst []T, scaled bool) {
	if !info.Packed {
		copy(dst, src[:info.SamplesPerRow])
		return
	}
	bd := uint(info.BitDepth)
	mask := T(1)<<bd - 1
	shift0 := 8 - bd
	for i := 0; i < info.BytesPerRow; i++ {
		dst[i] = 0
	}
	for i := 0; i < info.SamplesPerRow; i++ {
		v := src[i]
		if scaled {
			v >>= shift0
		}
		bit := uint(i) * bd
		dst[bit>>3] |= (v & mask) << (shift0 - bit&7)
	}
}

// rawToSamples decodes an unfiltered row into one int sample per element.
// n is the number of samples to decode.
func rawToSamples(bitDepth int, raw []byte, dst []int, n int) {
	switch bitDepth {
	case 16:
		for i := 0; i < n; i++ {
			dst[i] = int(raw[2*i])<<8 | int(raw[2*i+1])
		}
	case 8:
		for i := 0; i < n; i++ {
			dst[i] = int(raw[i])
		}
	default:
		bd := uint(bitDepth)
		mask := 1<<bd - 1
		for i := 0; i < n; i++ {
			bit := uint(i) * bd
			dst[i] = int(raw[bit>>3]>>(8-bd-bit&7)) & mask
		}
	}
}

// samplesToRaw encodes n unpacked samples into the stored row form.
func samplesToRaw(bitDepth int, src []int, raw []byte, n int) {
	switch bitDepth {
	case 16:
		for i := 0; i < n; i++ {
			raw[2*i] = byte(src[i] >> 8)
			raw[2*i+1] = byte(src[i])
		}
	case 8:
		for i := 0; i < n; i++ {
			raw[i] = byte(src[i])
		}
	default:
		bd := uint(bitDepth)
		mask := 1<<bd - 1
		for i := range raw[:(n*int(bd)+7)/8] {
			raw[i] = 0
		}
		for i := 0; i < n; i++ {
			bit := uint(i) * bd
			raw[bit>>3] |= byte(src[i]&mask) << (8 - bd - bit&7)
		}
	}
}

// fill stores unpacked samples into l according to its kind and packing.
func (l *SampleLine) fill(samples []int) {
	info := l.Info
	switch {
	case l.Kind == SampleInt && l.Unpacked:
		copy(l.Ints, samples[:info.SamplesPerRow])
	case l.Kind == SampleInt:
		packSamples(info, samples, l.Ints, false)
	case l.Unpacked:
		shift := 0
		if info.BitDepth == 16 {
			shift = 8
		}
		for i := 0; i < info.SamplesPerRow; i++ {
			l.Bytes[i] = byte(samples[i] >> shift)
		}
	default:
		for i := 0; i < info.BytesPerRow; i++ {
			l.Bytes[i] = 0
		}
		bd := uint(info.BitDepth)
		for i := 0; i < info.SamplesPerRow; i++ {
			bit := uint(i) * bd
			l.Bytes[bit>>3] |= byte(samples[i]) << (8 - bd - bit&7)
		}
	}
}

// toRaw encodes l into the stored row form.
func (l *SampleLine) toRaw(raw []byte) {
	info := l.Info
	switch {
	case !l.Unpacked && l.Kind == SampleByte:
		copy(raw, l.Bytes[:info.BytesPerRow])
	case !l.Unpacked:
		for i := 0; i < info.BytesPerRow; i++ {
			raw[i] = byte(l.Ints[i])
		}
	case l.Kind == SampleByte && info.BitDepth == 16:
		for i := 0; i < info.SamplesPerRow; i++ {
			raw[2*i] = l.Bytes[i]
			raw[2*i+1] = 0
		}
	case l.Kind == SampleByte:
		if info.Packed {
			packSamples(info, l.Bytes, raw, false)
		} else {
			copy(raw, l.Bytes[:info.SamplesPerRow])
		}
	default:
		samplesToRaw(info.BitDepth, l.Ints, raw, info.SamplesPerRow)
	}
}
