//
// chunk identity, ordering and load rules
//
// PNG Second Edition, chunk layout and naming conventions
// https://www.w3.org/TR/2003/REC-PNG-20031110/#5Chunk-naming-conventions
//

package pngstream

import (
	"fmt"
)

// well-known chunk ids
const (
	ChunkIHDR = "IHDR"
	ChunkPLTE = "PLTE"
	ChunkIDAT = "IDAT"
	ChunkIEND = "IEND"
	ChunkTEXT = "tEXt"
	ChunkZTXT = "zTXt"
	ChunkITXT = "iTXt"
	ChunkTIME = "tIME"
	ChunkPHYS = "pHYs"
	ChunkTRNS = "tRNS"
	ChunkGAMA = "gAMA"
	ChunkCHRM = "cHRM"
	ChunkHIST = "hIST"
	ChunkICCP = "iCCP"
	ChunkBKGD = "bKGD"
	ChunkSPLT = "sPLT"
	ChunkSTER = "sTER"
	ChunkOFFS = "oFFs"
	ChunkSBIT = "sBIT"
	ChunkSRGB = "sRGB"
)

// ChunkGroup marks the position of a reader or writer in the chunk stream.
// It only ever increases during a session.
type ChunkGroup int

const (
	GroupNone           ChunkGroup = -1 // before the signature
	GroupHeader         ChunkGroup = 0  // IHDR
	GroupAfterHeader    ChunkGroup = 1  // after IHDR, before PLTE
	GroupPalette        ChunkGroup = 2  // PLTE
	GroupAfterPalette   ChunkGroup = 3  // after PLTE, before IDAT
	GroupImageData      ChunkGroup = 4  // IDAT sequence
	GroupAfterImageData ChunkGroup = 5  // after IDAT, before IEND
	GroupEnd            ChunkGroup = 6  // IEND seen
)

var groupNames = map[ChunkGroup]string{
	GroupNone:           "none",
	GroupHeader:         "header",
	GroupAfterHeader:    "after-header",
	GroupPalette:        "palette",
	GroupAfterPalette:   "after-palette",
	GroupImageData:      "image-data",
	GroupAfterImageData: "after-image-data",
	GroupEnd:            "end",
}

func (g ChunkGroup) String() string {
	if s, ok := groupNames[g]; ok {
		return s
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// OrderingConstraint restricts where an ancillary chunk may appear.
type OrderingConstraint int

const (
	OrderNone OrderingConstraint = iota
	OrderBeforePaletteAndImageData
	OrderAfterPaletteBeforeImageData
	OrderBeforeImageData
	OrderNotApplicable // critical chunks have fixed positions
)

func (o OrderingConstraint) String() string {
	switch o {
	case OrderNone:
		return "none"
	case OrderBeforePaletteAndImageData:
		return "before PLTE and IDAT"
	case OrderAfterPaletteBeforeImageData:
		return "after PLTE, before IDAT"
	case OrderBeforeImageData:
		return "before IDAT"
	}
	return "n/a"
}

// LoadPolicy decides which ancillary chunks a reader materializes.
type LoadPolicy int

const (
	LoadAlways LoadPolicy = iota
	LoadIfSafeOrKnown
	LoadOnlyKnown
	LoadNever
)

func (p LoadPolicy) String() string {
	switch p {
	case LoadAlways:
		return "always"
	case LoadIfSafeOrKnown:
		return "safe-or-known"
	case LoadOnlyKnown:
		return "known"
	case LoadNever:
		return "never"
	}
	return "unknown"
}

// ParseLoadPolicy accepts the names printed by String.
func ParseLoadPolicy(s string) (LoadPolicy, bool) {
	for p := LoadAlways; p <= LoadNever; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return LoadAlways, false
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLetter(c byte) bool { return isUpper(c) || (c >= 'a' && c <= 'z') }

// ValidChunkID reports whether id is four ASCII letters.
func ValidChunkID(id string) bool {
	if len(id) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if !isLetter(id[i]) {
			return false
		}
	}
	return true
}

// IsCritical: first letter uppercase.
func IsCritical(id string) bool { return len(id) == 4 && isUpper(id[0]) }

// IsPublic: second letter uppercase.
func IsPublic(id string) bool { return len(id) == 4 && isUpper(id[1]) }

// IsSafeToCopy: fourth letter lowercase.
func IsSafeToCopy(id string) bool { return len(id) == 4 && !isUpper(id[3]) }

// IsKnownChunk reports whether id has a typed codec.
func IsKnownChunk(id string) bool {
	_, ok := chunkRegistry[id]
	return ok
}

// ShouldLoad decides whether an ancillary chunk is materialized. Critical
// chunks are always loaded.
func ShouldLoad(id string, policy LoadPolicy) bool {
	if IsCritical(id) {
		return true
	}
	switch policy {
	case LoadAlways:
		return true
	case LoadIfSafeOrKnown:
		return IsKnownChunk(id) || IsSafeToCopy(id)
	case LoadOnlyKnown:
		return IsKnownChunk(id)
	}
	return false
}

// ChunkData is the typed payload of a chunk.
type ChunkData interface {
	// ChunkID is the four letter chunk type.
	ChunkID() string
	encode(info *ImageInfo) ([]byte, error)
}

// keyedChunk is implemented by repeatable chunks told apart by an inner key.
type keyedChunk interface {
	innerKey() string
}

type chunkCodec struct {
	parse    func(data []byte, info *ImageInfo) (ChunkData, error)
	ordering OrderingConstraint
	multiple bool
}

var chunkRegistry = map[string]chunkCodec{
	ChunkIHDR: {parseHeader, OrderNotApplicable, false},
	ChunkPLTE: {parsePalette, OrderNotApplicable, false},
	ChunkIDAT: {parseImageData, OrderNotApplicable, true},
	ChunkIEND: {parseEnd, OrderNotApplicable, false},

	ChunkCHRM: {parseChromaticity, OrderBeforePaletteAndImageData, false},
	ChunkGAMA: {parseGamma, OrderBeforePaletteAndImageData, false},
	ChunkICCP: {parseICCProfile, OrderBeforePaletteAndImageData, false},
	ChunkSBIT: {parseSignificantBits, OrderBeforePaletteAndImageData, false},
	ChunkSRGB: {parseSRGB, OrderBeforePaletteAndImageData, false},

	ChunkBKGD: {parseBackground, OrderAfterPaletteBeforeImageData, false},
	ChunkHIST: {parseHistogram, OrderAfterPaletteBeforeImageData, false},
	ChunkTRNS: {parseTransparency, OrderAfterPaletteBeforeImageData, false},

	ChunkPHYS: {parsePhysical, OrderBeforeImageData, false},
	ChunkSPLT: {parseSuggestedPalette, OrderBeforeImageData, true},
	ChunkOFFS: {parseOffset, OrderBeforeImageData, false},
	ChunkSTER: {parseStereo, OrderBeforeImageData, false},

	ChunkTIME: {parseTime, OrderNone, false},
	ChunkTEXT: {parseText, OrderNone, true},
	ChunkZTXT: {parseCompressedText, OrderNone, true},
	ChunkITXT: {parseInternationalText, OrderNone, true},
}

// Chunk is one chunk of a PNG stream, either read from a file or queued for
// writing.
type Chunk struct {
	ID   string
	Data ChunkData // nil for skipped chunks

	Length int   // payload length in the file
	Offset int64 // file offset of the length field; -1 if not read
	Group  ChunkGroup

	// Priority asks the writer to emit the chunk as early as allowed.
	Priority bool
	// Skipped chunks were seen but not loaded.
	Skipped bool
}

// NewChunk wraps a payload for queueing.
func NewChunk(data ChunkData) *Chunk {
	return &Chunk{ID: data.ChunkID(), Data: data, Offset: -1, Group: GroupNone}
}

// Ordering is the placement constraint of the chunk type.
func (c *Chunk) Ordering() OrderingConstraint { return ChunkOrdering(c.ID) }

// AllowsMultiple reports whether the chunk type may repeat.
func (c *Chunk) AllowsMultiple() bool { return ChunkAllowsMultiple(c.ID) }

// ChunkOrdering is the placement constraint of a chunk id. Unknown
// ancillary chunks are unconstrained.
func ChunkOrdering(id string) OrderingConstraint {
	if codec, ok := chunkRegistry[id]; ok {
		return codec.ordering
	}
	if IsCritical(id) {
		return OrderNotApplicable
	}
	return OrderNone
}

// ChunkAllowsMultiple reports whether a chunk id may repeat. Unknown chunks
// may.
func ChunkAllowsMultiple(id string) bool {
	if codec, ok := chunkRegistry[id]; ok {
		return codec.multiple
	}
	return true
}

func (c *Chunk) String() string {
	if c.Skipped {
		return fmt.Sprintf("%s (skipped, %d bytes)", c.ID, c.Length)
	}
	return fmt.Sprintf("%s (%d bytes)", c.ID, c.Length)
}

// Equivalent reports whether two chunks would be duplicates of each other.
// Single chunks with the same id always are; repeatable chunks only when they
// share an inner key such as a text keyword. Repeatable chunks without a key
// never are.
func Equivalent(a, b *Chunk) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.ID != b.ID {
		return false
	}
	if !a.AllowsMultiple() {
		return true
	}
	ka, okA := a.Data.(keyedChunk)
	kb, okB := b.Data.(keyedChunk)
	if !okA || !okB {
		return false
	}
	return ka.innerKey() == kb.innerKey()
}

// parseChunk turns a raw payload into typed data.
func parseChunk(id string, data []byte, info *ImageInfo) (ChunkData, error) {
	codec, ok := chunkRegistry[id]
	if !ok {
		return &UnknownChunk{Type: id, Data: data}, nil
	}
	d, err := codec.parse(data, info)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UnknownChunk carries a chunk type without a codec, byte for byte.
type UnknownChunk struct {
	Type string
	Data []byte
}

func (c *UnknownChunk) ChunkID() string { return c.Type }

func (c *UnknownChunk) encode(*ImageInfo) ([]byte, error) {
	return c.Data, nil
}
