//
// ICC profiles in TIFF files
//
// The profile is the value of tag 34675 (InterColorProfile) in any image
// file directory.
// https://www.adobe.io/open/standards/TIFF.html
//

package iccsource

import (
	"io"

	bst "github.com/mixcode/binarystruct"
	"github.com/mixcode/pngstream/internal/oops"
)

const tiffTagICCProfile = 0x8773

const (
	tiffTypeBYTE      = 1
	tiffTypeUNDEFINED = 7
)

// byte size of a value of each TIFF type, indexed by type code
var tiffTypeSize = []int{
	0,
	1, 1, 2, 4, 8, // BYTE, ASCII, SHORT, LONG, RATIONAL
	1, 1, 2, 4, 8, // SBYTE, UNDEFINED, SSHORT, SLONG, SRATIONAL
	4, 8, // FLOAT, DOUBLE
}

const maxTIFFProfile = 64 << 20

// maximum number of directories followed, guarding against offset loops
const maxTIFFDirectories = 1024

type tiffHeader struct {
	Magic     uint16
	OffsetIFD int64 `binary:"uint32"`
}

// image file directory
type tiffIFD struct {
	NumEntry      int            `binary:"uint16"`
	Entries       []tiffDirEntry `binary:"[NumEntry]"`
	OffsetNextIFD int64          `binary:"uint32"`
}

type tiffDirEntry struct {
	Tag   uint16
	Type  uint16
	Count int    `binary:"uint32"`
	Value uint32 // the value itself if it fits in 4 bytes, else its offset
}

// rawBytes loads the value of a byte-typed entry.
func (d *tiffDirEntry) rawBytes(in io.ReadSeeker, endian bst.ByteOrder) ([]byte, error) {
	if d.Type != tiffTypeBYTE && d.Type != tiffTypeUNDEFINED {
		return nil, formatErr("TIFF tag %#04x has type %d, want bytes", d.Tag, d.Type)
	}
	size := d.Count * tiffTypeSize[d.Type]
	if size > maxTIFFProfile {
		return nil, formatErr("TIFF tag %#04x claims %d bytes", d.Tag, size)
	}
	if size <= 4 {
		b, err := bst.Marshal(d.Value, endian)
		if err != nil {
			return nil, oops.New(err, "unpacking TIFF tag %#04x", d.Tag)
		}
		return b[:size], nil
	}
	if _, err := in.Seek(int64(d.Value), io.SeekStart); err != nil {
		return nil, oops.New(err, "seeking to TIFF tag %#04x", d.Tag)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(in, b); err != nil {
		return nil, readErr(err, "reading TIFF tag %#04x", d.Tag)
	}
	return b, nil
}

// FromTIFF reads the ICC profile of a TIFF file. Every directory in the
// chain is searched; the first profile found wins.
// If there is no ICC profile then nil data and no error is returned.
func FromTIFF(in io.ReadSeeker) ([]byte, error) {
	var order [2]byte
	if _, err := io.ReadFull(in, order[:]); err != nil {
		return nil, readErr(err, "reading TIFF header")
	}
	var endian bst.ByteOrder
	switch string(order[:]) {
	case "II":
		endian = bst.LittleEndian
	case "MM":
		endian = bst.BigEndian
	default:
		return nil, formatErr("invalid TIFF byte order %q", order[:])
	}

	var h tiffHeader
	if _, err := bst.Read(in, endian, &h); err != nil {
		return nil, readErr(err, "reading TIFF header")
	}
	if h.Magic != 42 {
		return nil, formatErr("invalid TIFF magic number %d", h.Magic)
	}

	offset := h.OffsetIFD
	for i := 0; offset != 0; i++ {
		if i == maxTIFFDirectories {
			return nil, formatErr("more than %d TIFF directories", maxTIFFDirectories)
		}
		if _, err := in.Seek(offset, io.SeekStart); err != nil {
			return nil, oops.New(err, "seeking to TIFF directory")
		}
		var ifd tiffIFD
		if _, err := bst.Read(in, endian, &ifd); err != nil {
			return nil, readErr(err, "reading TIFF directory at %d", offset)
		}
		for _, d := range ifd.Entries {
			if d.Tag == tiffTagICCProfile {
				return d.rawBytes(in, endian)
			}
		}
		offset = ifd.OffsetNextIFD
	}
	return nil, nil
}
