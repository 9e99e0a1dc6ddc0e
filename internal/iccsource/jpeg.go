//
// ICC profiles in JPEG files
//
// The profile is split over APP2 segments tagged "ICC_PROFILE\0", each with
// a 1-based sequence number and the total segment count.
// https://www.color.org/specification/ICC1v43_2010-12.pdf (annex B.4)
//

package iccsource

import (
	"bufio"
	"bytes"
	"io"

	bst "github.com/mixcode/binarystruct"
	"github.com/mixcode/pngstream/internal/logging"
)

const (
	markerTEM  = 0x01
	markerRST0 = 0xd0
	markerRST7 = 0xd7
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerAPP2 = 0xe2
)

const iccSegmentTag = "ICC_PROFILE\x00"

type jpegICCHeader struct {
	Tag   string `binary:"[12]byte"`
	Seq   int    `binary:"uint8"`
	Count int    `binary:"uint8"`
}

// FromJPEG reads the ICC profile of a JPEG stream.
// If there is no ICC profile then nil data and no error is returned.
func FromJPEG(in io.Reader) ([]byte, error) {
	br := bufio.NewReader(in)

	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil {
		return nil, readErr(err, "reading JPEG start of image")
	}
	if soi[0] != 0xff || soi[1] != markerSOI {
		return nil, formatErr("JPEG start of image marker not found")
	}

	var parts [][]byte
	marker, err := nextMarker(br)
	for err == nil && marker != markerEOI {
		if marker == markerTEM || (markerRST0 <= marker && marker <= markerRST7) {
			marker, err = nextMarker(br)
			continue
		}

		var seg struct {
			Length int `binary:"uint16"`
		}
		if _, err = bst.Read(br, bst.BigEndian, &seg); err != nil {
			return nil, readErr(err, "reading JPEG segment %#02x", marker)
		}
		size := seg.Length - 2 // the length counts itself
		if size < 0 {
			return nil, formatErr("JPEG segment %#02x has length %d", marker, seg.Length)
		}

		switch {
		case marker == markerAPP2 && size >= len(iccSegmentTag)+2:
			payload := make([]byte, size)
			if _, err = io.ReadFull(br, payload); err != nil {
				return nil, readErr(err, "reading APP2 segment")
			}
			var h jpegICCHeader
			n, _ := bst.Unmarshal(payload, bst.BigEndian, &h)
			if h.Tag == iccSegmentTag {
				if parts, err = addICCSegment(parts, h, payload[n:]); err != nil {
					return nil, err
				}
				if complete(parts) {
					return bytes.Join(parts, nil), nil
				}
			}
			marker, err = nextMarker(br)

		case marker == markerSOS:
			if _, err = br.Discard(size); err != nil {
				return nil, readErr(err, "skipping scan header")
			}
			marker, err = skipEntropyData(br)

		default:
			if _, err = br.Discard(size); err != nil {
				return nil, readErr(err, "skipping JPEG segment %#02x", marker)
			}
			marker, err = nextMarker(br)
		}
	}
	if err != nil {
		return nil, readErr(err, "reading JPEG marker")
	}
	if parts != nil {
		return nil, formatErr("ICC profile has %d segments, some are missing", len(parts))
	}
	return nil, nil
}

func addICCSegment(parts [][]byte, h jpegICCHeader, data []byte) ([][]byte, error) {
	if h.Count == 0 || h.Seq == 0 || h.Seq > h.Count {
		return nil, formatErr("ICC profile segment %d of %d", h.Seq, h.Count)
	}
	if parts == nil {
		parts = make([][]byte, h.Count)
	}
	if len(parts) != h.Count {
		return nil, formatErr("ICC profile segment count changed from %d to %d", len(parts), h.Count)
	}
	if parts[h.Seq-1] != nil {
		return nil, formatErr("ICC profile segment %d repeated", h.Seq)
	}
	parts[h.Seq-1] = data
	return parts, nil
}

func complete(parts [][]byte) bool {
	for _, p := range parts {
		if p == nil {
			return false
		}
	}
	return true
}

// nextMarker returns the code of the next marker, skipping fill bytes.
func nextMarker(br *bufio.Reader) (byte, error) {
	garbage := 0
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if c != 0xff {
			garbage++
			continue
		}
		for c == 0xff {
			if c, err = br.ReadByte(); err != nil {
				return 0, err
			}
		}
		if c == 0 {
			garbage += 2
			continue
		}
		if garbage > 0 {
			logging.Warn().Int("bytes", garbage).Msg("JPEG: unaligned segment marker")
		}
		return c, nil
	}
}

// skipEntropyData walks over the compressed data following a scan header and
// returns the marker that ends it. Stuffed 0xff00 pairs and restart markers
// are part of the data.
func skipEntropyData(br *bufio.Reader) (byte, error) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if c != 0xff {
			continue
		}
		for c == 0xff {
			if c, err = br.ReadByte(); err != nil {
				return 0, err
			}
		}
		if c == 0 || (markerRST0 <= c && c <= markerRST7) {
			continue
		}
		return c, nil
	}
}
