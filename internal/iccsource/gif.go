//
// ICC profiles in GIF files
//
// The profile is the data of an application extension "ICCRGBG1" with
// authentication code "012".
// https://www.w3.org/Graphics/GIF/spec-gif89a.txt
//

package iccsource

import (
	"bufio"
	"bytes"
	"io"

	bst "github.com/mixcode/binarystruct"
)

const (
	gifImageDescriptor = 0x2c
	gifExtension       = 0x21
	gifTrailer         = 0x3b

	gifextApplication = 0xff
)

type gifHeader struct {
	Signature        string `binary:"[6]byte"`
	Width, Height    int    `binary:"uint16"`
	Flag             byte
	BGColorIndex     byte
	PixelAspectRatio byte
}

type gifImageHeader struct {
	Left, Top, Width, Height int `binary:"uint16"`
	Flag                     byte
}

// colorTableSize is the byte size of the colour table announced by a header
// flag byte.
func colorTableSize(flag byte) int {
	if flag&0x80 == 0 {
		return 0
	}
	return 3 << (1 + flag&0x07)
}

// FromGIF reads the ICC profile of a GIF stream.
// If there is no ICC profile then nil data and no error is returned.
func FromGIF(in io.Reader) ([]byte, error) {
	br := bufio.NewReader(in)

	var h gifHeader
	if _, err := bst.Read(br, bst.LittleEndian, &h); err != nil {
		return nil, readErr(err, "reading GIF header")
	}
	if h.Signature != "GIF87a" && h.Signature != "GIF89a" {
		return nil, formatErr("invalid GIF signature %q", h.Signature)
	}
	if _, err := br.Discard(colorTableSize(h.Flag)); err != nil {
		return nil, readErr(err, "skipping global colour table")
	}

	for {
		c, err := br.ReadByte()
		if err != nil {
			return nil, readErr(err, "reading GIF block")
		}
		switch c {
		case gifTrailer:
			return nil, nil

		case gifImageDescriptor:
			var ih gifImageHeader
			if _, err := bst.Read(br, bst.LittleEndian, &ih); err != nil {
				return nil, readErr(err, "reading GIF image descriptor")
			}
			// local colour table and the LZW minimum code size
			if _, err := br.Discard(colorTableSize(ih.Flag) + 1); err != nil {
				return nil, readErr(err, "skipping local colour table")
			}
			if err := skipSubBlocks(br); err != nil {
				return nil, err
			}

		case gifExtension:
			label, err := br.ReadByte()
			if err != nil {
				return nil, readErr(err, "reading GIF extension")
			}
			if label != gifextApplication {
				if err := skipSubBlocks(br); err != nil {
					return nil, err
				}
				continue
			}
			id, err := readSubBlock(br)
			if err != nil {
				return nil, err
			}
			if len(id) != 8+3 {
				return nil, formatErr("GIF application extension identifier is %d bytes", len(id))
			}
			if string(id) == "ICCRGBG1012" {
				return readSubBlocks(br)
			}
			if err := skipSubBlocks(br); err != nil {
				return nil, err
			}

		default:
			return nil, formatErr("unknown GIF block %#02x", c)
		}
	}
}

func readSubBlock(br *bufio.Reader) ([]byte, error) {
	size, err := br.ReadByte()
	if err != nil {
		return nil, readErr(err, "reading GIF sub-block")
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, readErr(err, "reading GIF sub-block")
	}
	return b, nil
}

// readSubBlocks concatenates a sub-block chain up to its terminator.
func readSubBlocks(br *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		b, err := readSubBlock(br)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			break
		}
		buf.Write(b)
	}
	if buf.Len() == 0 {
		return nil, nil
	}
	return buf.Bytes(), nil
}

func skipSubBlocks(br *bufio.Reader) error {
	for {
		size, err := br.ReadByte()
		if err != nil {
			return readErr(err, "skipping GIF sub-blocks")
		}
		if size == 0 {
			return nil
		}
		if _, err := br.Discard(int(size)); err != nil {
			return readErr(err, "skipping GIF sub-blocks")
		}
	}
}
