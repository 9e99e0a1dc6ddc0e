//
// chunk framing: length, type, data, CRC
//
// PNG Second Edition, chunk layout
// https://www.w3.org/TR/2003/REC-PNG-20031110/#5Chunk-layout
//

package pngstream

import (
	"bytes"
	"io"

	bst "github.com/mixcode/binarystruct"
)

var (
	pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a} // PNG file header
)

const (
	chunkHeaderSize  = 8 // length + type
	chunkTrailerSize = 4 // CRC32
	maxChunkLength   = 1<<31 - 1
)

// a chunk header. {DataLen, Type}
// Value is stored in big-endian.
type chunkHeader struct {
	DataLen int    `binary:"uint32"`  // size of actual data
	Type    string `binary:"[4]byte"` // type is 4-byte char sequence
}

// readSignature checks the 8-byte PNG signature.
func readSignature(r io.Reader) error {
	h := make([]byte, len(pngHeader))
	if _, err := io.ReadFull(r, h); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return formatErr("invalid PNG header: stream too short")
		}
		return ioErr(err, "reading PNG header")
	}
	if !bytes.Equal(h, pngHeader) {
		return formatErr("invalid PNG header")
	}
	return nil
}

// readChunkHeader reads the length and type of the next chunk.
func readChunkHeader(r io.Reader) (length int, id string, err error) {
	var ch chunkHeader
	if _, err = bst.Read(r, bst.BigEndian, &ch); err != nil {
		err = ioErr(err, "reading chunk header")
		return
	}
	if ch.DataLen < 0 || ch.DataLen > maxChunkLength {
		err = formatErr("chunk %q: bad length %d", ch.Type, ch.DataLen)
		return
	}
	if !ValidChunkID(ch.Type) {
		err = formatErr("bad chunk type %q", ch.Type)
		return
	}
	return ch.DataLen, ch.Type, nil
}

// readChunkPayload reads the payload and CRC of a chunk whose header was
// just read. The CRC is compared only when verify is set.
func readChunkPayload(r io.Reader, id string, length int, verify bool) (data []byte, err error) {
	cr := newCrcReader(r)
	cr.ResetCRC([]byte(id))
	data = make([]byte, length)
	if _, err = io.ReadFull(cr, data); err != nil {
		return nil, ioErr(err, "reading chunk %s", id)
	}
	var chunkCRC32 uint32
	if _, err = bst.Read(r, bst.BigEndian, &chunkCRC32); err != nil {
		return nil, ioErr(err, "reading CRC of chunk %s", id)
	}
	if verify && chunkCRC32 != cr.Crc.Sum32() {
		return nil, integrityErr("chunk %s has invalid CRC", id)
	}
	return data, nil
}

// skipChunkPayload discards the payload and CRC of a chunk unchecked.
func skipChunkPayload(r io.Reader, id string, length int) error {
	n, err := io.CopyN(io.Discard, r, int64(length)+chunkTrailerSize)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return ioErr(err, "skipping chunk %s after %d bytes", id, n)
	}
	return nil
}

// writeChunk frames one chunk.
func writeChunk(w io.Writer, id string, data []byte) error {
	head, err := bst.Marshal(chunkHeader{DataLen: len(data), Type: id}, bst.BigEndian)
	if err != nil {
		return formatErr("chunk %q: %v", id, err)
	}
	if _, err = w.Write(head); err != nil {
		return ioErr(err, "writing chunk %s", id)
	}
	if _, err = w.Write(data); err != nil {
		return ioErr(err, "writing chunk %s", id)
	}
	trailer, err := bst.Marshal(chunkCRC(id, data), bst.BigEndian)
	if err != nil {
		return formatErr("chunk %q: %v", id, err)
	}
	if _, err = w.Write(trailer); err != nil {
		return ioErr(err, "writing chunk %s", id)
	}
	return nil
}
