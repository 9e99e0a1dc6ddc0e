//
// chunk checksums
//
// PNG Second Edition, CRC algorithm
// https://www.w3.org/TR/2003/REC-PNG-20031110/#D-CRCAppendix
//

package pngstream

import (
	"hash"
	"hash/crc32"
	"io"
)

// crcReader is a reader with a built-in CRC32 calculator
type crcReader struct {
	R   io.Reader
	Crc hash.Hash32
}

func newCrcReader(r io.Reader) *crcReader {
	return &crcReader{R: r, Crc: crc32.NewIEEE()}
}

// reset CRC calculator; a chunk CRC starts with the chunk id
func (c *crcReader) ResetCRC(initialData []byte) {
	c.Crc.Reset()
	if initialData != nil {
		c.Crc.Write(initialData)
	}
}

// read data and update CRC32
func (c *crcReader) Read(p []byte) (n int, err error) {
	n, err = c.R.Read(p)
	if n > 0 {
		c.Crc.Write(p[:n])
	}
	return
}

// chunkCRC computes the CRC of a chunk from its id and payload.
func chunkCRC(id string, data []byte) uint32 {
	c := crc32.NewIEEE()
	c.Write([]byte(id))
	c.Write(data)
	return c.Sum32()
}
