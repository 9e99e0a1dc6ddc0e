// Package iccsource finds the ICC colour profile embedded in an image file,
// so that converted images can carry it over into an iCCP chunk.
package iccsource

import (
	"bytes"
	"errors"
	"io"

	"github.com/mixcode/pngstream"
	"github.com/mixcode/pngstream/internal/oops"
)

// Container formats recognised by Load.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatTIFF = "tiff"
)

// ErrUnknownFormat is returned by Load for files it cannot identify.
var ErrUnknownFormat = errors.New("iccsource: unknown image format")

// Profile is an ICC profile lifted out of a container.
type Profile struct {
	Format string // container format the profile was found in
	Name   string // profile name; only PNG stores one
	Data   []byte
}

// Load sniffs the container format of in and returns its embedded profile.
// A file without a profile yields a nil Profile and no error.
func Load(in io.ReadSeeker) (*Profile, error) {
	var magic [8]byte
	n, err := io.ReadFull(in, magic[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, readErr(err, "reading file signature")
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return nil, oops.New(err, "rewinding")
	}

	var (
		format string
		data   []byte
		name   string
	)
	head := magic[:n]
	switch {
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		format = FormatPNG
		data, name, err = pngstream.LoadICCProfile(in)
	case bytes.HasPrefix(head, []byte{0xff, markerSOI}):
		format = FormatJPEG
		data, err = FromJPEG(in)
	case bytes.HasPrefix(head, []byte("GIF8")):
		format = FormatGIF
		data, err = FromGIF(in)
	case bytes.HasPrefix(head, []byte("II*\x00")), bytes.HasPrefix(head, []byte("MM\x00*")):
		format = FormatTIFF
		data, err = FromTIFF(in)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return &Profile{Format: format, Name: name, Data: data}, nil
}

// Chunk turns the profile into an iCCP chunk. Containers without a profile
// name get fallback as the name.
func (p *Profile) Chunk(fallback string) *pngstream.ICCProfileChunk {
	name := p.Name
	if name == "" {
		name = fallback
	}
	return &pngstream.ICCProfileChunk{Name: name, Profile: p.Data}
}

func formatErr(format string, args ...interface{}) error {
	return oops.New(pngstream.ErrFormat, format, args...)
}

func readErr(err error, format string, args ...interface{}) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return oops.New(err, format, args...)
}
