//
// read embedded ICC profile from a PNG file
//

package pngstream

import (
	"io"
)

// LoadICCProfile reads the ICC profile embedded in a PNG stream, with the
// profile name stored next to it. Only the chunks before the image data are
// read. If there is no ICC profile then nil data and no error is returned.
func LoadICCProfile(in io.Reader) (iccProfile []byte, profileName string, err error) {
	cfg := DefaultReaderConfig()
	cfg.LoadPolicy = LoadOnlyKnown
	cfg.CloseSource = false
	r, err := NewReader(in, &cfg)
	if err != nil {
		return
	}
	defer r.Abort()

	p := r.Metadata().ICCProfile()
	if p == nil {
		// PNG does not contain an ICC profile
		// no error; just return nil
		return
	}
	return p.Profile, p.Name, nil
}
