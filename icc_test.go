package pngstream

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

func TestICCfromPNG(t *testing.T) {
	var err error

	profile := bytes.Repeat([]byte{'a', 'c', 's', 'p', 0, 1, 2, 3}, 300)
	iccsum := crc32.ChecksumIEEE(profile)

	info := mustInfo(t, 4, 4, 8, false, false, false)
	data := encodeRaster(t, info, randomRaster(info, 1), nil, func(w *Writer) {
		if err := w.SetICCProfile("test profile", profile); err != nil {
			t.Fatal(err)
		}
	})

	pngname := filepath.Join(t.TempDir(), "icc.png")
	if err = os.WriteFile(pngname, data, 0644); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Open(pngname)
	if err != nil {
		t.Fatal(err)
	}
	defer fi.Close()

	icc, name, err := LoadICCProfile(fi)
	if err != nil {
		t.Fatal(err)
	}
	if name != "test profile" {
		t.Fatalf("profile name %q", name)
	}
	if crc32.ChecksumIEEE(icc) != iccsum {
		t.Fatalf("checksum does not match")
	}

	// the file is left open for the caller
	if _, err = fi.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
}

func TestICCfromPNGWithoutProfile(t *testing.T) {
	info := mustInfo(t, 2, 2, 8, false, true, false)
	data := encodeRaster(t, info, randomRaster(info, 1), nil, nil)

	icc, name, err := LoadICCProfile(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if icc != nil || name != "" {
		t.Fatalf("unexpected profile %q of %d bytes", name, len(icc))
	}
}

func TestICCfromNonPNG(t *testing.T) {
	_, _, err := LoadICCProfile(bytes.NewReader([]byte("\xff\xd8\xff\xe0 a jpeg")))
	if err == nil {
		t.Fatal("expected an error")
	}
}
