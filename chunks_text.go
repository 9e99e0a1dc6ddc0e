//
// textual chunks: tEXt, zTXt, iTXt
//
// PNG Second Edition, textual information
// https://www.w3.org/TR/2003/REC-PNG-20031110/#11textinfo
//

package pngstream

import (
	"bytes"
	"strings"
	"unicode/utf8"

	bst "github.com/mixcode/binarystruct"
	"golang.org/x/text/encoding/charmap"
)

const (
	maxKeywordLen = 79
	// inflated text and profiles are capped at this size
	maxInflatedChunk = 16 << 20
)

// TextualChunk is implemented by tEXt, zTXt and iTXt.
type TextualChunk interface {
	ChunkData
	Key() string
	Value() string
}

// header shared by zTXt and iCCP: a NUL-terminated keyword and a method byte
type keywordMethodHeader struct {
	Keyword string `binary:"zstring"`
	Method  byte
}

func latin1Decode(b []byte) (string, error) {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	return string(s), err
}

func latin1Encode(s string) ([]byte, error) {
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
}

// checkKeyword applies the keyword rules to the Latin-1 form.
func checkKeyword(id string, kw []byte) error {
	if len(kw) < 1 || len(kw) > maxKeywordLen {
		return formatErr("%s: keyword length %d", id, len(kw))
	}
	if kw[0] == ' ' || kw[len(kw)-1] == ' ' {
		return formatErr("%s: keyword %q has surrounding spaces", id, kw)
	}
	for i, c := range kw {
		if c == 0 || (c < 32) || (c > 126 && c < 161) {
			return formatErr("%s: keyword %q has a bad character", id, kw)
		}
		if c == ' ' && i > 0 && kw[i-1] == ' ' {
			return formatErr("%s: keyword %q has consecutive spaces", id, kw)
		}
	}
	return nil
}

func encodeKeyword(id, keyword string) ([]byte, error) {
	kw, err := latin1Encode(keyword)
	if err != nil {
		return nil, formatErr("%s: keyword %q is not Latin-1", id, keyword)
	}
	if err := checkKeyword(id, kw); err != nil {
		return nil, err
	}
	return kw, nil
}

// TextChunk is a tEXt: Latin-1 keyword and text.
type TextChunk struct {
	Keyword string
	Text    string
}

func (c *TextChunk) ChunkID() string  { return ChunkTEXT }
func (c *TextChunk) Key() string      { return c.Keyword }
func (c *TextChunk) Value() string    { return c.Text }
func (c *TextChunk) innerKey() string { return c.Keyword }

func (c *TextChunk) encode(*ImageInfo) ([]byte, error) {
	kw, err := encodeKeyword(ChunkTEXT, c.Keyword)
	if err != nil {
		return nil, err
	}
	text, err := latin1Encode(c.Text)
	if err != nil {
		return nil, formatErr("tEXt: text is not Latin-1")
	}
	b := append(kw, 0)
	return append(b, text...), nil
}

func parseText(data []byte, _ *ImageInfo) (ChunkData, error) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return nil, formatErr("tEXt: missing keyword separator")
	}
	if err := checkKeyword(ChunkTEXT, data[:i]); err != nil {
		return nil, err
	}
	kw, _ := latin1Decode(data[:i])
	text, _ := latin1Decode(data[i+1:])
	return &TextChunk{Keyword: kw, Text: text}, nil
}

// CompressedTextChunk is a zTXt: like tEXt with the text deflated.
type CompressedTextChunk struct {
	Keyword string
	Text    string
}

func (c *CompressedTextChunk) ChunkID() string  { return ChunkZTXT }
func (c *CompressedTextChunk) Key() string      { return c.Keyword }
func (c *CompressedTextChunk) Value() string    { return c.Text }
func (c *CompressedTextChunk) innerKey() string { return c.Keyword }

func (c *CompressedTextChunk) encode(*ImageInfo) ([]byte, error) {
	kw, err := encodeKeyword(ChunkZTXT, c.Keyword)
	if err != nil {
		return nil, err
	}
	text, err := latin1Encode(c.Text)
	if err != nil {
		return nil, formatErr("zTXt: text is not Latin-1")
	}
	head, err := marshalFixed(ChunkZTXT, keywordMethodHeader{Keyword: string(kw)})
	if err != nil {
		return nil, err
	}
	z, err := compressBytes(text)
	if err != nil {
		return nil, err
	}
	return append(head, z...), nil
}

func parseCompressedText(data []byte, _ *ImageInfo) (ChunkData, error) {
	kw, rest, err := readKeywordMethod(ChunkZTXT, data)
	if err != nil {
		return nil, err
	}
	raw, err := decompressBytes(rest, maxInflatedChunk)
	if err != nil {
		return nil, err
	}
	text, _ := latin1Decode(raw)
	return &CompressedTextChunk{Keyword: kw, Text: text}, nil
}

// readKeywordMethod splits a keyword+method header off a payload.
func readKeywordMethod(id string, data []byte) (keyword string, rest []byte, err error) {
	var h keywordMethodHeader
	n, err := bst.Read(bytes.NewReader(data), bst.BigEndian, &h)
	if err != nil {
		err = formatErr("%s: truncated header", id)
		return
	}
	if err = checkKeyword(id, []byte(h.Keyword)); err != nil {
		return
	}
	if h.Method != 0 {
		err = formatErr("%s: unknown compression method %d", id, h.Method)
		return
	}
	keyword, _ = latin1Decode([]byte(h.Keyword))
	rest = data[n:]
	return
}

// InternationalTextChunk is an iTXt: UTF-8 text with a language tag, stored
// plain or deflated.
type InternationalTextChunk struct {
	Keyword           string
	Compressed        bool
	LanguageTag       string
	TranslatedKeyword string
	Text              string
}

func (c *InternationalTextChunk) ChunkID() string  { return ChunkITXT }
func (c *InternationalTextChunk) Key() string      { return c.Keyword }
func (c *InternationalTextChunk) Value() string    { return c.Text }
func (c *InternationalTextChunk) innerKey() string { return c.Keyword }

func (c *InternationalTextChunk) encode(*ImageInfo) ([]byte, error) {
	kw, err := encodeKeyword(ChunkITXT, c.Keyword)
	if err != nil {
		return nil, err
	}
	if strings.IndexByte(c.LanguageTag, 0) >= 0 || strings.IndexByte(c.TranslatedKeyword, 0) >= 0 {
		return nil, formatErr("iTXt: NUL in language tag or translated keyword")
	}
	var b bytes.Buffer
	b.Write(kw)
	b.WriteByte(0)
	text := []byte(c.Text)
	if c.Compressed {
		b.Write([]byte{1, 0})
		if text, err = compressBytes(text); err != nil {
			return nil, err
		}
	} else {
		b.Write([]byte{0, 0})
	}
	b.WriteString(c.LanguageTag)
	b.WriteByte(0)
	b.WriteString(c.TranslatedKeyword)
	b.WriteByte(0)
	b.Write(text)
	return b.Bytes(), nil
}

func parseInternationalText(data []byte, _ *ImageInfo) (ChunkData, error) {
	fields := bytes.SplitN(data, []byte{0}, 2)
	if len(fields) != 2 || len(fields[1]) < 2 {
		return nil, formatErr("iTXt: truncated")
	}
	if err := checkKeyword(ChunkITXT, fields[0]); err != nil {
		return nil, err
	}
	kw, _ := latin1Decode(fields[0])
	flag, method, rest := fields[1][0], fields[1][1], fields[1][2:]
	if flag > 1 {
		return nil, formatErr("iTXt: bad compression flag %d", flag)
	}
	if flag == 1 && method != 0 {
		return nil, formatErr("iTXt: unknown compression method %d", method)
	}
	parts := bytes.SplitN(rest, []byte{0}, 3)
	if len(parts) != 3 {
		return nil, formatErr("iTXt: missing separators")
	}
	text := parts[2]
	if flag == 1 {
		var err error
		if text, err = decompressBytes(text, maxInflatedChunk); err != nil {
			return nil, err
		}
	}
	if !utf8.Valid(text) || !utf8.Valid(parts[1]) {
		return nil, formatErr("iTXt: text is not UTF-8")
	}
	return &InternationalTextChunk{
		Keyword:           kw,
		Compressed:        flag == 1,
		LanguageTag:       string(parts[0]),
		TranslatedKeyword: string(parts[1]),
		Text:              string(text),
	}, nil
}

// newTextChunk picks the cheapest text chunk type able to hold the value:
// tEXt for short Latin-1, zTXt for long Latin-1, iTXt otherwise.
func newTextChunk(key, value string, compressAbove int) TextualChunk {
	_, err := latin1Encode(value)
	latin1 := err == nil
	long := compressAbove > 0 && len(value) > compressAbove
	switch {
	case latin1 && !long:
		return &TextChunk{Keyword: key, Text: value}
	case latin1:
		return &CompressedTextChunk{Keyword: key, Text: value}
	}
	return &InternationalTextChunk{Keyword: key, Text: value, Compressed: long}
}
