//
// row-by-row PNG encoding
//
// PNG Second Edition, encoder requirements
// https://www.w3.org/TR/2003/REC-PNG-20031110/#12Encoders
//

package pngstream

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"
)

// Writer encodes a PNG stream one row at a time.
//
// Ancillary chunks are queued with the Set* methods, QueueChunk or
// CopyChunks and written at the earliest or latest position their type
// allows. The signature, the header and every chunk that must precede the
// image data go out with the first row. Rows follow in order; Close writes
// what is left and the IEND. Interlaced output is not supported. A Writer is
// not safe for concurrent use.
type Writer struct {
	Info ImageInfo

	cfg WriterConfig
	log zerolog.Logger
	dst io.Writer
	out *bufio.Writer

	group   ChunkGroup
	queued  []*Chunk
	written []*Chunk
	copied  map[*Chunk]bool
	sources []copySource

	curRow          int
	rowRaw, rowPrev []byte
	filtered        [nFilterTypes][]byte // filter byte at index 0
	tried           [nFilterTypes]bool
	scratch         *SampleLine

	idat     *idatWriter
	deflater *zlib.Writer
	rawBytes int64

	err    error
	closed bool
}

// NewWriter prepares an encode session; nothing is written before the first
// row. cfg may be nil for defaults.
func NewWriter(dst io.Writer, info ImageInfo, cfg *WriterConfig) (*Writer, error) {
	c := DefaultWriterConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.MaxIDATSize < minIDATSize {
		c.MaxIDATSize = DefaultMaxIDATSize
	}
	if c.Filter == nil {
		c.Filter = FilterAdaptive
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		c.CompressionLevel = DefaultCompressionLevel
	}
	if info.Channels == 0 {
		return nil, formatErr("image info was not built with NewImageInfo")
	}
	w := &Writer{
		Info:   info,
		cfg:    c,
		log:    loggerOrGlobal(c.Logger).With().Str("codec", "png-write").Logger(),
		dst:    dst,
		out:    bufio.NewWriter(dst),
		group:  GroupNone,
		copied: map[*Chunk]bool{},
		curRow: -1,
	}
	w.rowRaw = make([]byte, info.BytesPerRow)
	w.rowPrev = make([]byte, info.BytesPerRow)
	for i := range w.filtered {
		w.filtered[i] = make([]byte, info.BytesPerRow+1)
	}
	return w, nil
}

func (w *Writer) usable() error {
	if w.err != nil {
		return sequenceErr("writer already failed: %v", w.err)
	}
	if w.closed {
		return sequenceErr("writer closed")
	}
	return nil
}

func (w *Writer) abort(err error) error {
	if w.err == nil {
		w.err = err
		w.log.Debug().Err(err).Msg("write session aborted")
	}
	w.closeSink()
	return err
}

func (w *Writer) closeSink() {
	if w.closed {
		return
	}
	w.closed = true
	if c, ok := w.dst.(io.Closer); ok && w.cfg.CloseSink {
		c.Close()
	}
}

// CurrentGroup is the position of the writer in the chunk stream.
func (w *Writer) CurrentGroup() ChunkGroup { return w.group }

// Written lists the chunks emitted so far, excluding IHDR, IDAT and IEND.
func (w *Writer) Written() []*Chunk { return w.written }

// Queued lists the chunks waiting for their position.
func (w *Writer) Queued() []*Chunk { return w.queued }

// QueueChunk holds an ancillary chunk (or the PLTE) until its position comes
// up. priority asks for the earliest allowed position instead of the latest.
func (w *Writer) QueueChunk(data ChunkData, priority bool) error {
	if err := w.usable(); err != nil {
		return err
	}
	c := NewChunk(data)
	c.Priority = priority
	if err := w.queue(c, false); err != nil {
		return w.abort(err)
	}
	return nil
}

// queue validates c and appends it. replace drops queued equivalents first.
func (w *Writer) queue(c *Chunk, replace bool) error {
	if !ValidChunkID(c.ID) {
		return formatErr("bad chunk type %q", c.ID)
	}
	if IsCritical(c.ID) && c.ID != ChunkPLTE {
		return formatErr("critical chunk %s cannot be queued", c.ID)
	}
	if c.ID == ChunkPLTE && w.Info.Greyscale {
		return formatErr("PLTE in a greyscale image")
	}
	if replace {
		kept := w.queued[:0]
		for _, q := range w.queued {
			if !Equivalent(q, c) {
				kept = append(kept, q)
			}
		}
		w.queued = kept
	}
	if !c.AllowsMultiple() && w.hasEquivalent(c) {
		return formatErr("duplicate %s chunk", c.ID)
	}
	w.queued = append(w.queued, c)
	return nil
}

func (w *Writer) hasEquivalent(c *Chunk) bool {
	for _, list := range [][]*Chunk{w.queued, w.written} {
		for _, q := range list {
			if Equivalent(q, c) {
				return true
			}
		}
	}
	return false
}

// setter queues metadata, replacing an earlier value.
func (w *Writer) setter(data ChunkData) error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.curRow >= 0 {
		return w.abort(sequenceErr("%s set after the first row", data.ChunkID()))
	}
	if err := w.queue(NewChunk(data), true); err != nil {
		return w.abort(err)
	}
	return nil
}

// SetPalette sets the PLTE.
func (w *Writer) SetPalette(entries [][3]byte) error {
	return w.setter(&PaletteChunk{Entries: entries})
}

// SetTransparency sets the tRNS.
func (w *Writer) SetTransparency(trns *TransparencyChunk) error {
	return w.setter(trns)
}

// SetTime sets the tIME.
func (w *Writer) SetTime(t time.Time) error {
	return w.setter(&TimeChunk{Time: t})
}

// SetPhysicalDPI sets a square pHYs density.
func (w *Writer) SetPhysicalDPI(dpi float64) error {
	return w.setter(NewPhysicalDPI(dpi))
}

// SetGamma sets the gAMA.
func (w *Writer) SetGamma(gamma float64) error {
	return w.setter(&GammaChunk{Gamma: gamma})
}

// SetICCProfile sets the iCCP.
func (w *Writer) SetICCProfile(name string, profile []byte) error {
	return w.setter(&ICCProfileChunk{Name: name, Profile: profile})
}

// SetText stores a key/value pair in a tEXt, zTXt or iTXt chunk, whichever
// fits the value.
func (w *Writer) SetText(key, value string) error {
	return w.setter(newTextChunk(key, value, w.cfg.TextCompressSize))
}

// groupRange gives the allowed and preferred groups of a queued chunk.
func groupRange(c *Chunk) (min, max, preferred ChunkGroup) {
	if c.ID == ChunkPLTE {
		return GroupPalette, GroupPalette, GroupPalette
	}
	switch c.Ordering() {
	case OrderBeforePaletteAndImageData:
		min, max = GroupAfterHeader, GroupAfterHeader
	case OrderAfterPaletteBeforeImageData:
		min, max = GroupAfterPalette, GroupAfterPalette
	case OrderBeforeImageData:
		min, max = GroupAfterHeader, GroupAfterPalette
	default:
		min, max = GroupAfterHeader, GroupAfterImageData
	}
	preferred = max
	if c.Priority {
		preferred = min
	} else if c.Group >= min && c.Group <= max && c.Group != GroupPalette && c.Group != GroupImageData {
		// keep the position the chunk was read from
		preferred = c.Group
	}
	return
}

func shouldWrite(c *Chunk, group ChunkGroup) bool {
	if group == GroupPalette {
		return c.ID == ChunkPLTE
	}
	min, max, preferred := groupRange(c)
	if group < min || group > max {
		return false
	}
	return group == preferred || (preferred < group && group <= max)
}

// flushGroup moves the writer to group g and writes what belongs there.
func (w *Writer) flushGroup(g ChunkGroup) error {
	w.group = g
	kept := w.queued[:0]
	var ready []*Chunk
	for _, c := range w.queued {
		if shouldWrite(c, g) {
			ready = append(ready, c)
		} else {
			kept = append(kept, c)
		}
	}
	w.queued = kept
	for _, c := range ready {
		data, err := c.Data.encode(&w.Info)
		if err != nil {
			return err
		}
		if err := writeChunk(w.out, c.ID, data); err != nil {
			return err
		}
		c.Group, c.Length = g, len(data)
		w.written = append(w.written, c)
		w.log.Debug().Str("chunk", c.ID).Int("length", len(data)).Stringer("group", g).Msg("chunk written")
	}
	return nil
}

// begin writes everything that precedes the image data.
func (w *Writer) begin() error {
	if _, err := w.out.Write(pngHeader); err != nil {
		return ioErr(err, "writing signature")
	}
	hdr, err := (&HeaderChunk{Info: w.Info}).encode(nil)
	if err != nil {
		return err
	}
	if err := writeChunk(w.out, ChunkIHDR, hdr); err != nil {
		return err
	}
	w.group = GroupHeader
	w.log.Debug().Stringer("info", w.Info).Msg("header written")

	if err := w.flushGroup(GroupAfterHeader); err != nil {
		return err
	}
	if w.Info.Indexed {
		hasPalette := false
		for _, c := range w.queued {
			hasPalette = hasPalette || c.ID == ChunkPLTE
		}
		if !hasPalette {
			return formatErr("indexed image without PLTE")
		}
	}
	if err := w.flushGroup(GroupPalette); err != nil {
		return err
	}
	if err := w.flushGroup(GroupAfterPalette); err != nil {
		return err
	}

	w.group = GroupImageData
	w.idat = &idatWriter{w: w, buf: make([]byte, 0, w.cfg.MaxIDATSize)}
	w.deflater, err = newDeflater(w.idat, w.cfg.CompressionLevel, w.cfg.Strategy)
	return err
}

// WriteRow writes one row; line.Row must be the next row or -1.
func (w *Writer) WriteRow(line *SampleLine) error {
	if err := w.usable(); err != nil {
		return err
	}
	if line.Row >= 0 && line.Row != w.curRow+1 {
		return w.abort(sequenceErr("row %d written after row %d", line.Row, w.curRow))
	}
	if line.Info.Cols != w.Info.Cols || line.Info.BitDepth != w.Info.BitDepth || line.Info.Channels != w.Info.Channels {
		return w.abort(formatErr("row layout %s does not match image %s", line.Info, w.Info))
	}
	if n := len(line.Ints) + len(line.Bytes); n < line.Len() {
		return w.abort(formatErr("row has %d samples, want %d", n, line.Len()))
	}
	line.toRaw(w.rowRaw)
	return w.writeRaw()
}

// WriteRowInt writes row n from unpacked int samples.
func (w *Writer) WriteRowInt(samples []int, n int) error {
	return w.writeSamples(SampleInt, samples, nil, n)
}

// WriteRowByte writes row n from unpacked byte samples; 16-bit images get a
// zero low byte.
func (w *Writer) WriteRowByte(samples []byte, n int) error {
	return w.writeSamples(SampleByte, nil, samples, n)
}

func (w *Writer) writeSamples(kind SampleKind, ints []int, bs []byte, n int) error {
	if w.scratch == nil || w.scratch.Kind != kind {
		w.scratch = &SampleLine{Info: w.Info, Kind: kind, Unpacked: true}
	}
	w.scratch.Row, w.scratch.Ints, w.scratch.Bytes = n, ints, bs
	return w.WriteRow(w.scratch)
}

func (w *Writer) writeRaw() error {
	if w.curRow < 0 {
		if err := w.begin(); err != nil {
			return w.abort(err)
		}
	}
	if w.curRow+1 >= w.Info.Rows {
		return w.abort(sequenceErr("all %d rows already written", w.Info.Rows))
	}
	row := w.curRow + 1
	bpp := w.Info.BytesPerPixel
	w.tried = [nFilterTypes]bool{}
	try := func(ft FilterType) []byte {
		buf := w.filtered[ft]
		if !w.tried[ft] {
			buf[0] = byte(ft)
			filterRow(ft, w.rowRaw, w.rowPrev, buf[1:], bpp)
			w.tried[ft] = true
		}
		return buf[1:]
	}
	ft := w.cfg.Filter.SelectFilter(row, try)
	if ft < 0 || ft >= nFilterTypes {
		return w.abort(formatErr("filter strategy chose type %d", ft))
	}
	try(ft)
	if _, err := w.deflater.Write(w.filtered[ft]); err != nil {
		return w.abort(ioErr(err, "deflating row %d", row))
	}
	w.rawBytes += int64(len(w.filtered[ft]))
	w.rowRaw, w.rowPrev = w.rowPrev, w.rowRaw
	w.curRow = row
	return nil
}

// CopyMask selects chunks for CopyChunks.
type CopyMask int

const (
	CopyNone         CopyMask = 0
	CopyPalette      CopyMask = 1 << 0 // PLTE, when the image can use one
	CopyAllSafe      CopyMask = 1 << 2 // ancillary chunks marked safe to copy
	CopyAll          CopyMask = 1 << 3 // every ancillary chunk, plus the palette
	CopyPhysical     CopyMask = 1 << 4
	CopyText         CopyMask = 1 << 5
	CopyTransparency CopyMask = 1 << 6
	CopyUnknown      CopyMask = 1 << 7
	CopyAlmostAll    CopyMask = 1 << 8 // all but the colour space chunks
)

var colourSpaceChunks = map[string]bool{
	ChunkGAMA: true, ChunkCHRM: true, ChunkICCP: true, ChunkSRGB: true, ChunkSBIT: true,
}

// ParseCopyMask reads a comma separated list such as "text,phys".
func ParseCopyMask(s string) (CopyMask, bool) {
	names := map[string]CopyMask{
		"none": CopyNone, "palette": CopyPalette, "safe": CopyAllSafe, "all": CopyAll,
		"phys": CopyPhysical, "text": CopyText, "trns": CopyTransparency,
		"unknown": CopyUnknown, "almostall": CopyAlmostAll,
	}
	var m CopyMask
	for _, part := range strings.Split(s, ",") {
		v, ok := names[strings.TrimSpace(part)]
		if !ok {
			return CopyNone, false
		}
		m |= v
	}
	return m, true
}

func (w *Writer) shouldCopy(c *Chunk, mask CopyMask) bool {
	if c.Skipped || c.Data == nil {
		return false
	}
	if IsCritical(c.ID) {
		return c.ID == ChunkPLTE && mask&(CopyPalette|CopyAll) != 0 && !w.Info.Greyscale
	}
	_, isText := c.Data.(TextualChunk)
	switch {
	case mask&CopyAll != 0:
		return true
	case mask&CopyAllSafe != 0 && IsSafeToCopy(c.ID):
		return true
	case mask&CopyTransparency != 0 && c.ID == ChunkTRNS:
		return true
	case mask&CopyPhysical != 0 && c.ID == ChunkPHYS:
		return true
	case mask&CopyText != 0 && isText:
		return true
	case mask&CopyUnknown != 0 && !IsKnownChunk(c.ID):
		return true
	case mask&CopyAlmostAll != 0 && !colourSpaceChunks[c.ID]:
		return true
	}
	return false
}

type copySource struct {
	r    *Reader
	mask CopyMask
}

// CopyChunks queues the chunks of r selected by mask. Chunks r reads later,
// after the image data, are picked up again at Close. Chunks already copied,
// or clashing with one already queued, are left out.
func (w *Writer) CopyChunks(r *Reader, mask CopyMask) error {
	if err := w.usable(); err != nil {
		return err
	}
	known := false
	for _, s := range w.sources {
		known = known || (s.r == r && s.mask == mask)
	}
	if !known {
		w.sources = append(w.sources, copySource{r, mask})
	}
	if err := w.copyFrom(r, mask); err != nil {
		return w.abort(err)
	}
	return nil
}

func (w *Writer) copyFrom(r *Reader, mask CopyMask) error {
	for _, c := range r.Chunks() {
		if w.copied[c] || !w.shouldCopy(c, mask) {
			continue
		}
		w.copied[c] = true
		cp := &Chunk{ID: c.ID, Data: c.Data, Group: c.Group, Offset: -1}
		if !cp.AllowsMultiple() && w.hasEquivalent(cp) {
			w.log.Debug().Str("chunk", c.ID).Msg("copy skipped, already set")
			continue
		}
		if err := w.queue(cp, false); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the image data, writes the trailing chunks and the IEND.
// Every row must have been written and every queued chunk placed.
func (w *Writer) Close() error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.curRow != w.Info.Rows-1 {
		return w.abort(sequenceErr("%d of %d rows written", w.curRow+1, w.Info.Rows))
	}
	if err := w.deflater.Close(); err != nil {
		return w.abort(ioErr(err, "closing image data"))
	}
	if err := w.idat.flush(); err != nil {
		return w.abort(err)
	}
	for _, s := range w.sources {
		if err := w.copyFrom(s.r, s.mask); err != nil {
			return w.abort(err)
		}
	}
	if err := w.flushGroup(GroupAfterImageData); err != nil {
		return w.abort(err)
	}
	if len(w.queued) > 0 {
		ids := make([]string, len(w.queued))
		for i, c := range w.queued {
			ids[i] = c.ID
		}
		return w.abort(sequenceErr("chunks left unwritten: %s", strings.Join(ids, ", ")))
	}
	if err := writeChunk(w.out, ChunkIEND, nil); err != nil {
		return w.abort(err)
	}
	w.group = GroupEnd
	if err := w.out.Flush(); err != nil {
		return w.abort(ioErr(err, "flushing"))
	}
	w.log.Debug().
		Int("idat_chunks", w.idat.chunks).
		Int64("idat_bytes", w.idat.total).
		Float64("ratio", w.CompressionRatio()).
		Msg("write complete")
	w.closeSink()
	return nil
}

// CompressionRatio is compressed image data size over filtered row size.
func (w *Writer) CompressionRatio() float64 {
	if w.idat == nil || w.rawBytes == 0 {
		return 0
	}
	return float64(w.idat.total) / float64(w.rawBytes)
}

// idatWriter cuts the compressed stream into IDAT chunks of bounded size.
type idatWriter struct {
	w      *Writer
	buf    []byte
	chunks int
	total  int64
}

func (d *idatWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		room := cap(d.buf) - len(d.buf)
		k := len(p)
		if k > room {
			k = room
		}
		d.buf = append(d.buf, p[:k]...)
		p = p[k:]
		n += k
		if len(d.buf) == cap(d.buf) {
			if err := d.flush(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func (d *idatWriter) flush() error {
	if len(d.buf) == 0 {
		return nil
	}
	if err := writeChunk(d.w.out, ChunkIDAT, d.buf); err != nil {
		return err
	}
	d.chunks++
	d.total += int64(len(d.buf))
	d.w.log.Debug().Int("length", len(d.buf)).Int("n", d.chunks).Msg("IDAT written")
	d.buf = d.buf[:0]
	return nil
}
