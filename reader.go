//
// row-by-row PNG decoding
//
// PNG Second Edition, decoder requirements
// https://www.w3.org/TR/2003/REC-PNG-20031110/#13Decoders
//

package pngstream

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"
)

// countingReader tracks the stream offset and enforces the total read budget.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
	err   error // sticky budget error
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.err = capacityErr("read %d bytes, budget is %d", c.n, c.limit)
		return n, c.err
	}
	return n, err
}

// Reader decodes a PNG stream one row at a time.
//
// NewReader consumes everything up to the first IDAT; rows are then pulled
// in increasing order with ReadRowInt or ReadRowByte. After the last row the
// trailing chunks are read and the source is closed. A Reader is not safe for
// concurrent use.
type Reader struct {
	Info       ImageInfo
	Interlaced bool

	cfg     ReaderConfig
	log     zerolog.Logger
	src     io.Reader
	buf     *bufio.Reader
	in      *countingReader
	skipIDs map[string]bool

	group       ChunkGroup
	chunks      []*Chunk
	metaBytes   int64
	paletteSeen bool

	idat     *idatReader
	inflater io.ReadCloser

	rowRaw, rowPrev []byte // filter byte at index 0
	rowSamples      []int
	rowFilter       FilterType
	curRow          int
	rowsSkipped     bool

	raster []int // whole image, interlaced only

	err    error
	closed bool
}

// NewReader reads the signature, the header and all chunks before the image
// data. cfg may be nil for defaults.
func NewReader(src io.Reader, cfg *ReaderConfig) (*Reader, error) {
	c := DefaultReaderConfig()
	if cfg != nil {
		c = *cfg
	}
	r := &Reader{
		cfg:     c,
		log:     loggerOrGlobal(c.Logger).With().Str("codec", "png-read").Logger(),
		src:     src,
		skipIDs: map[string]bool{},
		group:   GroupNone,
		curRow:  -1,
	}
	r.buf = bufio.NewReader(src)
	r.in = &countingReader{r: r.buf, limit: c.MaxTotalBytesRead}
	for _, id := range c.SkipChunkIDs {
		r.skipIDs[id] = true
	}

	if err := r.readHeader(); err != nil {
		return nil, r.abort(err)
	}
	if err := r.readFirstChunks(); err != nil {
		return nil, r.abort(err)
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	if err := readSignature(r.in); err != nil {
		return err
	}
	length, id, err := readChunkHeader(r.in)
	if err != nil {
		return err
	}
	if id != ChunkIHDR {
		return formatErr("first chunk is %s, want IHDR", id)
	}
	if length != ihdrSize {
		return formatErr("IHDR length %d, want %d", length, ihdrSize)
	}
	data, err := readChunkPayload(r.in, id, length, true)
	if err != nil {
		return err
	}
	d, err := parseHeader(data, nil)
	if err != nil {
		return err
	}
	hdr := d.(*HeaderChunk)
	r.Info, r.Interlaced = hdr.Info, hdr.Interlaced
	r.group = GroupHeader
	r.chunks = append(r.chunks, &Chunk{
		ID: id, Data: hdr, Length: length, Offset: int64(len(pngHeader)), Group: GroupHeader,
	})
	r.group = GroupAfterHeader

	bufLen := r.Info.BytesPerRow + 1
	r.rowRaw = make([]byte, bufLen)
	r.rowPrev = make([]byte, bufLen)
	r.rowSamples = make([]int, r.Info.SamplesPerRow)
	r.log.Debug().Stringer("info", r.Info).Bool("interlaced", r.Interlaced).Msg("header read")
	return nil
}

// readFirstChunks reads up to and including the first IDAT header.
func (r *Reader) readFirstChunks() error {
	for r.group < GroupImageData {
		offset := r.in.n
		length, id, err := readChunkHeader(r.in)
		if err != nil {
			return r.budgetOr(err)
		}
		switch id {
		case ChunkIDAT:
			if r.Info.Indexed && !r.paletteSeen {
				return formatErr("indexed image without PLTE")
			}
			if err := r.checkTotal(offset, length); err != nil {
				return err
			}
			r.setGroup(GroupImageData)
			r.chunks = append(r.chunks, &Chunk{
				ID: id, Data: &ImageDataChunk{}, Length: length, Offset: offset, Group: GroupImageData,
			})
			r.idat = newIdatReader(r, length)
			return nil
		case ChunkIEND:
			return formatErr("IEND before any IDAT")
		case ChunkIHDR:
			return formatErr("second IHDR")
		case ChunkPLTE:
			if r.paletteSeen {
				return formatErr("second PLTE")
			}
			if r.Info.Greyscale {
				return formatErr("PLTE in a greyscale image")
			}
			if length > 3*256 || length%3 != 0 {
				return formatErr("PLTE of %d bytes", length)
			}
			r.setGroup(GroupPalette)
			if err := r.readChunk(offset, length, id, false); err != nil {
				return err
			}
			r.paletteSeen = true
			r.setGroup(GroupAfterPalette)
		default:
			if err := r.readChunk(offset, length, id, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) setGroup(g ChunkGroup) {
	if g != r.group {
		r.log.Debug().Stringer("from", r.group).Stringer("to", g).Msg("chunk group")
		r.group = g
	}
}

// budgetOr prefers the sticky budget error over whatever a decoder made of
// the failed read.
func (r *Reader) budgetOr(err error) error {
	if r.in.err != nil {
		return r.in.err
	}
	return err
}

func (r *Reader) checkTotal(offset int64, length int) error {
	end := offset + chunkHeaderSize + int64(length) + chunkTrailerSize
	if r.cfg.MaxTotalBytesRead > 0 && end > r.cfg.MaxTotalBytesRead {
		return capacityErr("chunk at %d ends at %d, budget is %d", offset, end, r.cfg.MaxTotalBytesRead)
	}
	return nil
}

// skipReason explains why an ancillary chunk will not be loaded, or returns
// "" to load it.
func (r *Reader) skipReason(id string, length int) string {
	if IsCritical(id) {
		return ""
	}
	switch {
	case r.cfg.SkipChunkMaxSize > 0 && int64(length) >= r.cfg.SkipChunkMaxSize:
		return "larger than single chunk limit"
	case r.skipIDs[id]:
		return "in skip list"
	case r.cfg.MaxBytesMetadata > 0 && int64(length) > r.cfg.MaxBytesMetadata-r.metaBytes:
		return "metadata budget exhausted"
	case !ShouldLoad(id, r.cfg.LoadPolicy):
		return "load policy"
	}
	return ""
}

// readChunk loads or skips one chunk whose header was just read.
func (r *Reader) readChunk(offset int64, length int, id string, forceSkip bool) error {
	if err := r.checkTotal(offset, length); err != nil {
		return err
	}
	critical := IsCritical(id)
	if critical && !IsKnownChunk(id) {
		return formatErr("unknown critical chunk %s", id)
	}

	reason := r.skipReason(id, length)
	if forceSkip {
		reason = "forced"
	}
	if reason != "" {
		if err := skipChunkPayload(r.in, id, length); err != nil {
			return r.budgetOr(err)
		}
		ev := r.log.Debug()
		if reason != "load policy" && reason != "in skip list" {
			ev = r.log.Warn()
		}
		ev.Str("chunk", id).Int("length", length).Int64("offset", offset).Str("reason", reason).Msg("chunk skipped")
		r.chunks = append(r.chunks, &Chunk{
			ID: id, Length: length, Offset: offset, Group: r.group, Skipped: true,
		})
		return nil
	}

	data, err := readChunkPayload(r.in, id, length, r.cfg.CheckCRC || critical)
	if err != nil {
		return r.budgetOr(err)
	}
	if !critical {
		r.metaBytes += int64(length)
	}
	d, err := parseChunk(id, data, &r.Info)
	if err != nil {
		return err
	}
	c := &Chunk{ID: id, Data: d, Length: length, Offset: offset, Group: r.group}
	if err := r.checkPlacement(c); err != nil {
		return err
	}
	r.chunks = append(r.chunks, c)
	r.log.Debug().Str("chunk", id).Int("length", length).Int64("offset", offset).Stringer("group", r.group).Msg("chunk read")
	return nil
}

// checkPlacement enforces ordering constraints and single-chunk rules.
func (r *Reader) checkPlacement(c *Chunk) error {
	switch c.Ordering() {
	case OrderBeforePaletteAndImageData:
		if r.group != GroupAfterHeader {
			return formatErr("%s must precede PLTE and IDAT", c.ID)
		}
	case OrderAfterPaletteBeforeImageData:
		if r.group >= GroupImageData {
			return formatErr("%s must precede IDAT", c.ID)
		}
		if !r.paletteSeen && (r.Info.Indexed || c.ID == ChunkHIST) {
			return formatErr("%s must follow PLTE", c.ID)
		}
	case OrderBeforeImageData:
		if r.group >= GroupImageData {
			return formatErr("%s must precede IDAT", c.ID)
		}
	}
	if !c.AllowsMultiple() {
		for _, prev := range r.chunks {
			if !prev.Skipped && Equivalent(prev, c) {
				return formatErr("duplicate %s chunk", c.ID)
			}
		}
	}
	return nil
}

// usable guards every public call.
func (r *Reader) usable() error {
	if r.err != nil {
		return sequenceErr("reader already failed: %v", r.err)
	}
	return nil
}

// abort ends the session after a failure.
func (r *Reader) abort(err error) error {
	if r.err == nil {
		r.err = err
		r.log.Debug().Err(err).Msg("read session aborted")
	}
	r.closeSource()
	return err
}

func (r *Reader) closeSource() {
	if r.closed {
		return
	}
	r.closed = true
	if r.inflater != nil {
		r.inflater.Close()
	}
	if c, ok := r.src.(io.Closer); ok && r.cfg.CloseSource {
		c.Close()
	}
}

// CurrentGroup is the position of the reader in the chunk stream.
func (r *Reader) CurrentGroup() ChunkGroup { return r.group }

// Chunks lists every chunk read so far, skipped ones included.
func (r *Reader) Chunks() []*Chunk { return r.chunks }

// Metadata gives typed access to the chunks read so far.
func (r *Reader) Metadata() Metadata { return Metadata{Chunks: r.chunks} }

// ReadRowInt decodes row n into int samples.
func (r *Reader) ReadRowInt(n int) (*SampleLine, error) {
	return r.ReadRow(n, SampleInt)
}

// ReadRowByte decodes row n into byte samples; 16-bit samples keep their
// high byte.
func (r *Reader) ReadRowByte(n int) (*SampleLine, error) {
	return r.ReadRow(n, SampleByte)
}

// ReadRow decodes row n. Rows of a non-interlaced image must be requested in
// strictly increasing order; rows in between are decoded and dropped.
// Interlaced images are decoded whole on the first call and served in any
// order.
func (r *Reader) ReadRow(n int, kind SampleKind) (*SampleLine, error) {
	if err := r.usable(); err != nil {
		return nil, err
	}
	if r.rowsSkipped {
		return nil, r.abort(sequenceErr("rows were skipped"))
	}
	if n < 0 || n >= r.Info.Rows {
		return nil, r.abort(sequenceErr("row %d out of range [0,%d)", n, r.Info.Rows))
	}
	line := NewSampleLine(r.Info, kind, r.cfg.Unpack)
	line.Row = n

	if r.Interlaced {
		if r.raster == nil {
			if err := r.decodeInterlaced(); err != nil {
				return nil, r.abort(err)
			}
		}
		spr := r.Info.SamplesPerRow
		line.fill(r.raster[n*spr : (n+1)*spr])
		return line, nil
	}

	if n <= r.curRow {
		return nil, r.abort(sequenceErr("row %d requested after row %d", n, r.curRow))
	}
	for r.curRow < n {
		if err := r.decodeNextRow(); err != nil {
			return nil, r.abort(err)
		}
	}
	line.fill(r.rowSamples)
	line.FilterUsed = r.rowFilter
	if n == r.Info.Rows-1 {
		if err := r.readLastChunks(); err != nil {
			return nil, r.abort(err)
		}
	}
	return line, nil
}

// ReadRows decodes nRows rows starting at offset, every step rows. nRows < 0
// means up to the end of the image.
func (r *Reader) ReadRows(kind SampleKind, offset, nRows, step int) ([]*SampleLine, error) {
	if step < 1 || offset < 0 || offset >= r.Info.Rows {
		return nil, r.abort(sequenceErr("bad row range offset %d step %d", offset, step))
	}
	if nRows < 0 {
		nRows = (r.Info.Rows - offset + step - 1) / step
	}
	if nRows < 0 {
		nRows = 0
	}
	lines := make([]*SampleLine, 0, nRows)
	for i := 0; i < nRows; i++ {
		line, err := r.ReadRow(offset+i*step, kind)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (r *Reader) openInflater() error {
	if r.inflater != nil {
		return nil
	}
	zr, err := newInflater(r.idat)
	if err != nil {
		return r.budgetOr(err)
	}
	r.inflater = zr
	return nil
}

// readFiltered fills buf with the next n filtered bytes of image data.
func (r *Reader) readFiltered(buf []byte) error {
	if _, err := io.ReadFull(r.inflater, buf); err != nil {
		return classifyInflateErr(r.budgetOr(err), "inflating image data")
	}
	return nil
}

func (r *Reader) unfilter(cur, prev []byte) (FilterType, error) {
	ft := FilterType(cur[0])
	if ft < 0 || ft >= nFilterTypes {
		return ft, formatErr("unknown filter type %d", cur[0])
	}
	unfilterRow(ft, cur[1:], prev[1:], r.Info.BytesPerPixel)
	return ft, nil
}

func (r *Reader) decodeNextRow() error {
	if err := r.openInflater(); err != nil {
		return err
	}
	r.rowRaw, r.rowPrev = r.rowPrev, r.rowRaw
	if err := r.readFiltered(r.rowRaw); err != nil {
		return err
	}
	ft, err := r.unfilter(r.rowRaw, r.rowPrev)
	if err != nil {
		return err
	}
	r.rowFilter = ft
	rawToSamples(r.Info.BitDepth, r.rowRaw[1:], r.rowSamples, r.Info.SamplesPerRow)
	r.curRow++
	return nil
}

// decodeInterlaced reads all seven passes into the raster.
func (r *Reader) decodeInterlaced() error {
	if err := r.openInflater(); err != nil {
		return err
	}
	info := r.Info
	r.raster = make([]int, info.Rows*info.SamplesPerRow)
	sub := make([]int, info.SamplesPerRow)
	clear(r.rowPrev)

	d := newDeinterlacer(info)
	for d.skipEmpty(); !d.done(); {
		n := d.bytesPerSubRow() + 1
		cur, prev := r.rowRaw[:n], r.rowPrev[:n]
		if err := r.readFiltered(cur); err != nil {
			return err
		}
		if _, err := r.unfilter(cur, prev); err != nil {
			return err
		}
		rawToSamples(info.BitDepth, cur[1:], sub, d.cols*info.Channels)
		y := d.realRow()
		d.merge(sub, r.raster[y*info.SamplesPerRow:(y+1)*info.SamplesPerRow])

		r.rowRaw, r.rowPrev = r.rowPrev, r.rowRaw
		if d.next() {
			clear(r.rowPrev)
		}
	}
	r.curRow = info.Rows - 1
	return r.readLastChunks()
}

// readLastChunks drains the image data and reads everything up to IEND.
func (r *Reader) readLastChunks() error {
	if r.group >= GroupAfterImageData {
		return nil
	}
	if err := r.idat.finish(); err != nil {
		return r.budgetOr(err)
	}
	r.setGroup(GroupAfterImageData)
	offset, length, id := r.idat.nextOffset, r.idat.nextLen, r.idat.nextID
	for {
		switch id {
		case ChunkIEND:
			if err := r.readChunk(offset, length, id, false); err != nil {
				return err
			}
			r.setGroup(GroupEnd)
			if n := r.buf.Buffered(); n > 0 {
				r.log.Warn().Int("buffered", n).Msg("data after IEND ignored")
			}
			r.log.Debug().Int64("bytes", r.in.n).Int("chunks", len(r.chunks)).Msg("read complete")
			r.closeSource()
			return nil
		case ChunkIDAT:
			r.log.Warn().Int64("offset", offset).Msg("IDAT after image data")
			if err := r.readChunk(offset, length, id, true); err != nil {
				return err
			}
		case ChunkIHDR, ChunkPLTE:
			return formatErr("%s after image data", id)
		default:
			if err := r.readChunk(offset, length, id, false); err != nil {
				return err
			}
		}
		var err error
		offset = r.in.n
		if length, id, err = readChunkHeader(r.in); err != nil {
			return r.budgetOr(err)
		}
	}
}

// SkipAllRows jumps over the image data without inflating it and reads the
// trailing chunks. No rows can be read afterwards.
func (r *Reader) SkipAllRows() error {
	if err := r.usable(); err != nil {
		return err
	}
	if r.curRow >= 0 || r.raster != nil {
		return r.abort(sequenceErr("rows already read"))
	}
	r.rowsSkipped = true
	if err := r.readLastChunks(); err != nil {
		return r.abort(err)
	}
	return nil
}

// Close ends the session. Unread image data is drained so that trailing
// chunks still get read, then the source is closed. Rows cannot be read
// afterwards.
func (r *Reader) Close() error {
	if r.err != nil {
		r.closeSource()
		return nil
	}
	if r.group < GroupEnd {
		if err := r.readLastChunks(); err != nil {
			return r.abort(err)
		}
	}
	r.closeSource()
	r.err = sequenceErr("reader closed")
	return nil
}

// Abort closes the source without reading further.
func (r *Reader) Abort() {
	r.closeSource()
	if r.err == nil {
		r.err = sequenceErr("reader aborted")
	}
}

// BytesRead is the number of bytes consumed from the source.
func (r *Reader) BytesRead() int64 { return r.in.n }

// idatReader presents a run of IDAT chunks as one byte stream, checking each
// chunk's CRC when its end is reached.
type idatReader struct {
	r         *Reader
	crc       *crcReader
	remaining int
	inChunk   bool
	done      bool
	chunks    int

	// header of the chunk that ended the run
	nextOffset int64
	nextLen    int
	nextID     string
}

func newIdatReader(r *Reader, firstLen int) *idatReader {
	d := &idatReader{r: r, crc: newCrcReader(r.in)}
	d.start(firstLen)
	return d
}

func (d *idatReader) start(length int) {
	d.crc.ResetCRC([]byte(ChunkIDAT))
	d.remaining = length
	d.inChunk = true
	d.chunks++
}

// endChunk reads and checks the CRC of the current chunk. Image data jumped
// over by SkipAllRows is not checked.
func (d *idatReader) endChunk() error {
	var b [4]byte
	if _, err := io.ReadFull(d.r.in, b[:]); err != nil {
		return ioErr(d.r.budgetOr(err), "reading IDAT CRC")
	}
	d.inChunk = false
	got := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if !d.r.rowsSkipped && got != d.crc.Crc.Sum32() {
		return integrityErr("IDAT chunk %d has invalid CRC", d.chunks)
	}
	return nil
}

func (d *idatReader) Read(p []byte) (int, error) {
	for d.remaining == 0 {
		if d.done {
			return 0, io.EOF
		}
		if d.inChunk {
			if err := d.endChunk(); err != nil {
				return 0, err
			}
		}
		offset := d.r.in.n
		length, id, err := readChunkHeader(d.r.in)
		if err != nil {
			return 0, d.r.budgetOr(err)
		}
		if id != ChunkIDAT {
			d.done = true
			d.nextOffset, d.nextLen, d.nextID = offset, length, id
			return 0, io.EOF
		}
		if err := d.r.checkTotal(offset, length); err != nil {
			return 0, err
		}
		d.r.log.Debug().Int64("offset", offset).Int("length", length).Msg("IDAT continues")
		d.start(length)
	}
	if len(p) > d.remaining {
		p = p[:d.remaining]
	}
	n, err := d.crc.Read(p)
	d.remaining -= n
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, ioErr(d.r.budgetOr(err), "reading IDAT")
	}
	return n, nil
}

// finish consumes the rest of the run, checking CRCs.
func (d *idatReader) finish() error {
	if _, err := io.Copy(io.Discard, d); err != nil {
		return err
	}
	return nil
}
