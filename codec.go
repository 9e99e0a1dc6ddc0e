package pngstream

import (
	"io"
)

// RowProducer supplies unpacked samples for each row of an image being
// encoded. The returned slice is only read until the next call.
type RowProducer interface {
	ProduceRow(row int) ([]int, error)
}

// RowConsumer receives unpacked samples of each decoded row. The slice is
// reused for the next row.
type RowConsumer interface {
	ConsumeRow(row int, samples []int) error
}

// HeaderConsumer is an optional RowConsumer extension, told the image layout
// and the chunks before the image data ahead of the first row.
type HeaderConsumer interface {
	ConsumeHeader(info ImageInfo, meta Metadata) error
}

// Encode writes a whole image pulled from src. The extra chunks are queued
// before the first row.
func Encode(dst io.Writer, info ImageInfo, src RowProducer, cfg *WriterConfig, extra ...ChunkData) error {
	w, err := NewWriter(dst, info, cfg)
	if err != nil {
		return err
	}
	for _, d := range extra {
		if err := w.QueueChunk(d, false); err != nil {
			return err
		}
	}
	for row := 0; row < info.Rows; row++ {
		samples, err := src.ProduceRow(row)
		if err != nil {
			return w.abort(ioErr(err, "producing row %d", row))
		}
		if len(samples) < info.SamplesPerRow {
			return w.abort(formatErr("row %d has %d samples, want %d", row, len(samples), info.SamplesPerRow))
		}
		if err := w.WriteRowInt(samples, row); err != nil {
			return err
		}
	}
	return w.Close()
}

// Decode reads a whole image into dst and returns the reader, finished, for
// its header and chunks. Samples are always unpacked ints.
func Decode(src io.Reader, dst RowConsumer, cfg *ReaderConfig) (*Reader, error) {
	c := DefaultReaderConfig()
	if cfg != nil {
		c = *cfg
	}
	c.Unpack = true
	r, err := NewReader(src, &c)
	if err != nil {
		return nil, err
	}
	if h, ok := dst.(HeaderConsumer); ok {
		if err := h.ConsumeHeader(r.Info, r.Metadata()); err != nil {
			return nil, r.abort(ioErr(err, "consuming header"))
		}
	}
	for row := 0; row < r.Info.Rows; row++ {
		line, err := r.ReadRowInt(row)
		if err != nil {
			return nil, err
		}
		if err := dst.ConsumeRow(row, line.Ints); err != nil {
			return nil, r.abort(ioErr(err, "consuming row %d", row))
		}
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return r, nil
}
