package pngstream

import (
	"github.com/mixcode/pngstream/internal/logging"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxBytesMetadata  = 5 << 20
	DefaultMaxTotalBytesRead = 200 << 20
	DefaultSkipChunkMaxSize  = 2 << 20

	DefaultCompressionLevel = 6
	DefaultMaxIDATSize      = 32 << 10
	DefaultTextCompressSize = 1 << 10

	minIDATSize = 9
)

// ReaderConfig tunes a Reader. Start from DefaultReaderConfig: a zero budget
// means unlimited.
type ReaderConfig struct {
	LoadPolicy LoadPolicy
	// CheckCRC verifies ancillary chunks too; critical chunks are always
	// verified.
	CheckCRC bool
	// Unpack returns one element per sample for bit depths below 8.
	Unpack bool

	MaxBytesMetadata  int64 // total payload of loaded ancillary chunks
	MaxTotalBytesRead int64 // bytes consumed from the source
	SkipChunkMaxSize  int64 // ancillary chunks this large are skipped
	SkipChunkIDs      []string

	// CloseSource closes the source when the session ends, if it is an
	// io.Closer.
	CloseSource bool

	Logger *zerolog.Logger
}

func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		LoadPolicy:        LoadAlways,
		CheckCRC:          true,
		MaxBytesMetadata:  DefaultMaxBytesMetadata,
		MaxTotalBytesRead: DefaultMaxTotalBytesRead,
		SkipChunkMaxSize:  DefaultSkipChunkMaxSize,
		SkipChunkIDs:      []string{"fdAT"},
		CloseSource:       true,
	}
}

// WriterConfig tunes a Writer. Start from DefaultWriterConfig.
type WriterConfig struct {
	CompressionLevel int // 0..9
	Strategy         CompressionStrategy
	Filter           FilterStrategy

	// MaxIDATSize bounds each IDAT payload; values of 8 or less fall back to
	// the default.
	MaxIDATSize int
	// SetText switches to a compressed chunk above this many bytes; 0 never
	// compresses.
	TextCompressSize int

	// CloseSink closes the sink when the session ends, if it is an io.Closer.
	CloseSink bool

	Logger *zerolog.Logger
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		CompressionLevel: DefaultCompressionLevel,
		Strategy:         StrategyFiltered,
		Filter:           FilterAdaptive,
		MaxIDATSize:      DefaultMaxIDATSize,
		TextCompressSize: DefaultTextCompressSize,
		CloseSink:        true,
	}
}

func loggerOrGlobal(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		return logging.GlobalLogger()
	}
	return l
}
