package main

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/mixcode/pngstream"
	"github.com/mixcode/pngstream/imageadapt"
	"github.com/mixcode/pngstream/internal/iccsource"
	"github.com/mixcode/pngstream/internal/logging"
	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func init() {
	var (
		level  int
		filter string
		dpi    float64
	)

	convertCommand := &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Convert a GIF, JPEG, BMP, TIFF, WebP or PNG image to PNG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := pngstream.DefaultWriterConfig()
			cfg.CompressionLevel = level
			var ok bool
			if cfg.Filter, ok = pngstream.ParseFilterStrategy(filter); !ok {
				return fmt.Errorf("unknown filter %q", filter)
			}
			return convertFile(args[0], args[1], &cfg, dpi)
		},
	}
	flags := convertCommand.Flags()
	flags.IntVar(&level, "level", pngstream.DefaultCompressionLevel, "compression level 0..9")
	flags.StringVar(&filter, "filter", "adaptive", "row filter: none, sub, up, average, paeth, adaptive, aggressive")
	flags.Float64Var(&dpi, "dpi", 0, "store a pixel density (pHYs) when non-zero")
	rootCommand.AddCommand(convertCommand)
}

func convertFile(in, out string, cfg *pngstream.WriterConfig, dpi float64) error {
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()
	img, format, err := image.Decode(src)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	info, rows, chunks, err := imageadapt.FromImage(img)
	if err != nil {
		return err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if p, err := iccsource.Load(src); err != nil && !errors.Is(err, iccsource.ErrUnknownFormat) {
		logging.Warn().Err(err).Str("file", in).Msg("ICC profile not carried over")
	} else if p != nil {
		chunks = append(chunks, p.Chunk("ICC profile"))
	}
	if dpi > 0 {
		chunks = append(chunks, pngstream.NewPhysicalDPI(dpi))
	}

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := pngstream.Encode(dst, info, rows, cfg, chunks...); err != nil {
		dst.Close()
		os.Remove(out)
		return err
	}
	logging.Info().Str("from", format).Stringer("image", info).Str("file", out).Msg("converted")
	return nil
}
