package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mixcode/pngstream"
	"github.com/mixcode/pngstream/internal/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type recodeOptions struct {
	outDir   string
	level    int
	strategy string
	filter   string
	idatSize int
	copy     string
	jobs     int
}

func init() {
	var opts recodeOptions

	recodeCommand := &cobra.Command{
		Use:   "recode FILE...",
		Short: "Decode and re-encode PNG files with new compression settings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wcfg, mask, err := opts.writerConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return recodeAll(ctx, args, opts.outDir, opts.jobs, wcfg, mask)
		},
	}
	flags := recodeCommand.Flags()
	flags.StringVarP(&opts.outDir, "output", "o", ".", "output directory")
	flags.IntVar(&opts.level, "level", pngstream.DefaultCompressionLevel, "compression level 0..9")
	flags.StringVar(&opts.strategy, "strategy", "filtered", "compression strategy: default, filtered, huffman")
	flags.StringVar(&opts.filter, "filter", "adaptive", "row filter: none, sub, up, average, paeth, adaptive, aggressive")
	flags.IntVar(&opts.idatSize, "idat-size", pngstream.DefaultMaxIDATSize, "maximum IDAT chunk payload")
	flags.StringVar(&opts.copy, "copy", "almostall,palette", "chunks to copy: none, palette, safe, all, phys, text, trns, unknown, almostall")
	flags.IntVar(&opts.jobs, "jobs", runtime.NumCPU(), "files recoded in parallel")
	rootCommand.AddCommand(recodeCommand)
}

func (o *recodeOptions) writerConfig() (*pngstream.WriterConfig, pngstream.CopyMask, error) {
	cfg := pngstream.DefaultWriterConfig()
	if o.level < 0 || o.level > 9 {
		return nil, 0, fmt.Errorf("compression level %d out of range", o.level)
	}
	cfg.CompressionLevel = o.level
	var ok bool
	if cfg.Strategy, ok = pngstream.ParseCompressionStrategy(o.strategy); !ok {
		return nil, 0, fmt.Errorf("unknown compression strategy %q", o.strategy)
	}
	if cfg.Filter, ok = pngstream.ParseFilterStrategy(o.filter); !ok {
		return nil, 0, fmt.Errorf("unknown filter %q", o.filter)
	}
	cfg.MaxIDATSize = o.idatSize
	mask, ok := pngstream.ParseCopyMask(o.copy)
	if !ok {
		return nil, 0, fmt.Errorf("bad copy mask %q", o.copy)
	}
	return &cfg, mask, nil
}

// recodeAll runs one read and one write session per file, jobs at a time.
// The first failure cancels the files not yet started.
func recodeAll(ctx context.Context, files []string, outDir string, jobs int, wcfg *pngstream.WriterConfig, mask pngstream.CopyMask) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)
	for _, in := range files {
		in := in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := filepath.Join(outDir, filepath.Base(in))
			if err := recodeFile(in, out, wcfg, mask); err != nil {
				os.Remove(out)
				return fmt.Errorf("%s: %w", in, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func recodeFile(in, out string, wcfg *pngstream.WriterConfig, mask pngstream.CopyMask) error {
	if abs, err := filepath.Abs(in); err == nil {
		if absOut, err := filepath.Abs(out); err == nil && abs == absOut {
			return fmt.Errorf("refusing to overwrite the input")
		}
	}
	r, err := openPNG(in, readerConfig())
	if err != nil {
		return err
	}
	defer r.Abort()

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	w, err := pngstream.NewWriter(f, r.Info, wcfg)
	if err != nil {
		f.Close()
		return err
	}
	if err := w.CopyChunks(r, mask); err != nil {
		f.Close()
		return err
	}
	for row := 0; row < r.Info.Rows; row++ {
		line, err := r.ReadRowInt(row)
		if err != nil {
			f.Close()
			return err
		}
		if err := w.WriteRow(line); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := r.Close(); err != nil {
		return err
	}
	logging.Info().
		Str("in", in).
		Str("out", out).
		Int64("read", r.BytesRead()).
		Float64("ratio", w.CompressionRatio()).
		Msg("recoded")
	return nil
}
