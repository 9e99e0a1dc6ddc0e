// Command pngstream inspects and re-encodes PNG files one row at a time.
package main

import (
	"os"

	"github.com/mixcode/pngstream"
	"github.com/mixcode/pngstream/internal/logging"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	noCRC    bool
)

var rootCommand = &cobra.Command{
	Use:           "pngstream",
	Short:         "Inspect and re-encode PNG files row by row",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(logLevel)
	},
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&noCRC, "no-crc", false, "do not verify the CRC of ancillary chunks")
}

func readerConfig() *pngstream.ReaderConfig {
	cfg := pngstream.DefaultReaderConfig()
	cfg.CheckCRC = !noCRC
	return &cfg
}

// openPNG opens a file for reading; the session closes it.
func openPNG(name string, cfg *pngstream.ReaderConfig) (*pngstream.Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := pngstream.NewReader(f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func main() {
	defer logging.LogPanics(nil)
	if err := rootCommand.Execute(); err != nil {
		logging.Error().Err(err).Msg("pngstream failed")
		os.Exit(1)
	}
}
