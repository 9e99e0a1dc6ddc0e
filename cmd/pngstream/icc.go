package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mixcode/pngstream/internal/iccsource"
	"github.com/mixcode/pngstream/internal/logging"
	"github.com/spf13/cobra"
)

func init() {
	var output string

	iccCommand := &cobra.Command{
		Use:   "icc FILE",
		Short: "Extract the embedded ICC profile of a PNG, JPEG, GIF or TIFF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			p, err := iccsource.Load(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if p == nil {
				return fmt.Errorf("%s: no ICC profile", args[0])
			}
			if output == "" {
				output = profileFileName(args[0], p)
			}
			if err := os.WriteFile(output, p.Data, 0644); err != nil {
				return err
			}
			logging.Info().Str("format", p.Format).Str("profile", p.Name).Int("bytes", len(p.Data)).Str("file", output).Msg("ICC profile written")
			return nil
		},
	}
	iccCommand.Flags().StringVarP(&output, "output", "o", "", "output file (default: profile name, or the input name, + .icc)")
	rootCommand.AddCommand(iccCommand)
}

// profileFileName names the extracted profile after the profile itself when
// the container stores a name, and after the input file otherwise.
func profileFileName(input string, p *iccsource.Profile) string {
	if p.Name != "" {
		return p.Name + ".icc"
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".icc"
}
