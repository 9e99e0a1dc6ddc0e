package main

import (
	"fmt"
	"os"

	"github.com/mixcode/pngstream"
	"github.com/spf13/cobra"
)

func init() {
	textCommand := &cobra.Command{
		Use:   "text FILE",
		Short: "Print the textual chunks of a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openPNG(args[0], readerConfig())
			if err != nil {
				return err
			}
			defer r.Close()
			if err := r.SkipAllRows(); err != nil {
				return err
			}
			for _, c := range r.Chunks() {
				t, ok := c.Data.(pngstream.TextualChunk)
				if !ok {
					continue
				}
				fmt.Fprintf(os.Stdout, "%s %s: %s\n", c.ID, t.Key(), t.Value())
			}
			return nil
		},
	}
	rootCommand.AddCommand(textCommand)
}
