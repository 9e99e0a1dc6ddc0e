package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/mixcode/pngstream"
	color "github.com/mixcode/pngstream/internal/ansicolor"
	"github.com/spf13/cobra"
)

func init() {
	infoCommand := &cobra.Command{
		Use:   "info FILE...",
		Short: "Print the header and chunk table of PNG files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			colored := isatty.IsTerminal(os.Stdout.Fd())
			for _, name := range args {
				if err := printInfo(os.Stdout, name, colored); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			return nil
		},
	}
	rootCommand.AddCommand(infoCommand)
}

func flag(set bool, c string) string {
	if set {
		return c
	}
	return "-"
}

func printInfo(out io.Writer, name string, colored bool) error {
	r, err := openPNG(name, readerConfig())
	if err != nil {
		return err
	}
	defer r.Close()
	if err := r.SkipAllRows(); err != nil {
		return err
	}

	interlace := ""
	if r.Interlaced {
		interlace = " interlaced"
	}
	fmt.Fprintf(out, "%s: %s%s\n", name, r.Info, interlace)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGROUP\tLENGTH\tOFFSET\tFLAGS\t")
	for _, c := range r.Chunks() {
		id := c.ID
		if colored && pngstream.IsCritical(id) {
			id = color.Bold + id + color.Reset
		}
		flags := flag(pngstream.IsCritical(c.ID), "C") +
			flag(pngstream.IsPublic(c.ID), "P") +
			flag(pngstream.IsSafeToCopy(c.ID), "S")
		if c.Skipped {
			flags += " skipped"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t\n", id, c.Group, c.Length, c.Offset, flags)
	}
	return tw.Flush()
}
