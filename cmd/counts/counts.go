// Package counts implements the labeler counts command.
package counts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/platelab/labeler/internal/app"
	"github.com/platelab/labeler/internal/catalog"
	"github.com/platelab/labeler/internal/media"
)

// Format selects the output rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// Command creates the counts command.
func Command(ctx *app.Context) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Print the number of images per category",
		Long:  "Count images under the media root. Prints a table on a terminal and CSV otherwise.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sfs, err := ctx.OpenMediaRoot()
			if err != nil {
				return err
			}
			defer func() { _ = sfs.Close() }()

			cat, err := ctx.NewCatalog(sfs, nil)
			if err != nil {
				return err
			}
			counts, err := cat.Counts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			format := FormatCSV
			switch {
			case asJSON:
				format = FormatJSON
			case isTerminal(out):
				format = FormatTable
			}
			return Render(out, counts, format)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print counts as a JSON object")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes counts in format. Categories appear in display order.
func Render(w io.Writer, counts catalog.Counts, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Category", "Images"})
	for _, c := range media.Categories {
		t.AppendRow(table.Row{string(c), counts[c]})
	}

	switch format {
	case FormatTable:
		t.AppendFooter(table.Row{"Total", counts.Total()})
		t.SetStyle(table.StyleLight)
		t.Render()
	case FormatCSV:
		t.RenderCSV()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}
