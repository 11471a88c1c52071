package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	htmlparser "github.com/rezonia/nfce-parser/internal/parser/html"
)

var layoutName string

var layoutsCmd = &cobra.Command{
	Use:   "layouts",
	Short: "List the page layouts the parser knows",
	Long: `Print the registered page layouts, highest priority first.

The built-in layout covers the state portal consultation page. Extra
layouts are loaded with --layouts (env: NFCE_LAYOUTS). The YAML printed
here is a valid starting point for a new layout file.

Examples:
  nfce-parser layouts
  nfce-parser layouts -f table
  nfce-parser layouts --name sefaz-consulta > minha-sefaz.yaml`,
	RunE: runLayouts,
}

func init() {
	rootCmd.AddCommand(layoutsCmd)

	layoutsCmd.Flags().StringVar(&layoutName, "name", "", "Only print the layout with this name")
}

func runLayouts(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(log)
	if err != nil {
		return err
	}

	layouts := pipeline.Parser().Registry().Layouts()
	if layoutName != "" {
		l := pipeline.Parser().Registry().Get(layoutName)
		if l == nil {
			return fmt.Errorf("layout not found: %s", layoutName)
		}
		layouts = []*htmlparser.Layout{l.Layout}
	}

	return writeLayouts(os.Stdout, outputFormat, layouts)
}

func writeLayouts(w io.Writer, format string, layouts []*htmlparser.Layout) error {
	if format != "table" {
		return htmlparser.EncodeLayouts(w, layouts...)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tDETECT")
	fmt.Fprintln(tw, "----\t-------\t------")
	for _, l := range layouts {
		fmt.Fprintf(tw, "%s\t%d\t%v\n", l.Name, l.Version, l.Detect)
	}
	return tw.Flush()
}
