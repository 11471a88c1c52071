package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	htmlparser "github.com/rezonia/nfce-parser/internal/parser/html"
)

var infoCmd = &cobra.Command{
	Use:   "info [files...]",
	Short: "Show how NFC-e pages are recognised",
	Long: `Display how each page is read without printing the full result.

Shows:
  - Detected layout
  - Product rows found and skipped
  - Whether the totals and issuer sections exist
  - Access key, when present

Examples:
  nfce-parser info nota.html
  nfce-parser info paginas/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(log)
	if err != nil {
		return err
	}

	for _, file := range files {
		printFileInfo(os.Stdout, pipeline.Parser(), file)
		fmt.Println()
	}

	return nil
}

func printFileInfo(w io.Writer, parser *htmlparser.Parser, filePath string) {
	fmt.Fprintf(w, "File: %s\n", filePath)

	info, err := os.Stat(filePath)
	if err != nil {
		fmt.Fprintf(w, "  Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "  Size: %d bytes\n", info.Size())
	fmt.Fprintf(w, "  Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(w, "  Error reading file: %v\n", err)
		return
	}

	report, err := parser.Analyze(bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(w, "  Error: %v\n", err)
		return
	}

	fmt.Fprintf(w, "  Layout: %s (v%d)\n", report.Layout.Name, report.Layout.Version)
	fmt.Fprintf(w, "  Items: %d (skipped rows: %d)\n", len(report.Result.Items), report.SkippedRows)
	fmt.Fprintf(w, "  Totals section: %s\n", yesNo(report.TotalsFound))
	fmt.Fprintf(w, "  Issuer section: %s\n", yesNo(report.IssuerFound))
	if key := report.Result.Metadata.AccessKey; key != nil {
		fmt.Fprintf(w, "  Access key: %s\n", *key)
	}
	if name := compactSpaces(report.Result.Issuer.Name); name != "" {
		fmt.Fprintf(w, "  Issuer: %s\n", name)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func compactSpaces(name *string) string {
	if name == nil {
		return ""
	}
	return strings.Join(strings.Fields(*name), " ")
}
