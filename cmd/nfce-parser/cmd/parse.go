package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-parser/internal/model"
	"github.com/rezonia/nfce-parser/internal/processor"
)

var (
	outputFile string
	timeout    time.Duration
)

var parseCmd = &cobra.Command{
	Use:   "parse [files|urls...]",
	Short: "Parse NFC-e pages",
	Long: `Parse one or more NFC-e consultation pages and extract structured data.

Inputs may be:
  - HTML files: .html, .htm
  - Directories (searched recursively for HTML files)
  - Glob patterns
  - http(s) URLs of the portal page

Fields the page does not show are reported as null.

Examples:
  nfce-parser parse nota.html
  nfce-parser parse "https://www.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx?p=..."
  nfce-parser parse paginas/ -o notas.json
  nfce-parser parse *.html -f csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	parseCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Processing timeout per input")
}

func runParse(cmd *cobra.Command, args []string) error {
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}

	if len(inputs) == 0 {
		return fmt.Errorf("no HTML files or URLs found to parse")
	}

	printVerbose("Found %d inputs to parse\n", len(inputs))

	log, err := newLogger()
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(log)
	if err != nil {
		return err
	}

	results := make([]*ParseResult, 0, len(inputs))
	for _, input := range inputs {
		printVerbose("Parsing: %s\n", input)

		result := parseInput(cmd.Context(), pipeline, input)
		results = append(results, result)

		if result.Error != "" {
			printVerbose("  Error: %s\n", result.Error)
		} else {
			printVerbose("  Layout: %s, Items: %d, Warnings: %d\n", result.Layout, len(result.Receipt.Items), len(result.Warnings))
		}
	}

	return outputResults(results)
}

// collectInputs expands arguments into URLs and HTML file paths
func collectInputs(args []string) ([]string, error) {
	var inputs, paths []string
	for _, arg := range args {
		if isURL(arg) {
			inputs = append(inputs, arg)
			continue
		}
		paths = append(paths, arg)
	}

	if len(paths) == 0 {
		return inputs, nil
	}
	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}
	return append(inputs, files...), nil
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		// Check if it's a glob pattern
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}

		if len(matches) == 0 {
			matches = []string{arg}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", match)
			}

			if !info.IsDir() {
				files = append(files, match)
				continue
			}

			// Walk directory
			err = filepath.Walk(match, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isSupportedFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

func isURL(arg string) bool {
	lower := strings.ToLower(arg)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

func parseInput(ctx context.Context, pipeline *processor.Pipeline, input string) *ParseResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &ParseResult{Input: input}

	var req processor.Request
	if isURL(input) {
		req.URL = input
	} else {
		data, err := os.ReadFile(input)
		if err != nil {
			result.Error = fmt.Sprintf("failed to read file: %v", err)
			return result
		}
		req.HTML = string(data)
	}

	pipelineResult := pipeline.Process(ctx, req)
	result.Source = pipelineResult.Source.String()
	result.Layout = pipelineResult.Layout
	result.Warnings = pipelineResult.Warnings

	if pipelineResult.Error != nil {
		result.Error = pipelineResult.Error.Error()
		return result
	}

	result.Receipt = pipelineResult.Receipt
	return result
}

func outputResults(results []*ParseResult) error {
	var writer io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	return writeResults(writer, outputFormat, results)
}

func writeResults(w io.Writer, format string, results []*ParseResult) error {
	switch format {
	case "json":
		return outputJSON(w, results)
	case "table":
		return outputTable(w, results)
	case "csv":
		return outputCSV(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func outputJSON(w io.Writer, results []*ParseResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

func outputTable(w io.Writer, results []*ParseResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tISSUER\tNUMBER\tDATE\tITEMS\tCHECKED\tFAILED\tAMOUNT DUE")
	fmt.Fprintln(tw, "-----\t------\t------\t----\t-----\t-------\t------\t----------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\t\t\n", r.Input, r.Error)
			continue
		}

		if r.Receipt != nil {
			checked, failed := r.Receipt.ValidatedCount()
			amount := r.Receipt.Totals.AmountDue
			if amount == nil {
				amount = r.Receipt.Totals.GrandTotal
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.Input,
				textOrDash(r.Receipt.Issuer.Name),
				textOrDash(r.Receipt.Metadata.DocumentNumber),
				textOrDash(r.Receipt.Metadata.IssueDate),
				len(r.Receipt.Items),
				checked,
				failed,
				formatMoney(amount),
			)
		}
	}

	return tw.Flush()
}

// outputCSV writes one row per line item
func outputCSV(w io.Writer, results []*ParseResult) error {
	cw := csv.NewWriter(w)
	header := []string{
		"input", "issuer_tax_id", "document_number", "access_key",
		"description", "code", "quantity", "unit", "unit_price", "total_price", "validated", "error",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		if r.Error != "" || r.Receipt == nil {
			row := make([]string, len(header))
			row[0] = r.Input
			row[len(row)-1] = r.Error
			if err := cw.Write(row); err != nil {
				return err
			}
			continue
		}

		for _, item := range r.Receipt.Items {
			row := []string{
				r.Input,
				textOrEmpty(r.Receipt.Issuer.TaxID),
				textOrEmpty(r.Receipt.Metadata.DocumentNumber),
				textOrEmpty(r.Receipt.Metadata.AccessKey),
				item.Description,
				textOrEmpty(item.Code),
				formatNumber(item.Quantity),
				textOrEmpty(item.Unit),
				formatNumber(item.UnitPrice),
				formatNumber(item.TotalPrice),
				formatBool(item.Validated),
				"",
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func textOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func textOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatMoney(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

// ParseResult holds the result of parsing a single input
type ParseResult struct {
	Input    string             `json:"input"`
	Source   string             `json:"source,omitempty"`
	Layout   string             `json:"layout,omitempty"`
	Receipt  *model.ParseResult `json:"receipt,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Error    string             `json:"error,omitempty"`
}
