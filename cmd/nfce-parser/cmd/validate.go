package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	strictValidation bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [files|urls...]",
	Short: "Validate NFC-e pages",
	Long: `Parse one or more NFC-e pages and report whether they are consistent.

Checks performed:
  - Every numeric field is a finite number
  - Each line item: quantity x unit price matches the line total
  - Totals and issuer sections present
  - Item count declared in the totals matches the items found

A page is invalid when any item fails the price check, as in the
/api/v1/nfce/validate endpoint. A page without items, an item count mismatch
and a missing access key are warnings unless --strict is set.

Examples:
  nfce-parser validate nota.html
  nfce-parser validate *.html --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&strictValidation, "strict", false, "Treat missing items, item count mismatch and missing access key as errors")
}

func runValidate(cmd *cobra.Command, args []string) error {
	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}

	if len(inputs) == 0 {
		return fmt.Errorf("no HTML files or URLs found to validate")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	pipeline, err := newPipeline(log)
	if err != nil {
		return err
	}

	results := make([]*ValidationResult, 0, len(inputs))
	allValid := true

	for _, input := range inputs {
		result := validateParsed(parseInput(cmd.Context(), pipeline, input), strictValidation)
		results = append(results, result)

		if !result.Valid {
			allValid = false
		}
	}

	if err := writeValidation(os.Stdout, outputFormat, results); err != nil {
		return err
	}

	if !allValid {
		return fmt.Errorf("validation failed for some inputs")
	}

	return nil
}

func writeValidation(w io.Writer, format string, results []*ValidationResult) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s: VALID (%d/%d items checked)\n", r.Input, r.Checked, r.Items)
		} else {
			fmt.Fprintf(w, "✗ %s: INVALID\n", r.Input)
			for _, e := range r.Errors {
				fmt.Fprintf(w, "  - %s\n", e)
			}
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  ⚠ %s\n", warn)
		}
	}
	return nil
}

// validateParsed turns a parse outcome into a validation verdict
func validateParsed(parsed *ParseResult, strict bool) *ValidationResult {
	result := &ValidationResult{
		Input:    parsed.Input,
		Valid:    true,
		Errors:   []string{},
		Warnings: append([]string{}, parsed.Warnings...),
	}

	if parsed.Error != "" {
		result.Valid = false
		result.Errors = append(result.Errors, parsed.Error)
		return result
	}

	receipt := parsed.Receipt
	result.Items = len(receipt.Items)
	result.Checked, result.Failed = receipt.ValidatedCount()

	if len(receipt.Items) == 0 {
		addIssue(result, strict, "no line items found")
	}
	if result.Failed > 0 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("%d items failed cross-validation", result.Failed))
	}
	if receipt.Totals.ItemCount != nil && int(*receipt.Totals.ItemCount) != len(receipt.Items) {
		addIssue(result, strict, fmt.Sprintf("totals declare %v items but %d were found", *receipt.Totals.ItemCount, len(receipt.Items)))
	}
	if receipt.Metadata.AccessKey == nil {
		addIssue(result, strict, "access key not found")
	}

	return result
}

func addIssue(result *ValidationResult, strict bool, msg string) {
	if strict {
		result.Valid = false
		result.Errors = append(result.Errors, msg)
		return
	}
	result.Warnings = append(result.Warnings, msg)
}

// ValidationResult holds the result of validating a single input
type ValidationResult struct {
	Input    string   `json:"input"`
	Valid    bool     `json:"valid"`
	Items    int      `json:"items"`
	Checked  int      `json:"checked"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
