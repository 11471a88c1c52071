package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rezonia/nfce-parser/internal/decimal"
	"github.com/rezonia/nfce-parser/internal/fetch"
	"github.com/rezonia/nfce-parser/internal/logger"
	htmlparser "github.com/rezonia/nfce-parser/internal/parser/html"
	"github.com/rezonia/nfce-parser/internal/processor"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string
	logLevel     string
	logFormat    string
	tolerance    string
	layoutsFile  string
	fetchTimeout time.Duration
	envFile      string
)

var rootCmd = &cobra.Command{
	Use:   "nfce-parser",
	Short: "Extract structured data from NFC-e consumer receipt pages",
	Long: `nfce-parser reads the HTML consultation page of a Brazilian NFC-e
(Nota Fiscal de Consumidor Eletrônica) and extracts line items, totals,
issuer identity and fiscal metadata.

Each line item is cross-checked: quantity x unit price must match the line
total within a tolerance (default 0.02).

Examples:
  # Parse a saved page
  nfce-parser parse nota.html

  # Parse straight from the portal
  nfce-parser parse "https://www.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx?p=..."

  # Parse a directory of pages into a table
  nfce-parser parse paginas/ -f table

  # Check receipts, failing on any mismatched item
  nfce-parser validate *.html --strict`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, csv, table)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error (env: NFCE_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json (env: NFCE_LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&tolerance, "tolerance", "0.02", "Cross-validation tolerance (env: NFCE_TOLERANCE)")
	rootCmd.PersistentFlags().StringVar(&layoutsFile, "layouts", "", "YAML file with extra page layouts (env: NFCE_LAYOUTS)")
	rootCmd.PersistentFlags().DurationVar(&fetchTimeout, "fetch-timeout", fetch.DefaultTimeout, "Timeout for fetching portal pages (env: NFCE_FETCH_TIMEOUT)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded at startup")

	// Load from environment variables if not set via flags
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A missing env file is fine; variables already set are kept.
	_ = godotenv.Load(envFile)

	flags := rootCmd.PersistentFlags()
	envString := func(flag, key string, target *string) {
		if v := os.Getenv(key); v != "" && !flags.Changed(flag) {
			*target = v
		}
	}
	envString("log-level", "NFCE_LOG_LEVEL", &logLevel)
	envString("log-format", "NFCE_LOG_FORMAT", &logFormat)
	envString("tolerance", "NFCE_TOLERANCE", &tolerance)
	envString("layouts", "NFCE_LAYOUTS", &layoutsFile)

	if v := os.Getenv("NFCE_FETCH_TIMEOUT"); v != "" && !flags.Changed("fetch-timeout") {
		if d, err := time.ParseDuration(v); err == nil {
			fetchTimeout = d
		}
	}
}

// newLogger builds the stderr logger from the global flags
func newLogger() (*slog.Logger, error) {
	return logger.New(os.Stderr, logLevel, logFormat)
}

// newPipeline wires parser, layouts and fetcher from the global flags
func newPipeline(log *slog.Logger) (*processor.Pipeline, error) {
	tol, err := decimal.ParseTolerance(tolerance)
	if err != nil {
		return nil, err
	}

	registry := htmlparser.NewRegistry()
	if layoutsFile != "" {
		layouts, err := htmlparser.LoadLayoutFile(layoutsFile)
		if err != nil {
			return nil, err
		}
		for _, l := range layouts {
			if err := registry.Register(l); err != nil {
				return nil, err
			}
		}
		printVerbose("Loaded %d layouts from %s\n", len(layouts), layoutsFile)
	}

	parser := htmlparser.NewParser(
		htmlparser.WithRegistry(registry),
		htmlparser.WithTolerance(tol),
		htmlparser.WithLogger(log),
	)

	return processor.NewPipeline(
		processor.WithParser(parser),
		processor.WithFetcher(fetch.NewClient(fetch.WithTimeout(fetchTimeout))),
		processor.WithLogger(log),
	), nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
