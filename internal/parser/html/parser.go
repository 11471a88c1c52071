// Package html extracts NFC-e receipts from the HTML pages served by the
// state tax portals.
//
// Three extractors (items, totals, issuer/metadata) run independently over
// the same document, driven by a Layout table. Any field they cannot
// resolve stays nil; parsing a readable document never fails.
package html

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	dec "github.com/shopspring/decimal"

	"github.com/rezonia/nfce-parser/internal/decimal"
	"github.com/rezonia/nfce-parser/internal/model"
)

// Fetcher retrieves the HTML of a portal page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Parser turns portal HTML into a ParseResult. It holds no per-call state
// and is safe for concurrent use.
type Parser struct {
	registry  *Registry
	tolerance dec.Decimal
	logger    *slog.Logger
}

// ParserOption configures the parser
type ParserOption func(*Parser)

// WithRegistry sets the layout registry
func WithRegistry(r *Registry) ParserOption {
	return func(p *Parser) {
		if r != nil {
			p.registry = r
		}
	}
}

// WithTolerance sets the absolute tolerance of the cross-validation
func WithTolerance(t dec.Decimal) ParserOption {
	return func(p *Parser) {
		p.tolerance = t
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser creates a parser with the built-in layout and default tolerance
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		tolerance: decimal.DefaultTolerance,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	return p
}

// Registry returns the layout registry in use
func (p *Parser) Registry() *Registry {
	return p.registry
}

// Tolerance returns the cross-validation tolerance
func (p *Parser) Tolerance() dec.Decimal {
	return p.tolerance
}

// Report describes one parse: the result plus what the extractors found
type Report struct {
	Result      *model.ParseResult
	Layout      *Layout
	SkippedRows int
	TotalsFound bool
	IssuerFound bool
}

// Parse parses an HTML page
func (p *Parser) Parse(html string) *model.ParseResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// unreachable: reading from a string does not fail
		return Assemble(model.IssuerInfo{}, nil, model.TotalsSummary{}, model.FiscalMetadata{})
	}
	return p.AnalyzeDocument(doc).Result
}

// ParseReader parses an HTML page read from r
func (p *Parser) ParseReader(r io.Reader) (*model.ParseResult, error) {
	report, err := p.Analyze(r)
	if err != nil {
		return nil, err
	}
	return report.Result, nil
}

// ParseURL fetches the page at url and parses it. Fetch failures are
// returned as is.
func (p *Parser) ParseURL(ctx context.Context, f Fetcher, url string) (*model.ParseResult, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.Parse(body), nil
}

// Analyze parses the page read from r and reports how it was parsed
func (p *Parser) Analyze(r io.Reader) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return p.AnalyzeDocument(doc), nil
}

// AnalyzeDocument runs the extractors over an already parsed document
func (p *Parser) AnalyzeDocument(doc *goquery.Document) *Report {
	root := doc.Selection
	layout := p.registry.Detect(root)

	items, skipped := extractItems(root, layout)
	totals, totalsFound := extractTotals(root, layout)
	issuer, metadata, issuerFound := extractIssuer(root, layout)

	items = CrossValidate(items, p.tolerance)
	result := Assemble(issuer, items, totals, metadata)

	p.logger.Debug("nfce parsed",
		"layout", layout.Layout.Name,
		"layout_version", layout.Layout.Version,
		"items", len(result.Items),
		"skipped_rows", skipped,
		"totals_found", totalsFound,
		"issuer_found", issuerFound,
	)

	return &Report{
		Result:      result,
		Layout:      layout.Layout,
		SkippedRows: skipped,
		TotalsFound: totalsFound,
		IssuerFound: issuerFound,
	}
}
