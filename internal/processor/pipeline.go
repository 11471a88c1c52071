// Package processor runs a parse request end to end: pick the input, fetch
// when needed, parse, and check the result before it leaves the service.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rezonia/nfce-parser/internal/decimal"
	"github.com/rezonia/nfce-parser/internal/fetch"
	"github.com/rezonia/nfce-parser/internal/model"
	htmlparser "github.com/rezonia/nfce-parser/internal/parser/html"
)

// Source tells where the parsed HTML came from
type Source string

const (
	SourceHTML Source = "html"
	SourceURL  Source = "url"
)

// String returns the source name
func (s Source) String() string {
	return string(s)
}

// Request carries exactly one of HTML or URL. HTML wins when both are set.
type Request struct {
	HTML string `json:"html,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Source returns the input the pipeline will use, or "" when the request is
// empty. Any non-empty HTML counts, even blank markup, which parses as an
// empty document.
func (r Request) Source() Source {
	switch {
	case r.HTML != "":
		return SourceHTML
	case strings.TrimSpace(r.URL) != "":
		return SourceURL
	default:
		return ""
	}
}

// Result holds the outcome of one request
type Result struct {
	Receipt  *model.ParseResult
	Source   Source
	Layout   string
	Warnings []string
	Duration time.Duration
	Error    error
}

// Pipeline orchestrates fetching and parsing
type Pipeline struct {
	parser  *htmlparser.Parser
	fetcher htmlparser.Fetcher
	logger  *slog.Logger
}

// PipelineOption configures the pipeline
type PipelineOption func(*Pipeline)

// WithParser sets the HTML parser
func WithParser(p *htmlparser.Parser) PipelineOption {
	return func(pl *Pipeline) {
		pl.parser = p
	}
}

// WithFetcher sets the page fetcher used for URL requests
func WithFetcher(f htmlparser.Fetcher) PipelineOption {
	return func(pl *Pipeline) {
		pl.fetcher = f
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) PipelineOption {
	return func(pl *Pipeline) {
		pl.logger = l
	}
}

// NewPipeline creates a new processing pipeline
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.parser == nil {
		p.parser = htmlparser.NewParser(htmlparser.WithLogger(p.logger))
	}
	if p.fetcher == nil {
		p.fetcher = fetch.NewClient()
	}
	return p
}

// Parser returns the HTML parser used by the pipeline
func (p *Pipeline) Parser() *htmlparser.Parser {
	return p.parser
}

// Fetcher returns the page fetcher used by the pipeline
func (p *Pipeline) Fetcher() htmlparser.Fetcher {
	return p.fetcher
}

// Process handles a request. Result.Error is one of *model.InputError or
// *model.AcceptanceError; in the latter case Result.Receipt still holds the
// partial result.
func (p *Pipeline) Process(ctx context.Context, req Request) *Result {
	start := time.Now()
	result := &Result{Source: req.Source()}

	html := req.HTML
	switch result.Source {
	case SourceHTML:
	case SourceURL:
		body, err := p.fetcher.Fetch(ctx, strings.TrimSpace(req.URL))
		if err != nil {
			p.logger.Warn("fetch failed", "url", req.URL, "error", err)
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}
		html = body
	default:
		result.Error = model.NewMissingInputError()
		result.Duration = time.Since(start)
		return result
	}

	report, err := p.parser.Analyze(strings.NewReader(html))
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	result.Receipt = report.Result
	result.Layout = report.Layout.Name
	result.Warnings = warnings(report)
	result.Error = Accept(report.Result)
	result.Duration = time.Since(start)

	p.logger.Info("nfce processed",
		"source", result.Source,
		"layout", result.Layout,
		"items", len(report.Result.Items),
		"warnings", len(result.Warnings),
		"duration", result.Duration,
	)
	return result
}

// ProcessHTML parses an HTML page
func (p *Pipeline) ProcessHTML(ctx context.Context, html string) *Result {
	return p.Process(ctx, Request{HTML: html})
}

// ProcessURL fetches and parses the page at url
func (p *Pipeline) ProcessURL(ctx context.Context, url string) *Result {
	return p.Process(ctx, Request{URL: url})
}

func warnings(report *htmlparser.Report) []string {
	var out []string
	if !report.TotalsFound {
		out = append(out, "totals section not found")
	}
	if !report.IssuerFound {
		out = append(out, "issuer section not found")
	}
	if report.SkippedRows > 0 {
		out = append(out, fmt.Sprintf("%d product rows without description skipped", report.SkippedRows))
	}
	for i, item := range report.Result.Items {
		if item.Validated != nil && !*item.Validated {
			out = append(out, fmt.Sprintf("item %d (%s): quantity x unit price does not match total", i+1, item.Description))
		}
	}
	return out
}

// Accept checks that every numeric field of r is either absent or a finite
// number
func Accept(r *model.ParseResult) error {
	if r == nil {
		return nil
	}
	check := func(field string, v *float64) error {
		if v != nil && !decimal.IsFinite(*v) {
			return model.NewAcceptanceError(field, *v, r)
		}
		return nil
	}

	for i, item := range r.Items {
		fields := []struct {
			name string
			v    *float64
		}{
			{"quantity", item.Quantity},
			{"unit_price", item.UnitPrice},
			{"total_price", item.TotalPrice},
		}
		for _, f := range fields {
			if err := check(fmt.Sprintf("items[%d].%s", i, f.name), f.v); err != nil {
				return err
			}
		}
	}

	totals := []struct {
		name string
		v    *float64
	}{
		{"totals.item_count", r.Totals.ItemCount},
		{"totals.grand_total", r.Totals.GrandTotal},
		{"totals.discounts", r.Totals.Discounts},
		{"totals.amount_due", r.Totals.AmountDue},
	}
	for _, f := range totals {
		if err := check(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}
