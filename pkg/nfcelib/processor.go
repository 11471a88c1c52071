package nfcelib

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rezonia/nfce-parser/internal/decimal"
	"github.com/rezonia/nfce-parser/internal/fetch"
	"github.com/rezonia/nfce-parser/internal/logger"
	htmlparser "github.com/rezonia/nfce-parser/internal/parser/html"
	"github.com/rezonia/nfce-parser/internal/processor"
)

// Options configures a Processor
type Options struct {
	Tolerance    string        // Cross-validation tolerance (default: "0.02")
	Layouts      []*Layout     // Extra layouts, tried before the built-in one
	FetchTimeout time.Duration // Portal fetch timeout (default: 15s)
	MaxBodySize  int64         // Portal response size limit (default: 5 MiB)
	Concurrency  int           // Parallel parses in ParseBatch (default: 4)
	Logger       *slog.Logger  // Defaults to a discarding logger
}

// DefaultOptions returns default processor options
func DefaultOptions() Options {
	return Options{
		Tolerance:    "0.02",
		FetchTimeout: fetch.DefaultTimeout,
		MaxBodySize:  fetch.DefaultMaxBodySize,
		Concurrency:  4,
	}
}

// Processor parses NFC-e pages. It is safe for concurrent use.
type Processor struct {
	pipeline *processor.Pipeline
	options  Options
}

// NewProcessor creates a processor. It fails on an invalid tolerance or
// layout.
func NewProcessor(opts Options) (*Processor, error) {
	defaults := DefaultOptions()
	if opts.Tolerance == "" {
		opts.Tolerance = defaults.Tolerance
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaults.FetchTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaults.MaxBodySize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	tol, err := decimal.ParseTolerance(opts.Tolerance)
	if err != nil {
		return nil, err
	}

	registry := htmlparser.NewRegistry()
	for _, l := range opts.Layouts {
		if err := registry.Register(l); err != nil {
			return nil, err
		}
	}

	parser := htmlparser.NewParser(
		htmlparser.WithRegistry(registry),
		htmlparser.WithTolerance(tol),
		htmlparser.WithLogger(opts.Logger),
	)
	client := fetch.NewClient(
		fetch.WithTimeout(opts.FetchTimeout),
		fetch.WithMaxBodySize(opts.MaxBodySize),
	)

	return &Processor{
		pipeline: processor.NewPipeline(
			processor.WithParser(parser),
			processor.WithFetcher(client),
			processor.WithLogger(opts.Logger),
		),
		options: opts,
	}, nil
}

// NewDefaultProcessor creates a processor with default options
func NewDefaultProcessor() *Processor {
	p, err := NewProcessor(DefaultOptions())
	if err != nil {
		// unreachable: the default options are valid
		panic(err)
	}
	return p
}

// Parse parses an HTML page. It never fails; fields the page does not
// show are nil.
func (p *Processor) Parse(html string) *ParseResult {
	return p.pipeline.Parser().Parse(html)
}

// ParseHTML parses an HTML page and applies the acceptance checks
func (p *Processor) ParseHTML(ctx context.Context, html string) (*ParseResult, error) {
	return unwrap(p.pipeline.Process(ctx, processor.Request{HTML: html}))
}

// ParseReader reads an HTML page from r and parses it
func (p *Processor) ParseReader(ctx context.Context, r io.Reader) (*ParseResult, error) {
	var sb strings.Builder
	if _, err := io.Copy(&sb, r); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return p.ParseHTML(ctx, sb.String())
}

// ParseURL fetches the portal page at url and parses it
func (p *Processor) ParseURL(ctx context.Context, url string) (*ParseResult, error) {
	return unwrap(p.pipeline.Process(ctx, processor.Request{URL: url}))
}

// ParseBatch parses several pages concurrently. Results keep the order of
// inputs; the first error cancels the remaining work.
func (p *Processor) ParseBatch(ctx context.Context, inputs []io.Reader) ([]*ParseResult, error) {
	results := make([]*ParseResult, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.options.Concurrency)

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := p.ParseReader(ctx, input)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ParseURLs fetches and parses several portal pages concurrently
func (p *Processor) ParseURLs(ctx context.Context, urls []string) ([]*ParseResult, error) {
	results := make([]*ParseResult, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.options.Concurrency)

	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			result, err := p.ParseURL(ctx, url)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// Layouts returns the registered layouts in priority order
func (p *Processor) Layouts() []*Layout {
	return p.pipeline.Parser().Registry().Layouts()
}

func unwrap(result *processor.Result) (*ParseResult, error) {
	if result.Error != nil {
		return result.Receipt, result.Error
	}
	return result.Receipt, nil
}
