package processor_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfce-parser/internal/fetch"
	"github.com/rezonia/nfce-parser/internal/logger"
	"github.com/rezonia/nfce-parser/internal/model"
	"github.com/rezonia/nfce-parser/internal/processor"
)

const receiptHTML = `<html><body>
<table id="tabResult">
  <tr id="Item + 1"><td>
    <span class="txtTit2">CAFE TORRADO 500G</span>
    <span class="RCod">(Código: 789100 )</span>
    <span class="Rqtd"><strong>Qtde.:</strong>2</span>
    <span class="RUN"><strong>UN: </strong>UN</span>
    <span class="RvlUnit"><strong>Vl. Unit.:</strong>&nbsp;15,90</span>
  </td><td><span class="valor">31,80</span></td></tr>
  <tr id="Item + 2"><td>
    <span class="txtTit2">ACUCAR 1KG</span>
    <span class="Rqtd"><strong>Qtde.:</strong>1</span>
    <span class="RvlUnit"><strong>Vl. Unit.:</strong>&nbsp;4,99</span>
  </td><td><span class="valor">5,49</span></td></tr>
</table>
<div id="totalNota">
  <div><label>Valor total R$:</label><span>37,29</span></div>
</div>
<div id="infos">
  <div class="emitente">MERCADINHO DA ESQUINA</div>
  <div>CNPJ: 01.234.567/0001-89</div>
</div>
</body></html>`

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls++
	return f.body, f.err
}

func newPipeline(opts ...processor.PipelineOption) *processor.Pipeline {
	return processor.NewPipeline(append([]processor.PipelineOption{processor.WithLogger(logger.Discard())}, opts...)...)
}

func TestNewPipeline(t *testing.T) {
	p := processor.NewPipeline()
	require.NotNil(t, p)
	assert.NotNil(t, p.Parser())
	assert.NotNil(t, p.Fetcher())
}

func TestProcess_HTML(t *testing.T) {
	p := newPipeline()

	result := p.ProcessHTML(context.Background(), receiptHTML)
	require.NoError(t, result.Error)
	require.NotNil(t, result.Receipt)

	assert.Equal(t, processor.SourceHTML, result.Source)
	assert.Equal(t, "sefaz-consulta", result.Layout)
	require.Len(t, result.Receipt.Items, 2)
	assert.Equal(t, "CAFE TORRADO 500G", result.Receipt.Items[0].Description)
	require.NotNil(t, result.Receipt.Items[0].Validated)
	assert.True(t, *result.Receipt.Items[0].Validated)
	require.NotNil(t, result.Receipt.Items[1].Validated)
	assert.False(t, *result.Receipt.Items[1].Validated)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "ACUCAR 1KG")
}

func TestProcess_MissingInput(t *testing.T) {
	p := newPipeline()

	for _, req := range []processor.Request{{}, {URL: "\n"}} {
		result := p.Process(context.Background(), req)
		require.Error(t, result.Error)

		var inputErr *model.InputError
		require.ErrorAs(t, result.Error, &inputErr)
		assert.Equal(t, model.InputMissing, inputErr.Kind)
		assert.Nil(t, result.Receipt)
	}
}

func TestProcess_BlankHTMLIsEmptyDocument(t *testing.T) {
	fetcher := &stubFetcher{body: receiptHTML}
	p := newPipeline(processor.WithFetcher(fetcher))

	result := p.Process(context.Background(), processor.Request{HTML: "  \n ", URL: "https://portal.example/nfce"})

	require.NoError(t, result.Error)
	assert.Equal(t, processor.SourceHTML, result.Source)
	assert.Empty(t, result.Receipt.Items)
	assert.Equal(t, 0, fetcher.calls)
}

func TestProcess_HTMLWinsOverURL(t *testing.T) {
	fetcher := &stubFetcher{body: "<p>from url</p>"}
	p := newPipeline(processor.WithFetcher(fetcher))

	result := p.Process(context.Background(), processor.Request{HTML: receiptHTML, URL: "https://portal.example"})
	require.NoError(t, result.Error)

	assert.Equal(t, processor.SourceHTML, result.Source)
	assert.Zero(t, fetcher.calls)
	assert.Len(t, result.Receipt.Items, 2)
}

func TestProcess_URL(t *testing.T) {
	fetcher := &stubFetcher{body: receiptHTML}
	p := newPipeline(processor.WithFetcher(fetcher))

	result := p.ProcessURL(context.Background(), "https://portal.example/nfce?p=1")
	require.NoError(t, result.Error)

	assert.Equal(t, processor.SourceURL, result.Source)
	assert.Equal(t, 1, fetcher.calls)
	requireString(t, "MERCADINHO DA ESQUINA", result.Receipt.Issuer.Name)
}

func TestProcess_URLWithHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nfce" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write([]byte(receiptHTML))
	}))
	defer srv.Close()

	p := newPipeline(processor.WithFetcher(fetch.NewClient()))

	result := p.ProcessURL(context.Background(), srv.URL+"/nfce")
	require.NoError(t, result.Error)
	assert.Len(t, result.Receipt.Items, 2)

	result = p.ProcessURL(context.Background(), srv.URL+"/old")
	var inputErr *model.InputError
	require.ErrorAs(t, result.Error, &inputErr)
	assert.Equal(t, model.InputFetch, inputErr.Kind)
	assert.Equal(t, http.StatusGone, inputErr.StatusCode)
	assert.Nil(t, result.Receipt)
}

func TestProcess_Warnings(t *testing.T) {
	p := newPipeline()

	page := `<table id="tabResult">
		<tr id="Item + 1"><td><span class="txtTit2"> </span></td></tr>
	</table>`
	result := p.ProcessHTML(context.Background(), page)
	require.NoError(t, result.Error)

	assert.Contains(t, result.Warnings, "totals section not found")
	assert.Contains(t, result.Warnings, "issuer section not found")
	assert.Contains(t, result.Warnings, "1 product rows without description skipped")
}

func TestAccept(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(-1)
	ok := 1.5

	tests := []struct {
		name   string
		result *model.ParseResult
		field  string
	}{
		{
			name:   "nil result",
			result: nil,
		},
		{
			name:   "all absent",
			result: &model.ParseResult{Items: []model.LineItem{{Description: "A"}}},
		},
		{
			name: "finite values",
			result: &model.ParseResult{
				Items:  []model.LineItem{{Description: "A", Quantity: &ok, UnitPrice: &ok, TotalPrice: &ok}},
				Totals: model.TotalsSummary{GrandTotal: &ok},
			},
		},
		{
			name: "NaN quantity",
			result: &model.ParseResult{
				Items: []model.LineItem{{Description: "A"}, {Description: "B", Quantity: &nan}},
			},
			field: "items[1].quantity",
		},
		{
			name: "infinite total",
			result: &model.ParseResult{
				Items:  []model.LineItem{{Description: "A", TotalPrice: &ok}},
				Totals: model.TotalsSummary{AmountDue: &inf},
			},
			field: "totals.amount_due",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := processor.Accept(tt.result)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var accErr *model.AcceptanceError
			require.ErrorAs(t, err, &accErr)
			assert.Equal(t, tt.field, accErr.Field)
			assert.Same(t, tt.result, accErr.Result)
		})
	}
}

func TestRequest_Source(t *testing.T) {
	assert.Equal(t, processor.SourceHTML, processor.Request{HTML: "<p>"}.Source())
	assert.Equal(t, processor.SourceURL, processor.Request{URL: "https://x"}.Source())
	assert.Equal(t, processor.Source(""), processor.Request{}.Source())
	assert.Equal(t, processor.SourceHTML, processor.Request{HTML: " "}.Source())
	assert.Equal(t, processor.Source(""), processor.Request{URL: "  "}.Source())
	assert.Equal(t, "url", processor.SourceURL.String())
}

func requireString(t *testing.T, expected string, actual *string) {
	t.Helper()
	require.NotNil(t, actual)
	assert.Equal(t, expected, *actual)
}

func BenchmarkProcessHTML(b *testing.B) {
	ctx := context.Background()
	p := newPipeline()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.ProcessHTML(ctx, receiptHTML)
	}
}
