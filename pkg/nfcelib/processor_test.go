package nfcelib_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfce-parser/pkg/nfcelib"
)

func receiptPage(description, total string) string {
	return fmt.Sprintf(`<table id="tabResult">
  <tr id="Item + 1"><td>
    <span class="txtTit2">%s</span>
    <span class="Rqtd"><strong>Qtde.:</strong>1</span>
    <span class="RvlUnit"><strong>Vl. Unit.:</strong>&nbsp;%s</span>
  </td><td><span class="valor">%s</span></td></tr>
</table>
<div id="totalNota"><div>Valor total R$: %s</div></div>`, description, total, total, total)
}

func TestNewDefaultProcessor(t *testing.T) {
	proc := nfcelib.NewDefaultProcessor()
	require.NotNil(t, proc)
	require.Len(t, proc.Layouts(), 1)
}

func TestDefaultOptions(t *testing.T) {
	opts := nfcelib.DefaultOptions()

	assert.Equal(t, "0.02", opts.Tolerance)
	assert.Equal(t, 4, opts.Concurrency)
	assert.Equal(t, int64(5<<20), opts.MaxBodySize)
}

func TestNewProcessor_InvalidOptions(t *testing.T) {
	opts := nfcelib.DefaultOptions()
	opts.Tolerance = "muito"
	_, err := nfcelib.NewProcessor(opts)
	require.Error(t, err)

	opts = nfcelib.DefaultOptions()
	opts.Layouts = []*nfcelib.Layout{{Name: "bad", Detect: []string{"div["}}}
	_, err = nfcelib.NewProcessor(opts)

	var layoutErr *nfcelib.LayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Equal(t, "bad", layoutErr.Layout)
}

func TestProcessor_Parse(t *testing.T) {
	proc := nfcelib.NewDefaultProcessor()

	result := proc.Parse(receiptPage("BOLACHA", "3,29"))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "BOLACHA", result.Items[0].Description)
	require.NotNil(t, result.Totals.GrandTotal)
	assert.InDelta(t, 3.29, *result.Totals.GrandTotal, 1e-9)
}

func TestProcessor_ParseHTML_MissingInput(t *testing.T) {
	proc := nfcelib.NewDefaultProcessor()

	_, err := proc.ParseHTML(context.Background(), "")

	var inputErr *nfcelib.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, nfcelib.InputMissing, inputErr.Kind)
}

func TestProcessor_ParseURL(t *testing.T) {
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") == "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(receiptPage("SUCO "+r.URL.Query().Get("p"), "7,90")))
	}))
	defer portal.Close()

	proc := nfcelib.NewDefaultProcessor()

	result, err := proc.ParseURL(context.Background(), portal.URL+"/nfce?p=1")
	require.NoError(t, err)
	assert.Equal(t, "SUCO 1", result.Items[0].Description)

	_, err = proc.ParseURL(context.Background(), portal.URL+"/nfce")
	var inputErr *nfcelib.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, nfcelib.InputFetch, inputErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, inputErr.StatusCode)

	results, err := proc.ParseURLs(context.Background(), []string{portal.URL + "/nfce?p=a", portal.URL + "/nfce?p=b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "SUCO a", results[0].Items[0].Description)
	assert.Equal(t, "SUCO b", results[1].Items[0].Description)
}

func TestProcessor_ParseBatch(t *testing.T) {
	proc := nfcelib.NewDefaultProcessor()

	inputs := make([]io.Reader, 0, 10)
	for i := 0; i < 10; i++ {
		inputs = append(inputs, strings.NewReader(receiptPage(fmt.Sprintf("ITEM %d", i), "1,00")))
	}

	results, err := proc.ParseBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, fmt.Sprintf("ITEM %d", i), r.Items[0].Description)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestProcessor_ParseBatch_Error(t *testing.T) {
	proc := nfcelib.NewDefaultProcessor()

	_, err := proc.ParseBatch(context.Background(), []io.Reader{
		strings.NewReader(receiptPage("A", "1,00")),
		failingReader{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestProcessor_CustomTolerance(t *testing.T) {
	page := `<table id="tabResult"><tr id="Item + 1"><td>
		<span class="txtTit2">QUEIJO KG</span>
		<span class="Rqtd">Qtde.:0,412</span>
		<span class="RvlUnit">Vl. Unit.: 49,90</span>
		<span class="valor">20,60</span>
	</td></tr></table>`

	strict := nfcelib.NewDefaultProcessor()
	result := strict.Parse(page)
	require.NotNil(t, result.Items[0].Validated)
	assert.False(t, *result.Items[0].Validated)

	opts := nfcelib.DefaultOptions()
	opts.Tolerance = "0,05"
	lenient, err := nfcelib.NewProcessor(opts)
	require.NoError(t, err)

	result = lenient.Parse(page)
	require.NotNil(t, result.Items[0].Validated)
	assert.True(t, *result.Items[0].Validated)
}

func BenchmarkParseBatch(b *testing.B) {
	proc := nfcelib.NewDefaultProcessor()
	page := receiptPage("ITEM", "1,00")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		inputs := []io.Reader{strings.NewReader(page), strings.NewReader(page), strings.NewReader(page)}
		_, _ = proc.ParseBatch(context.Background(), inputs)
	}
}
