package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/nfce-parser/internal/fetch"
	"github.com/rezonia/nfce-parser/internal/model"
	htmlparser "github.com/rezonia/nfce-parser/internal/parser/html"
)

func TestNewClient_Defaults(t *testing.T) {
	c := fetch.NewClient()
	assert.Equal(t, fetch.DefaultTimeout, c.Timeout())

	c = fetch.NewClient(fetch.WithTimeout(2 * time.Second))
	assert.Equal(t, 2*time.Second, c.Timeout())
}

func TestFetch_Success(t *testing.T) {
	var gotAccept, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<div id="tabResult"></div>`))
	}))
	defer srv.Close()

	c := fetch.NewClient(fetch.WithUserAgent("test-agent"))
	body, err := c.Fetch(context.Background(), srv.URL+"/consulta?p=123")

	require.NoError(t, err)
	assert.Equal(t, `<div id="tabResult"></div>`, body)
	assert.Equal(t, "text/html", gotAccept)
	assert.Equal(t, "test-agent", gotUA)
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		case "/large":
			_, _ = w.Write([]byte(strings.Repeat("a", 64)))
		}
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{name: "not found", url: srv.URL + "/missing", status: http.StatusNotFound},
		{name: "server error", url: srv.URL + "/broken", status: http.StatusBadGateway},
		{name: "body too large", url: srv.URL + "/large", status: http.StatusOK},
		{name: "unsupported scheme", url: "ftp://example.com/nfce", status: 0},
		{name: "not a url", url: "::nope", status: 0},
		{name: "missing host", url: "https://", status: 0},
	}

	c := fetch.NewClient(fetch.WithMaxBodySize(32))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Fetch(context.Background(), tt.url)
			require.Error(t, err)

			var inputErr *model.InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, model.InputFetch, inputErr.Kind)
			assert.Equal(t, tt.status, inputErr.StatusCode)
			assert.Equal(t, tt.url, inputErr.URL)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := fetch.NewClient(fetch.WithTimeout(50 * time.Millisecond))
	_, err := c.Fetch(context.Background(), srv.URL)

	var inputErr *model.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, model.InputFetch, inputErr.Kind)
	assert.Zero(t, inputErr.StatusCode)
}

func TestFetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetch.NewClient().Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_DecodesDeclaredCharset(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		expected    string
	}{
		{
			name:        "latin-1 header",
			contentType: "text/html; charset=ISO-8859-1",
			body:        "<p>Emiss\xe3o S\xe9rie</p>",
			expected:    "<p>Emissão Série</p>",
		},
		{
			name:        "latin-1 meta tag",
			contentType: "text/html",
			body:        "<meta charset=\"iso-8859-1\"><p>S\xc3O JO\xc3O</p>",
			expected:    `<meta charset="iso-8859-1"><p>SÃO JOÃO</p>`,
		},
		{
			name:        "utf-8 header",
			contentType: "text/html; charset=utf-8",
			body:        "<p>Emissão</p>",
			expected:    "<p>Emissão</p>",
		},
		{
			name:        "undeclared utf-8",
			contentType: "text/html",
			body:        "<p>Série</p>",
			expected:    "<p>Série</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			body, err := fetch.NewClient().Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, body)
		})
	}
}

func TestFetch_Latin1PageParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<div id=\"infos\"><h4>SUPERMERCADO S\xc3O JO\xc3O</h4>Emiss\xe3o: 15/03/2024 18:42:10 S\xe9rie: 1</div>"))
	}))
	defer srv.Close()

	result, err := htmlparser.NewParser().ParseURL(context.Background(), fetch.NewClient(), srv.URL)
	require.NoError(t, err)

	require.NotNil(t, result.Issuer.Name)
	assert.Equal(t, "SUPERMERCADO SÃO JOÃO", *result.Issuer.Name)
	require.NotNil(t, result.Metadata.IssueDate)
	assert.Equal(t, "15/03/2024 18:42:10", *result.Metadata.IssueDate)
	require.NotNil(t, result.Metadata.Series)
	assert.Equal(t, "1", *result.Metadata.Series)
}
