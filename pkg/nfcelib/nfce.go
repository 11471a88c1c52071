// Package nfcelib provides a public API for reading Brazilian NFC-e
// consumer receipts from the HTML pages of the state tax portals.
//
// Example usage:
//
//	proc, err := nfcelib.NewProcessor(nfcelib.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	receipt, err := proc.ParseURL(ctx, "https://www.sefaz.rs.gov.br/NFCE/NFCE-COM.aspx?p=...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, item := range receipt.Items {
//	    fmt.Println(item.Description, *item.TotalPrice)
//	}
package nfcelib

import (
	"github.com/rezonia/nfce-parser/internal/model"
	htmlparser "github.com/rezonia/nfce-parser/internal/parser/html"
)

// Re-export core types for public API
type (
	ParseResult    = model.ParseResult
	LineItem       = model.LineItem
	TotalsSummary  = model.TotalsSummary
	IssuerInfo     = model.IssuerInfo
	FiscalMetadata = model.FiscalMetadata
	Layout         = htmlparser.Layout
)

// Re-export error types
type (
	InputError      = model.InputError
	InputErrorKind  = model.InputErrorKind
	AcceptanceError = model.AcceptanceError
	LayoutError     = model.LayoutError
)

// Re-export input error kinds
const (
	InputMissing = model.InputMissing
	InputFetch   = model.InputFetch
)

// DefaultLayout returns the built-in layout table
func DefaultLayout() *Layout {
	return htmlparser.DefaultLayout()
}
