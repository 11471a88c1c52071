package html

import (
	dec "github.com/shopspring/decimal"

	"github.com/rezonia/nfce-parser/internal/decimal"
	"github.com/rezonia/nfce-parser/internal/model"
)

// CrossValidate returns a copy of items where Validated reports whether
// quantity x unit price matches the total price within tolerance. Items
// missing any of the three values keep Validated unset.
func CrossValidate(items []model.LineItem, tolerance dec.Decimal) []model.LineItem {
	out := make([]model.LineItem, len(items))
	for i, item := range items {
		if ok, checked := checkItem(item, tolerance); checked {
			item.Validated = &ok
		}
		out[i] = item
	}
	return out
}

func checkItem(item model.LineItem, tolerance dec.Decimal) (ok, checked bool) {
	if item.Quantity == nil || item.UnitPrice == nil || item.TotalPrice == nil {
		return false, false
	}
	q, p, total := *item.Quantity, *item.UnitPrice, *item.TotalPrice
	if !decimal.IsFinite(q) || !decimal.IsFinite(p) || !decimal.IsFinite(total) {
		return false, false
	}
	expected := decimal.Mul(decimal.FromFloat(q), decimal.FromFloat(p))
	return decimal.ApproxEqual(expected, decimal.FromFloat(total), tolerance), true
}

// Assemble merges the extractor outputs into a ParseResult. Items are never
// nil so the record always carries its four groups.
func Assemble(issuer model.IssuerInfo, items []model.LineItem, totals model.TotalsSummary, metadata model.FiscalMetadata) *model.ParseResult {
	if items == nil {
		items = []model.LineItem{}
	}
	return &model.ParseResult{
		Issuer:   issuer,
		Items:    items,
		Totals:   totals,
		Metadata: metadata,
	}
}
