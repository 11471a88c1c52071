package html

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/rezonia/nfce-parser/internal/decimal"
	"github.com/rezonia/nfce-parser/internal/model"
)

// extractTotals resolves the summary fields of the totals container. The
// second return value reports whether the container exists; without it
// every field stays nil.
func extractTotals(root *goquery.Selection, l *CompiledLayout) (model.TotalsSummary, bool) {
	var totals model.TotalsSummary

	container := firstMatch(root, l.totalsContainer)
	if container == nil {
		return totals, false
	}
	text := newTextView(blockText(container))

	totals.ItemCount = resolveNumber(container, l.itemCount, text)
	totals.GrandTotal = resolveNumber(container, l.grandTotal, text)
	totals.Discounts = resolveNumber(container, l.discounts, text)
	totals.AmountDue = resolveNumber(container, l.amountDue, text)
	totals.PaymentMethod = resolveText(container, l.paymentMode, text)

	return totals, true
}

// resolveNumber tries the field selectors in order, then the label patterns
func resolveNumber(container *goquery.Selection, f compiledField, text textView) *float64 {
	producers := make([]Producer[float64], 0, len(f.selectors)+1)
	for _, sel := range f.selectors {
		sel := sel
		producers = append(producers, func() *float64 {
			s := selectText(container, sel)
			if s == nil {
				return nil
			}
			return decimal.ParseBR(*s)
		})
	}
	producers = append(producers, func() *float64 { return matchNumber(f.patterns, text) })
	return FirstOf(producers...)
}

func resolveText(container *goquery.Selection, f compiledField, text textView) *string {
	producers := make([]Producer[string], 0, len(f.selectors)+1)
	for _, sel := range f.selectors {
		sel := sel
		producers = append(producers, func() *string { return selectText(container, sel) })
	}
	producers = append(producers, func() *string { return matchText(f.patterns, text) })
	return FirstOf(producers...)
}

// firstMatch returns the first element under root matching sel, or nil
func firstMatch(root *goquery.Selection, sel cascadia.Selector) *goquery.Selection {
	if sel == nil {
		return nil
	}
	found := root.FindMatcher(sel).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

// selectText returns the trimmed text of the first element matching sel
func selectText(root *goquery.Selection, sel cascadia.Selector) *string {
	found := firstMatch(root, sel)
	if found == nil {
		return nil
	}
	return nonEmpty(cleanText(found.Text()))
}
