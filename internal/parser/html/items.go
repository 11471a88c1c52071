package html

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/rezonia/nfce-parser/internal/decimal"
	"github.com/rezonia/nfce-parser/internal/model"
)

// extractItems builds one LineItem per product row, in document order.
// Rows without a description are skipped and counted.
func extractItems(root *goquery.Selection, l *CompiledLayout) ([]model.LineItem, int) {
	items := []model.LineItem{}
	if l.rows == nil {
		return items, 0
	}

	skipped := 0
	root.FindMatcher(l.rows).Each(func(_ int, row *goquery.Selection) {
		description := cellText(row, l.description)
		if description == nil {
			skipped++
			return
		}
		items = append(items, model.LineItem{
			Description: *description,
			Code:        cellText(row, l.code),
			Quantity:    cellNumber(row, l.quantity),
			Unit:        cellText(row, l.unit),
			UnitPrice:   cellNumber(row, l.unitPrice),
			TotalPrice:  cellNumber(row, l.totalPrice),
		})
	})
	return items, skipped
}

func cellText(row *goquery.Selection, c compiledCell) *string {
	if c.selector == nil {
		return nil
	}
	cell := row.FindMatcher(c.selector).First()
	if cell.Length() == 0 {
		return nil
	}
	text := newTextView(cell.Text())
	return FirstOf(
		func() *string {
			if c.pattern == nil {
				return nil
			}
			return matchText([]*regexp.Regexp{c.pattern}, text)
		},
		func() *string { return nonEmpty(text.raw) },
	)
}

func cellNumber(row *goquery.Selection, c compiledCell) *float64 {
	s := cellText(row, c)
	if s == nil {
		return nil
	}
	return decimal.ParseBR(*s)
}
