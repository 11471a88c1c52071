package model

// LineItem is one product entry of the receipt
type LineItem struct {
	Description string   `json:"description"`
	Code        *string  `json:"code"`
	Quantity    *float64 `json:"quantity"`
	Unit        *string  `json:"unit"`
	UnitPrice   *float64 `json:"unit_price"`
	TotalPrice  *float64 `json:"total_price"`

	// Validated is nil when quantity, unit price or total price is missing.
	Validated *bool `json:"validated"`
}

// TotalsSummary holds the summary block printed below the items
type TotalsSummary struct {
	ItemCount     *float64 `json:"item_count"`
	GrandTotal    *float64 `json:"grand_total"`
	Discounts     *float64 `json:"discounts"`
	AmountDue     *float64 `json:"amount_due"`
	PaymentMethod *string  `json:"payment_method"`
}

// IssuerInfo identifies the store that issued the receipt
type IssuerInfo struct {
	Name  *string `json:"name"`
	TaxID *string `json:"tax_id"`
}

// FiscalMetadata holds the identifiers of the fiscal document
type FiscalMetadata struct {
	DocumentNumber        *string `json:"document_number"`
	Series                *string `json:"series"`
	IssueDate             *string `json:"issue_date"`
	AuthorizationProtocol *string `json:"authorization_protocol"`

	// AccessKey is the 44-digit key as displayed: eleven space-separated
	// groups of four digits.
	AccessKey *string `json:"access_key"`
}

// ParseResult is the structured record extracted from one NFC-e page.
// All four groups are always present; each of their fields is optional.
type ParseResult struct {
	Issuer   IssuerInfo     `json:"issuer"`
	Items    []LineItem     `json:"items"`
	Totals   TotalsSummary  `json:"totals"`
	Metadata FiscalMetadata `json:"metadata"`
}

// ValidatedCount returns how many items were checked and how many of them
// failed the quantity x unit price check.
func (r *ParseResult) ValidatedCount() (checked, failed int) {
	for _, item := range r.Items {
		if item.Validated == nil {
			continue
		}
		checked++
		if !*item.Validated {
			failed++
		}
	}
	return checked, failed
}
