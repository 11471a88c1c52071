package html

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/rezonia/nfce-parser/internal/model"
)

// extractIssuer resolves issuer identity and fiscal metadata from the
// issuer container. Every field is resolved on its own; a miss on one never
// blocks the others.
func extractIssuer(root *goquery.Selection, l *CompiledLayout) (model.IssuerInfo, model.FiscalMetadata, bool) {
	var (
		issuer   model.IssuerInfo
		metadata model.FiscalMetadata
	)

	container := firstMatch(root, l.issuerContainer)
	if container == nil {
		return issuer, metadata, false
	}
	text := newTextView(blockText(container))

	names := make([]Producer[string], 0, len(l.issuerName))
	for _, sel := range l.issuerName {
		sel := sel
		names = append(names, func() *string { return selectText(container, sel) })
	}
	issuer.Name = FirstOf(names...)
	issuer.TaxID = matchText(l.taxID, text)

	metadata.DocumentNumber = matchText(l.documentNumber, text)
	metadata.Series = matchText(l.series, text)
	metadata.IssueDate = matchText(l.issueDate, text)
	metadata.AuthorizationProtocol = matchText(l.protocol, text)
	metadata.AccessKey = matchText(l.accessKey, text)

	return issuer, metadata, true
}
