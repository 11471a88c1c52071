package html

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/rezonia/nfce-parser/internal/model"
)

// Layout is a versioned selector/regex table describing one family of
// portal pages. Empty selectors and empty pattern lists mean "not
// available on this layout" and resolve to nil fields.
type Layout struct {
	Name    string   `yaml:"name"`
	Version int      `yaml:"version"`
	Detect  []string `yaml:"detect,omitempty"`

	Items  ItemRules   `yaml:"items"`
	Totals TotalsRules `yaml:"totals"`
	Issuer IssuerRules `yaml:"issuer"`
}

// CellRule locates one value inside a product row. Pattern, when set,
// extracts capture group 1 from the cell text; the whole cell text is used
// when it does not match.
type CellRule struct {
	Selector string `yaml:"selector,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`
}

// ItemRules describes the product table
type ItemRules struct {
	Rows        string   `yaml:"rows"`
	Description CellRule `yaml:"description"`
	Code        CellRule `yaml:"code"`
	Quantity    CellRule `yaml:"quantity"`
	Unit        CellRule `yaml:"unit"`
	UnitPrice   CellRule `yaml:"unit_price"`
	TotalPrice  CellRule `yaml:"total_price"`
}

// FieldRule resolves a field by trying each selector, then each label
// pattern over the container text. Patterns must capture the value in group 1.
type FieldRule struct {
	Selectors []string `yaml:"selectors,omitempty"`
	Patterns  []string `yaml:"patterns,omitempty"`
}

// TotalsRules describes the totals block
type TotalsRules struct {
	Container     string    `yaml:"container"`
	ItemCount     FieldRule `yaml:"item_count"`
	GrandTotal    FieldRule `yaml:"grand_total"`
	Discounts     FieldRule `yaml:"discounts"`
	AmountDue     FieldRule `yaml:"amount_due"`
	PaymentMethod FieldRule `yaml:"payment_method"`
}

// IssuerRules describes the issuer/metadata block. Name holds selectors in
// priority order; every other field holds patterns.
type IssuerRules struct {
	Container             string   `yaml:"container"`
	Name                  []string `yaml:"name,omitempty"`
	TaxID                 []string `yaml:"tax_id,omitempty"`
	DocumentNumber        []string `yaml:"document_number,omitempty"`
	Series                []string `yaml:"series,omitempty"`
	IssueDate             []string `yaml:"issue_date,omitempty"`
	AuthorizationProtocol []string `yaml:"authorization_protocol,omitempty"`
	AccessKey             []string `yaml:"access_key,omitempty"`
}

// DefaultLayoutName names the built-in layout
const DefaultLayoutName = "sefaz-consulta"

// DefaultLayout returns the table for the state-portal consultation page
// (#tabResult / #totalNota / #infos).
func DefaultLayout() *Layout {
	return &Layout{
		Name:    DefaultLayoutName,
		Version: 1,
		Detect:  []string{"#tabResult", "#totalNota", "#infos"},
		Items: ItemRules{
			Rows:        `#tabResult tr[id^="Item"]`,
			Description: CellRule{Selector: "span.txtTit2"},
			Code:        CellRule{Selector: "span.RCod", Pattern: `C[oó]d(?:igo)?\.?\s*:?\s*([^\s)]+)`},
			Quantity:    CellRule{Selector: "span.Rqtd", Pattern: `Qtde?\.?\s*:?\s*(-?[0-9.,]+)`},
			Unit:        CellRule{Selector: "span.RUN", Pattern: `UN\s*:\s*(\S+)`},
			UnitPrice:   CellRule{Selector: "span.RvlUnit", Pattern: `Vl\.?\s*Unit\.?\s*:?\s*(-?[0-9.,]+)`},
			TotalPrice:  CellRule{Selector: "span.valor"},
		},
		Totals: TotalsRules{
			Container: "#totalNota",
			ItemCount: FieldRule{
				Selectors: []string{"#QtdTotalItens, .QtdTotalItens"},
				Patterns: []string{
					`Quantidade\s*total\s*de\s*itens\s*[:\-]?\s*([0-9.,]+)`,
					`Qtd\.?\s*total\s*de\s*itens\s*[:\-]?\s*([0-9.,]+)`,
				},
			},
			GrandTotal: FieldRule{
				Selectors: []string{"#ValorTotal, .ValorTotal"},
				Patterns:  []string{`Valor\s*total\s*(?:R\$)?\s*[:\-]?\s*([0-9.,]+)`},
			},
			Discounts: FieldRule{
				Selectors: []string{"#Descontos, .Descontos"},
				Patterns:  []string{`Descontos?\s*(?:R\$)?\s*[:\-]?\s*([0-9.,]+)`},
			},
			AmountDue: FieldRule{
				Selectors: []string{"#ValorAPagar, .ValorAPagar"},
				Patterns:  []string{`Valor\s*a\s*pagar\s*(?:R\$)?\s*[:\-]?\s*([0-9.,]+)`},
			},
			PaymentMethod: FieldRule{
				Selectors: []string{"#FormaPagamento, .FormaPagamento"},
				Patterns:  []string{`(?:Forma\s*de\s*Pagamento|Pagamento)\s*[:\-]?\s*([^\n]+)`},
			},
		},
		Issuer: IssuerRules{
			Container:             "#infos",
			Name:                  []string{".emitente", "#emitente", "h3", "h4"},
			TaxID:                 []string{`CNPJ\s*[:\-]?\s*([0-9./-]+)`},
			DocumentNumber:        []string{`N(?:[ºo°]|[uú]mero)\.?\s*[:\-]?\s*(\d+)`},
			Series:                []string{`S[ée]rie\s*[:\-]?\s*(\d+)`},
			IssueDate:             []string{`(?:Data\s*de\s*)?Emiss[aã]o\s*[:\-]?\s*([0-9/ :]+)`},
			AuthorizationProtocol: []string{`Protocolo\s*de\s*Autoriza[cç][aã]o\s*[:\-]?\s*(\d+)`},
			AccessKey:             []string{`(?:^|[^\d ]|[^\d] )(\d{4}(?: \d{4}){10})(?:$|[^\d ]| [^\d]| $)`},
		},
	}
}

// LoadLayouts decodes one or more YAML documents, each describing a layout,
// and validates them.
func LoadLayouts(r io.Reader) ([]*Layout, error) {
	dec := yaml.NewDecoder(r)
	var layouts []*Layout
	for {
		var l Layout
		err := dec.Decode(&l)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, model.NewLayoutError("?", "yaml", "failed to decode layout", err)
		}
		if _, err := Compile(&l); err != nil {
			return nil, err
		}
		layouts = append(layouts, &l)
	}
	if len(layouts) == 0 {
		return nil, model.NewLayoutError("?", "yaml", "no layout found", nil)
	}
	return layouts, nil
}

// LoadLayoutFile reads layouts from a YAML file
func LoadLayoutFile(path string) ([]*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layout file: %w", err)
	}
	defer f.Close()
	return LoadLayouts(f)
}

// EncodeLayouts writes layouts as a YAML stream, one document per layout
func EncodeLayouts(w io.Writer, layouts ...*Layout) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, l := range layouts {
		if err := enc.Encode(l); err != nil {
			return err
		}
	}
	return enc.Close()
}

type compiledCell struct {
	selector cascadia.Selector
	pattern  *regexp.Regexp
}

type compiledField struct {
	selectors []cascadia.Selector
	patterns  []*regexp.Regexp
}

// CompiledLayout is a Layout with every selector and pattern compiled. It is
// read-only and safe for concurrent use.
type CompiledLayout struct {
	Layout *Layout

	detect []cascadia.Selector

	rows                                                     cascadia.Selector
	description, code, quantity, unit, unitPrice, totalPrice compiledCell

	totalsContainer                                          cascadia.Selector
	itemCount, grandTotal, discounts, amountDue, paymentMode compiledField

	issuerContainer cascadia.Selector
	issuerName      []cascadia.Selector
	taxID           []*regexp.Regexp
	documentNumber  []*regexp.Regexp
	series          []*regexp.Regexp
	issueDate       []*regexp.Regexp
	protocol        []*regexp.Regexp
	accessKey       []*regexp.Regexp
}

// Compile validates a layout and compiles its selectors and patterns
func Compile(l *Layout) (*CompiledLayout, error) {
	if l == nil || l.Name == "" {
		return nil, model.NewLayoutError("?", "name", "layout name is required", nil)
	}
	c := &layoutCompiler{name: l.Name}
	cl := &CompiledLayout{Layout: l}

	cl.detect = c.selectors("detect", l.Detect)

	cl.rows = c.selector("items.rows", l.Items.Rows)
	cl.description = c.cell("items.description", l.Items.Description)
	cl.code = c.cell("items.code", l.Items.Code)
	cl.quantity = c.cell("items.quantity", l.Items.Quantity)
	cl.unit = c.cell("items.unit", l.Items.Unit)
	cl.unitPrice = c.cell("items.unit_price", l.Items.UnitPrice)
	cl.totalPrice = c.cell("items.total_price", l.Items.TotalPrice)

	cl.totalsContainer = c.selector("totals.container", l.Totals.Container)
	cl.itemCount = c.field("totals.item_count", l.Totals.ItemCount)
	cl.grandTotal = c.field("totals.grand_total", l.Totals.GrandTotal)
	cl.discounts = c.field("totals.discounts", l.Totals.Discounts)
	cl.amountDue = c.field("totals.amount_due", l.Totals.AmountDue)
	cl.paymentMode = c.field("totals.payment_method", l.Totals.PaymentMethod)

	cl.issuerContainer = c.selector("issuer.container", l.Issuer.Container)
	cl.issuerName = c.selectors("issuer.name", l.Issuer.Name)
	cl.taxID = c.patterns("issuer.tax_id", l.Issuer.TaxID)
	cl.documentNumber = c.patterns("issuer.document_number", l.Issuer.DocumentNumber)
	cl.series = c.patterns("issuer.series", l.Issuer.Series)
	cl.issueDate = c.patterns("issuer.issue_date", l.Issuer.IssueDate)
	cl.protocol = c.patterns("issuer.authorization_protocol", l.Issuer.AuthorizationProtocol)
	cl.accessKey = c.patterns("issuer.access_key", l.Issuer.AccessKey)

	if c.err != nil {
		return nil, c.err
	}
	return cl, nil
}

// MustCompile is like Compile but panics on an invalid layout
func MustCompile(l *Layout) *CompiledLayout {
	cl, err := Compile(l)
	if err != nil {
		panic(err)
	}
	return cl
}

// layoutCompiler keeps the first error so Compile reads as a flat list
type layoutCompiler struct {
	name string
	err  error
}

func (c *layoutCompiler) fail(field, message string, cause error) {
	if c.err == nil {
		c.err = model.NewLayoutError(c.name, field, message, cause)
	}
}

func (c *layoutCompiler) selector(field, sel string) cascadia.Selector {
	if sel == "" {
		return nil
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		c.fail(field, fmt.Sprintf("invalid selector %q", sel), err)
		return nil
	}
	return compiled
}

func (c *layoutCompiler) selectors(field string, sels []string) []cascadia.Selector {
	var out []cascadia.Selector
	for i, sel := range sels {
		if s := c.selector(fmt.Sprintf("%s[%d]", field, i), sel); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *layoutCompiler) pattern(field, expr string) *regexp.Regexp {
	if expr == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		c.fail(field, fmt.Sprintf("invalid pattern %q", expr), err)
		return nil
	}
	if re.NumSubexp() < 1 {
		c.fail(field, fmt.Sprintf("pattern %q has no capture group", expr), nil)
		return nil
	}
	return re
}

func (c *layoutCompiler) patterns(field string, exprs []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for i, expr := range exprs {
		if re := c.pattern(fmt.Sprintf("%s[%d]", field, i), expr); re != nil {
			out = append(out, re)
		}
	}
	return out
}

func (c *layoutCompiler) cell(field string, rule CellRule) compiledCell {
	return compiledCell{
		selector: c.selector(field+".selector", rule.Selector),
		pattern:  c.pattern(field+".pattern", rule.Pattern),
	}
}

func (c *layoutCompiler) field(field string, rule FieldRule) compiledField {
	return compiledField{
		selectors: c.selectors(field+".selectors", rule.Selectors),
		patterns:  c.patterns(field+".patterns", rule.Patterns),
	}
}
