package html

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rezonia/nfce-parser/internal/decimal"
)

// block elements break lines in the container text so that free-text
// captures stop at the end of their box
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Br: true, atom.Dd: true,
	atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Ol: true,
	atom.P: true, atom.Section: true, atom.Table: true, atom.Tr: true,
	atom.Ul: true,
}

// textView holds a container text and its diacritic-folded copy
type textView struct {
	raw    string
	folded string
}

func newTextView(s string) textView {
	s = norm.NFC.String(normalizeSpaces(s))
	return textView{raw: s, folded: fold(s)}
}

// blockText returns the text of the selection with a line break around
// every block element. Script and style content is skipped.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

func normalizeSpaces(s string) string {
	return strings.ReplaceAll(s, "\u00a0", " ")
}

// cleanText trims the text and maps non-breaking spaces to spaces
func cleanText(s string) string {
	return strings.TrimSpace(normalizeSpaces(s))
}

// fold strips diacritics: "Emissão" becomes "Emissao"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// variants returns the raw text, followed by the folded text when folding
// changed anything
func (t textView) variants() []string {
	if t.folded == t.raw {
		return []string{t.raw}
	}
	return []string{t.raw, t.folded}
}

// matchValue tries every pattern against the raw text, then against the
// folded text, and returns the first capture that converts to a value.
func matchValue[T any](patterns []*regexp.Regexp, text textView, convert func(string) *T) *T {
	var producers []Producer[T]
	for _, re := range patterns {
		for _, s := range text.variants() {
			re, s := re, s
			producers = append(producers, func() *T {
				v := capture(re, s)
				if v == nil {
					return nil
				}
				return convert(*v)
			})
		}
	}
	return FirstOf(producers...)
}

func matchText(patterns []*regexp.Regexp, text textView) *string {
	return matchValue(patterns, text, func(s string) *string { return &s })
}

func matchNumber(patterns []*regexp.Regexp, text textView) *float64 {
	return matchValue(patterns, text, decimal.ParseBR)
}

func capture(re *regexp.Regexp, s string) *string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return nil
	}
	return nonEmpty(m[1])
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
