package html

import (
	"github.com/PuerkitoBio/goquery"
)

// Registry holds the known layouts. Register layouts before parsing starts;
// lookups are read-only afterwards.
type Registry struct {
	layouts  []*CompiledLayout
	fallback *CompiledLayout
}

// NewRegistry creates a registry holding the built-in layout, which is also
// the fallback when no layout is detected
func NewRegistry() *Registry {
	def := MustCompile(DefaultLayout())
	return &Registry{
		layouts:  []*CompiledLayout{def},
		fallback: def,
	}
}

// Register validates and adds a layout. Later registrations take priority
// over earlier ones and over the built-in layout.
func (r *Registry) Register(l *Layout) error {
	compiled, err := Compile(l)
	if err != nil {
		return err
	}
	r.layouts = append([]*CompiledLayout{compiled}, r.layouts...)
	return nil
}

// Detect returns the first layout whose detect selectors match the
// document, or the built-in layout. It never fails.
func (r *Registry) Detect(root *goquery.Selection) *CompiledLayout {
	for _, l := range r.layouts {
		if l.matches(root) {
			return l
		}
	}
	return r.fallback
}

// Get returns the layout with the given name, or nil
func (r *Registry) Get(name string) *CompiledLayout {
	for _, l := range r.layouts {
		if l.Layout.Name == name {
			return l
		}
	}
	return nil
}

// Layouts returns the registered layouts in priority order
func (r *Registry) Layouts() []*Layout {
	out := make([]*Layout, 0, len(r.layouts))
	for _, l := range r.layouts {
		out = append(out, l.Layout)
	}
	return out
}

func (l *CompiledLayout) matches(root *goquery.Selection) bool {
	for _, sel := range l.detect {
		if root.FindMatcher(sel).Length() > 0 {
			return true
		}
	}
	return false
}
