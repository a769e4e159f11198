// Package panel holds the side dashboard: a fixed set of filter inputs whose
// selections stay local to the page.
package panel

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"
)

var (
	ErrUnknownField  = errors.New("unknown field")
	ErrUnknownOption = errors.New("unknown option")
)

// Kind is the input type of a field.
type Kind string

const (
	Select   Kind = "select"
	Checkbox Kind = "checkbox"
)

// Field describes one dashboard input.
type Field struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Kind    Kind     `json:"kind"`
	Options []string `json:"options,omitempty"`
}

var fields = []Field{
	{Name: "taxon", Label: "Taxon", Kind: Select, Options: []string{"All", "Plants", "Birds", "Insects", "Fungi", "Mammals"}},
	{Name: "quality", Label: "Quality grade", Kind: Select, Options: []string{"Any", "Research", "Needs ID", "Casual"}},
	{Name: "period", Label: "Observed", Kind: Select, Options: []string{"All time", "Past year", "Past month", "Past week"}},
	{Name: "mine_only", Label: "Only my observations", Kind: Checkbox},
	{Name: "with_photos", Label: "With photos", Kind: Checkbox},
	{Name: "show_heatmap", Label: "Show heatmap", Kind: Checkbox},
}

// Fields returns the field definitions in display order.
func Fields() []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		f.Options = slices.Clone(f.Options)
		out[i] = f
	}
	return out
}

func lookup(name string) (Field, bool) {
	i := slices.IndexFunc(fields, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return fields[i], true
}

// Selections maps field name to its current value. Checkboxes hold "true" or "false".
type Selections map[string]string

// Panel is the dashboard state of one page.
type Panel struct {
	mu     sync.Mutex
	values Selections
	logger *slog.Logger
}

// New creates a panel with every field at its first option or unchecked.
func New() *Panel {
	p := &Panel{values: make(Selections, len(fields)), logger: slog.With("component", "panel")}
	for _, f := range fields {
		if f.Kind == Select {
			p.values[f.Name] = f.Options[0]
		} else {
			p.values[f.Name] = "false"
		}
	}
	return p
}

// Select sets a select field. Nothing changes if field or option is unknown.
func (p *Panel) Select(field, option string) error {
	f, ok := lookup(field)
	if !ok || f.Kind != Select {
		return fmt.Errorf("select %q: %w", field, ErrUnknownField)
	}
	if !slices.Contains(f.Options, option) {
		return fmt.Errorf("select %q = %q: %w", field, option, ErrUnknownOption)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[field] = option
	p.logger.Debug("Filter changed", "field", field, "value", option)
	return nil
}

// SetChecked sets a checkbox field.
func (p *Panel) SetChecked(field string, checked bool) error {
	f, ok := lookup(field)
	if !ok || f.Kind != Checkbox {
		return fmt.Errorf("checkbox %q: %w", field, ErrUnknownField)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[field] = strconv.FormatBool(checked)
	p.logger.Debug("Filter changed", "field", field, "value", checked)
	return nil
}

// Selections returns a copy of the current values.
func (p *Panel) Selections() Selections {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.values)
}

// Paragraph texts of the informational body.
var paragraphs = []string{
	"Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris.",
	"Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur. Excepteur sint occaecat cupidatat non proident, sunt in culpa qui officia deserunt mollit anim id est laborum.",
	"Sed ut perspiciatis unde omnis iste natus error sit voluptatem accusantium doloremque laudantium, totam rem aperiam, eaque ipsa quae ab illo inventore veritatis et quasi architecto beatae vitae dicta sunt explicabo.",
	"Nemo enim ipsam voluptatem quia voluptas sit aspernatur aut odit aut fugit, sed quia consequuntur magni dolores eos qui ratione voluptatem sequi nesciunt.",
	"At vero eos et accusamus et iusto odio dignissimos ducimus qui blanditiis praesentium voluptatum deleniti atque corrupti quos dolores et quas molestias excepturi sint occaecati cupiditate non provident.",
	"Similique sunt in culpa qui officia deserunt mollitia animi, id est laborum et dolorum fuga. Et harum quidem rerum facilis est et expedita distinctio. Nam libero tempore, cum soluta nobis est eligendi optio cumque nihil impedit quo minus.",
}

// Link is an anchor in the footer.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Footer is the attribution block.
type Footer struct {
	Copyright string `json:"copyright"`
	BuiltWith string `json:"builtWith"`
	Creator   Link   `json:"creator"`
}

// View is everything the page needs to draw the panel.
type View struct {
	Title       string     `json:"title"`
	CloseLabel  string     `json:"closeLabel"`
	CloseGlyph  string     `json:"closeGlyph"`
	CloseInline bool       `json:"closeInline"`
	Fields      []Field    `json:"fields"`
	Selections  Selections `json:"selections"`
	Paragraphs  []string   `json:"paragraphs"`
	Footer      Footer     `json:"footer"`
}

// View renders the panel. On narrow viewports the close button is left to
// the map-side dashboard toggle.
func (p *Panel) View(mobile bool, now time.Time) View {
	return View{
		Title:       "My iNat Map",
		CloseLabel:  "Close Dashboard",
		CloseGlyph:  "✕",
		CloseInline: !mobile,
		Fields:      Fields(),
		Selections:  p.Selections(),
		Paragraphs:  slices.Clone(paragraphs),
		Footer: Footer{
			Copyright: fmt.Sprintf("© %d My iNat Map.", now.Year()),
			BuiltWith: "Built with Go, MapLibre GL JS & OpenStreetMap",
			Creator:   Link{Text: "Krystelle Denis", Href: "https://dev.krystelledenis.com"},
		},
	}
}
