package mapsurface

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"inatmap/pkg/engine"
	"inatmap/pkg/geocode"
	"inatmap/pkg/tiles"
)

// Glyphs and labels of the map-side dashboard button.
const (
	glyphPanelVisible = "◀"
	glyphPanelHidden  = "▶"
	labelToggle       = "Toggle Dashboard"
	labelHide         = "Hide Dashboard"
	labelShow         = "Show Dashboard"
)

const groupClass = "maplibregl-ctrl maplibregl-ctrl-group"

// buttonControl is a control group wrapping a single button.
type buttonControl struct {
	class     string
	glyph     string
	ariaLabel string

	container *html.Node
	button    *html.Node
}

func (c *buttonControl) OnAdd(*engine.Map) *html.Node {
	c.container = engine.Element(atom.Div, "class", groupClass)
	c.button = engine.Element(atom.Button, "type", "button", "class", c.class, "aria-label", c.ariaLabel)
	c.button.AppendChild(engine.Text(c.glyph))
	c.container.AppendChild(c.button)
	return c.container
}

func (c *buttonControl) OnRemove(*engine.Map) {
	engine.Detach(c.container)
}

func (c *buttonControl) set(glyph, label string) {
	c.glyph, c.ariaLabel = glyph, label
	if c.button == nil {
		return
	}
	engine.SetText(c.button, glyph)
	engine.SetAttr(c.button, "aria-label", label)
}

func newDashboardToggle() *buttonControl {
	return &buttonControl{class: "dashboard-toggle", glyph: glyphPanelVisible, ariaLabel: labelToggle}
}

func newStyleToggle(m tiles.Mode) *buttonControl {
	return &buttonControl{class: "style-toggle", glyph: m.Glyph(), ariaLabel: "Toggle map style"}
}

// geocoderControl is the search box with its suggestion list.
type geocoderControl struct {
	placeholder string
	minLength   int
	limit       int

	value   string
	focused bool
	results []geocode.Result

	container *html.Node
	input     *html.Node
	list      *html.Node
}

func (c *geocoderControl) OnAdd(*engine.Map) *html.Node {
	c.container = engine.Element(atom.Div, "class", "maplibregl-ctrl maplibregl-ctrl-geocoder")
	c.input = engine.Element(atom.Input,
		"type", "text",
		"class", "maplibregl-ctrl-geocoder--input",
		"placeholder", c.placeholder,
		"aria-label", c.placeholder,
		"data-min-length", strconv.Itoa(c.minLength),
		"data-limit", strconv.Itoa(c.limit),
	)
	c.list = engine.Element(atom.Ul, "class", "suggestions")
	c.container.AppendChild(c.input)
	c.container.AppendChild(c.list)
	c.sync()
	return c.container
}

func (c *geocoderControl) OnRemove(*engine.Map) {
	engine.Detach(c.container)
	c.results = nil
}

func (c *geocoderControl) setQuery(q string) {
	c.value = q
	c.focused = true
	c.sync()
}

func (c *geocoderControl) setResults(results []geocode.Result) {
	c.results = results
	c.sync()
}

func (c *geocoderControl) choose(r geocode.Result) {
	c.value = r.PlaceName
	c.results = nil
	c.focused = false
	c.sync()
}

func (c *geocoderControl) clear() {
	c.value = ""
	c.results = nil
	c.focused = false
	c.sync()
}

func (c *geocoderControl) sync() {
	if c.input == nil {
		return
	}
	engine.SetAttr(c.input, "value", c.value)
	engine.SetAttr(c.input, "data-focused", strconv.FormatBool(c.focused))

	for n := c.list.FirstChild; n != nil; {
		next := n.NextSibling
		c.list.RemoveChild(n)
		n = next
	}
	for _, r := range c.results {
		li := engine.Element(atom.Li, "data-id", r.ID)
		li.AppendChild(engine.Text(r.PlaceName))
		c.list.AppendChild(li)
	}
}

// geolocateControl asks the browser for the user's position.
type geolocateControl struct {
	highAccuracy bool
	track        bool
	buttonControl
}

func newGeolocate() *geolocateControl {
	return &geolocateControl{
		highAccuracy:  true,
		track:         true,
		buttonControl: buttonControl{class: "maplibregl-ctrl-geolocate", ariaLabel: "Find my location"},
	}
}

func (c *geolocateControl) OnAdd(m *engine.Map) *html.Node {
	n := c.buttonControl.OnAdd(m)
	engine.SetAttr(c.button, "data-enable-high-accuracy", strconv.FormatBool(c.highAccuracy))
	engine.SetAttr(c.button, "data-track-user-location", strconv.FormatBool(c.track))
	return n
}

// navigationControl carries zoom buttons and the compass.
type navigationControl struct {
	container *html.Node
}

func (c *navigationControl) OnAdd(*engine.Map) *html.Node {
	c.container = engine.Element(atom.Div, "class", groupClass)
	for _, b := range []struct{ class, label string }{
		{"maplibregl-ctrl-zoom-in", "Zoom in"},
		{"maplibregl-ctrl-zoom-out", "Zoom out"},
		{"maplibregl-ctrl-compass", "Reset bearing to north"},
	} {
		c.container.AppendChild(engine.Element(atom.Button, "type", "button", "class", b.class, "aria-label", b.label))
	}
	return c.container
}

func (c *navigationControl) OnRemove(*engine.Map) {
	engine.Detach(c.container)
}

// scaleControl shows a metric scale bar no wider than maxWidth pixels.
type scaleControl struct {
	maxWidth  int
	container *html.Node

	label string
	width int
}

func (c *scaleControl) OnAdd(m *engine.Map) *html.Node {
	c.container = engine.Element(atom.Div,
		"class", "maplibregl-ctrl maplibregl-ctrl-scale",
		"data-unit", "metric",
		"data-max-width", strconv.Itoa(c.maxWidth),
	)
	c.update(m.Camera())
	return c.container
}

func (c *scaleControl) OnRemove(*engine.Map) {
	engine.Detach(c.container)
}

func (c *scaleControl) update(cam engine.Camera) {
	if c.container == nil {
		return
	}
	c.label, c.width = scaleFor(cam.Center.Lat(), cam.Zoom, c.maxWidth)
	engine.SetAttr(c.container, "style", fmt.Sprintf("width: %dpx;", c.width))
	engine.SetText(c.container, c.label)
}

const earthCircumference = 40075016.686 // metres at the equator

// scaleFor returns the scale bar label and its width in pixels for a 512px world tile.
func scaleFor(lat, zoom float64, maxWidth int) (string, int) {
	metresPerPixel := earthCircumference * math.Cos(lat*math.Pi/180) / (512 * math.Pow(2, zoom))
	maxMetres := metresPerPixel * float64(maxWidth)
	if maxMetres <= 0 {
		return "0 m", 0
	}

	unit, span := "m", maxMetres
	if maxMetres >= 1000 {
		unit, span = "km", maxMetres/1000
	}
	nice := roundNum(span)
	width := int(math.Round(float64(maxWidth) * nice / span))
	return strconv.FormatFloat(nice, 'f', -1, 64) + " " + unit, width
}

// roundNum rounds n down to 1, 2, 3 or 5 times a power of ten.
func roundNum(n float64) float64 {
	pow10 := math.Pow(10, math.Floor(math.Log10(n)))
	d := n / pow10
	switch {
	case d >= 10:
		d = 10
	case d >= 5:
		d = 5
	case d >= 3:
		d = 3
	case d >= 2:
		d = 2
	default:
		d = 1
	}
	return pow10 * d
}
