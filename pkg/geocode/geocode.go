// Package geocode turns free-text place queries into map results using a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"inatmap/pkg/config"
	"inatmap/pkg/request"
)

const (
	maxQueryLen = 100
	minQueryLen = 2
)

// Result is one geocoder feature shaped the way the search control expects it.
// Its geometry is a point at the feature's centre.
type Result struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Geometry   *geojson.Geometry  `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
	PlaceName  string             `json:"place_name"`
	PlaceType  []string           `json:"place_type"`
	Text       string             `json:"text"`
	Center     orb.Point          `json:"center"`
}

// FeatureCollection is the list of results handed back to the search control.
type FeatureCollection struct {
	Type     string   `json:"type"`
	Features []Result `json:"features"`
}

// Empty returns a collection with no features.
func Empty() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Result{}}
}

// Len returns the number of features.
func (fc FeatureCollection) Len() int {
	return len(fc.Features)
}

// Find returns the feature with id.
func (fc FeatureCollection) Find(id string) (Result, bool) {
	for _, r := range fc.Features {
		if r.ID == id {
			return r, true
		}
	}
	return Result{}, false
}

var unsafeChars = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")

// Sanitize trims q, strips markup-significant characters and caps it at 100 characters.
func Sanitize(q string) string {
	s := unsafeChars.Replace(strings.TrimSpace(q))
	if utf8.RuneCountInString(s) > maxQueryLen {
		s = string([]rune(s)[:maxQueryLen])
	}
	return s
}

// Forwarder resolves a query to results. Implementations never fail; they
// return an empty collection instead.
type Forwarder interface {
	Forward(ctx context.Context, query string) FeatureCollection
}

// Client queries the search endpoint through the shared request client.
type Client struct {
	request   *request.Client
	endpoint  string
	userAgent string
	email     string
	limit     int
	cache     bool
	provider  string
	logger    *slog.Logger
}

// NewClient creates a geocoding client.
func NewClient(r *request.Client, cfg config.GeocoderConfig) *Client {
	provider := "geocoder"
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		provider = strings.ToLower(u.Host)
	}
	return &Client{
		request:   r,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		provider:  provider,
		userAgent: cfg.UserAgent,
		email:     cfg.Email,
		limit:     cfg.Limit,
		cache:     cfg.CacheTTL > 0,
		logger:    slog.With("component", "geocode"),
	}
}

// Provider is the tracker key of the search endpoint: its lower-cased host.
func (c *Client) Provider() string {
	return c.provider
}

// Forward searches for query. Short queries short-circuit without a request;
// transport or decoding failures are logged and yield an empty collection.
func (c *Client) Forward(ctx context.Context, query string) FeatureCollection {
	q := Sanitize(query)
	if utf8.RuneCountInString(q) < minQueryLen {
		return Empty()
	}

	u := c.searchURL(q)
	headers := map[string]string{}
	if c.userAgent != "" {
		headers["User-Agent"] = c.userAgent
	}
	key := ""
	if c.cache {
		key = "geocode:" + u
	}

	body, err := c.request.GetWithHeaders(ctx, u, headers, key)
	if err != nil {
		c.logger.Error("Failed to forwardGeocode", "query", q, "error", err)
		return Empty()
	}

	fc, err := Decode(body)
	if err != nil {
		c.logger.Error("Failed to forwardGeocode", "query", q, "error", err)
		return Empty()
	}
	if fc.Len() == 0 {
		c.request.Tracker().TrackAPIZero(c.provider)
	}
	c.logger.Debug("Geocode results", "query", q, "count", fc.Len())
	return fc
}

func (c *Client) searchURL(q string) string {
	v := url.Values{}
	v.Set("q", q)
	v.Set("format", "geojson")
	v.Set("polygon_geojson", "1")
	v.Set("addressdetails", "1")
	if c.limit > 0 {
		v.Set("limit", strconv.Itoa(c.limit))
	}
	if c.email != "" {
		v.Set("email", c.email)
	}
	return c.endpoint + "/search?" + v.Encode()
}

// Decode parses a GeoJSON FeatureCollection from the search endpoint.
func Decode(body []byte) (FeatureCollection, error) {
	raw, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return Empty(), fmt.Errorf("decode geojson: %w", err)
	}

	fc := Empty()
	for _, f := range raw.Features {
		r, ok := toResult(f)
		if !ok {
			continue
		}
		fc.Features = append(fc.Features, r)
	}
	return fc, nil
}

func toResult(f *geojson.Feature) (Result, bool) {
	var b orb.Bound
	switch {
	case len(f.BBox) >= 4:
		b = f.BBox.Bound()
	case f.Geometry != nil:
		b = f.Geometry.Bound()
	default:
		return Result{}, false
	}
	center := Centre(b)

	id := propertyID(f.Properties["place_id"])
	if id == "" {
		id = uuid.NewString()
	}
	name := f.Properties.MustString("display_name", "")

	return Result{
		Type:       "Feature",
		ID:         id,
		Geometry:   geojson.NewGeometry(center),
		Properties: f.Properties,
		PlaceName:  name,
		PlaceType:  []string{"place"},
		Text:       name,
		Center:     center,
	}, true
}

// Centre is the midpoint of b.
func Centre(b orb.Bound) orb.Point {
	return orb.Point{
		b.Min[0] + (b.Max[0]-b.Min[0])/2,
		b.Min[1] + (b.Max[1]-b.Min[1])/2,
	}
}

func propertyID(v any) string {
	switch id := v.(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
