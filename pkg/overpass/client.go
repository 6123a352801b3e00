// Package overpass fetches boundary relations from an Overpass API endpoint
// and converts the JSON response into paulmach/osm objects.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/osm"

	osmparser "city_limits/pkg/osm"
)

// DefaultURL is the public Overpass interpreter.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// areaIDOffset converts an Overpass area id derived from a relation back to
// the relation id.
const areaIDOffset = 3_600_000_000

const maxResponseBytes = 256 << 20

var (
	// ErrCityNotFound is returned when no area matches the city rules.
	ErrCityNotFound = errors.New("city boundary not found")
	// ErrInvalidCity is returned for input not in "CITY, STATE" form.
	ErrInvalidCity = errors.New(`city must be in the format "CITY, STATE"`)
)

// Client queries an Overpass interpreter.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for baseURL. Empty uses DefaultURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// RelationQuery returns the query for a relation and everything it
// references.
func RelationQuery(id osm.RelationID) string {
	return fmt.Sprintf("[out:json];(relation(%d);>;);out;", id)
}

// CityAreaQuery returns the query for areas named city in state, plus the
// areas containing a place node of that name.
func CityAreaQuery(city, state string) string {
	return fmt.Sprintf(`[out:json];area[name=%q]["is_in:state_code"=%q];foreach(out;);node[name=%q]["is_in"~%q];foreach(out;is_in;out;);`,
		city, state, city, state)
}

// Query runs an Overpass QL query and decodes the response.
func (c *Client) Query(ctx context.Context, query string) (*Response, error) {
	u := c.BaseURL + "?data=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("overpass status %d: %s", resp.StatusCode, body)
	}

	out, err := Decode(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	log.Printf("Overpass returned %d elements in %s", len(out.Elements), time.Since(start).Round(time.Millisecond))
	return out, nil
}

// FetchRelation downloads a relation with its ways and nodes and extracts
// the stitch input. Roles, if given, restrict the member ways.
func (c *Client) FetchRelation(ctx context.Context, id osm.RelationID, roles ...string) (*osmparser.ParseResult, error) {
	resp, err := c.Query(ctx, RelationQuery(id))
	if err != nil {
		return nil, fmt.Errorf("fetch relation %d: %w", id, err)
	}
	return osmparser.FromOSM(resp.OSM(), osmparser.ParseOptions{RelationID: id, Roles: roles})
}

// FindCityRelation resolves "City", "ST" to the relation id of the city's
// administrative boundary.
func (c *Client) FindCityRelation(ctx context.Context, city, state string) (osm.RelationID, error) {
	resp, err := c.Query(ctx, CityAreaQuery(city, state))
	if err != nil {
		return 0, fmt.Errorf("find city %s, %s: %w", city, state, err)
	}
	id, ok := pickCityArea(resp.Elements)
	if !ok {
		return 0, fmt.Errorf("%s, %s: %w", city, state, ErrCityNotFound)
	}
	return id, nil
}

// pickCityArea returns the relation behind the first area that is either a
// level 8 admin boundary without a border_type, or has border_type=city.
func pickCityArea(elements []Element) (osm.RelationID, bool) {
	for _, e := range elements {
		if e.Type != "area" || e.Tags == nil {
			continue
		}
		borderType, hasBorderType := e.Tags["border_type"]
		if (e.Tags["admin_level"] == "8" && !hasBorderType) || borderType == "city" {
			if e.ID <= areaIDOffset {
				continue
			}
			return osm.RelationID(e.ID - areaIDOffset), true
		}
	}
	return 0, false
}

// Decode reads an Overpass JSON document.
func Decode(r io.Reader) (*Response, error) {
	var out Response
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode overpass json: %w", err)
	}
	return &out, nil
}
