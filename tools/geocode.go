package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/flyercal/cache"
	"github.com/rs/zerolog"
)

const (
	// DefaultNominatimURL is the public OpenStreetMap geocoder.
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies the application to Nominatim, which
	// rejects anonymous clients.
	DefaultUserAgent = "flyercal"
)

// GeocoderConfig configures a Geocoder.
type GeocoderConfig struct {
	BaseURL      string
	CountryCodes string
	UserAgent    string
}

// Geocoder resolves free-text places to addresses through Nominatim.
// Lookups are cached under the "geocode" operation.
type Geocoder struct {
	cfg    GeocoderConfig
	http   *http.Client
	cache  *cache.Cache
	logger zerolog.Logger
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
}

// NewGeocoder creates a Geocoder. httpClient and c may be nil.
func NewGeocoder(cfg GeocoderConfig, httpClient *http.Client, c *cache.Cache, logger zerolog.Logger) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNominatimURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Geocoder{
		cfg:    cfg,
		http:   orDefaultClient(httpClient),
		cache:  c,
		logger: logger.With().Str("component", "geocoder").Logger(),
	}
}

// WhereIs returns the best matching address for location, or NotFound.
func (g *Geocoder) WhereIs(ctx context.Context, location string) (string, error) {
	out, _, err := g.cache.Do(ctx, "geocode", []string{location}, func(ctx context.Context) (string, error) {
		return g.lookup(ctx, location)
	})
	return out, err
}

func (g *Geocoder) lookup(ctx context.Context, location string) (string, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	if g.cfg.CountryCodes != "" {
		q.Set("countrycodes", g.cfg.CountryCodes)
	}
	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", Fatal("geocode", fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", Recoverable("geocode", fmt.Errorf("geocode request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Recoverable("geocode", fmt.Errorf("failed to read geocode response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError("geocode", resp.StatusCode, string(raw))
	}

	var places []nominatimPlace
	if err := json.Unmarshal(raw, &places); err != nil {
		return "", Recoverable("geocode", fmt.Errorf("failed to decode geocode response: %w", err))
	}
	if len(places) == 0 || places[0].DisplayName == "" {
		g.logger.Debug().Str("location", location).Msg("No geocode match")
		return NotFound, nil
	}
	return places[0].DisplayName, nil
}
