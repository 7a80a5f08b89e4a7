package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/breakwatch/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// GoogleOptions configures the Google geocoder.
type GoogleOptions struct {
	APIKey string
	// RegionHint is appended to the query, e.g. "Toronto, ON".
	RegionHint string
	// RateLimit is requests per second. Default: 10.
	RateLimit  float64
	HTTPClient *http.Client
	Retry      resilience.RetryConfig
}

// Google geocodes via the Google Geocoding API.
type Google struct {
	apiKey     string
	regionHint string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewGoogle creates a Google geocoder.
func NewGoogle(opts GoogleOptions) (*Google, error) {
	if opts.APIKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &Google{
		apiKey:     opts.APIKey,
		regionHint: strings.TrimSpace(opts.RegionHint),
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit))),
		retry:      opts.Retry,
	}, nil
}

// Geocode implements Geocoder.
func (g *Google) Geocode(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	query := text
	if g.regionHint != "" {
		query += ", " + g.regionHint
	}

	return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*Result, error) {
		return g.geocodeOnce(ctx, query)
	})
}

func (g *Google) geocodeOnce(ctx context.Context, query string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address": {query},
		"key":     {g.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: google request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: google returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(
			eris.Errorf("geocode: google status %s", googleResp.Status), http.StatusTooManyRequests)
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", googleResp.Status, googleResp.ErrorMessage)
	}
	if len(googleResp.Results) == 0 {
		return nil, nil
	}

	result := googleResp.Results[0]
	conf := locationTypeConfidence(result.Geometry.LocationType)
	zap.L().Debug("geocode: google match",
		zap.String("query", query),
		zap.String("location_type", result.Geometry.LocationType),
	)
	return &Result{
		Latitude:   result.Geometry.Location.Lat,
		Longitude:  result.Geometry.Location.Lng,
		Provider:   "google",
		Confidence: &conf,
		Address:    result.FormattedAddress,
	}, nil
}

// locationTypeConfidence maps Google's location_type to a 0..1 confidence.
func locationTypeConfidence(locType string) float64 {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return 1.0
	case "RANGE_INTERPOLATED":
		return 0.8
	case "GEOMETRIC_CENTER":
		return 0.6
	default:
		return 0.4
	}
}
