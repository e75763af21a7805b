// Package weather fetches the current temperature and UV index for the
// sun-protection advisory shown next to the analyzer.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// UVThreshold is the UV index above which sunscreen is advised.
const UVThreshold = 3.0

// Advice strings.
const (
	AdviceSPF  = "SPF needed"
	AdviceSafe = "Safe"
)

const defaultTTL = 10 * time.Minute

// Client queries an Open-Meteo compatible forecast endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	cache   *gocache.Cache
	log     logger.Logger
}

// New creates a Client. An empty baseURL yields a client that always
// returns ErrDisabled.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		ttl:     defaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("weather")
	}
	c.cache = gocache.New(c.ttl, 2*c.ttl)
	return c
}

type forecast struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		UVIndex     float64 `json:"uv_index"`
	} `json:"current"`
}

// Advise returns the advisory for a location. Coordinates are rounded to
// two decimals for caching.
func (c *Client) Advise(ctx context.Context, lat, lon float64) (types.Advisory, error) {
	if c.baseURL == "" {
		return types.Advisory{}, ErrDisabled
	}
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return types.Advisory{}, fmt.Errorf("%w: lat=%g lon=%g", ErrInvalidCoordinates, lat, lon)
	}

	key := fmt.Sprintf("%.2f,%.2f", lat, lon)
	if v, ok := c.cache.Get(key); ok {
		metrics.RecordWeatherLookup("cache")
		return v.(types.Advisory), nil
	}

	f, err := c.fetch(ctx, lat, lon)
	if err != nil {
		metrics.RecordWeatherLookup("error")
		c.log.Warn(ctx, "forecast lookup failed", logger.String("location", key), logger.Error(err))
		return types.Advisory{}, err
	}
	metrics.RecordWeatherLookup("fetch")

	adv := Advice(f.Current.Temperature, f.Current.UVIndex)
	c.cache.Set(key, adv, gocache.DefaultExpiration)
	return adv, nil
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (forecast, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return forecast{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", "temperature_2m,uv_index")
	q.Set("timezone", "auto")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return forecast{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return forecast{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return forecast{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var f forecast
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return forecast{}, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	return f, nil
}

// Advice builds the advisory for a temperature and UV index.
func Advice(tempC, uv float64) types.Advisory {
	a := types.Advisory{TemperatureC: tempC, UVIndex: uv, Advice: AdviceSafe}
	if uv > UVThreshold {
		a.Advice, a.NeedsSPF = AdviceSPF, true
	}
	return a
}
