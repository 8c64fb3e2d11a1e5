// Package airquality fetches nearest-station readings from IQAir AirVisual.
package airquality

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/canopy-aq/internal/geo"
)

const DefaultBaseURL = "https://api.airvisual.com/v2"

// maxBodySize bounds how much of a provider response is read.
const maxBodySize = 1 << 20

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.SugaredLogger
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Fetch returns the reading from the station nearest to coord, or nil when
// none is available. Provider and network failures are logged, never returned.
func (c *Client) Fetch(ctx context.Context, coord geo.Coordinate) *Reading {
	if c.apiKey == "" {
		c.log.Warnw("air quality API key not configured, skipping lookup")
		return nil
	}

	reading, err := c.fetch(ctx, coord)
	if err != nil {
		c.log.Warnw("air quality unavailable", "coord", coord.String(), "error", err)
		return nil
	}
	return reading
}

func (c *Client) fetch(ctx context.Context, coord geo.Coordinate) (*Reading, error) {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	v.Set("lon", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	v.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nearest_city?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// The URL carries the key; report only the underlying cause.
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if r.Status != "success" {
		return nil, fmt.Errorf("provider status %q", r.Status)
	}
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil, fmt.Errorf("provider returned no data")
	}

	reading, err := parseReading(r.Data)
	if err != nil {
		return nil, err
	}

	c.log.Infow("air quality reading",
		"city", reading.City,
		"aqi_us", reading.Current.Pollution.AQIUS,
		"category", reading.Category())
	return reading, nil
}
