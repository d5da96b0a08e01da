// Package naver implements domain.Geocoder using the Naver Cloud Maps
// Geocoding API, which resolves Korean road and lot addresses far better
// than global providers.
package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/poolhopper/freeswim-etl/internal/domain"
)

// Client calls the Naver geocoding endpoint.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	baseURL      string
	logger       *slog.Logger
}

// NewClient creates a Naver geocoding client.
func NewClient(clientID, clientSecret string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      "https://naveropenapi.apigw.ntruss.com/map-geocode/v2/geocode",
		logger:       logger,
	}
}

// Geocode converts an address to WGS-84 coordinates. A response with no
// matches yields Found=false without an error.
func (c *Client) Geocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	params := url.Values{"query": {address}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-NCP-APIGW-API-KEY-ID", c.clientID)
	req.Header.Set("X-NCP-APIGW-API-KEY", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("naver API error: status %d: %s", resp.StatusCode, body)
	}

	var naverResp response
	if err := json.NewDecoder(resp.Body).Decode(&naverResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(naverResp.Addresses) == 0 {
		c.logger.Debug("no geocoding match", "address", address)
		return domain.GeocodingResult{}, nil
	}

	// Naver returns x=longitude, y=latitude as strings.
	first := naverResp.Addresses[0]
	lng, errX := strconv.ParseFloat(first.X, 64)
	lat, errY := strconv.ParseFloat(first.Y, 64)
	if errX != nil || errY != nil {
		return domain.GeocodingResult{}, fmt.Errorf("naver API returned non-numeric coordinates: x=%q y=%q", first.X, first.Y)
	}

	return domain.GeocodingResult{Lat: lat, Lng: lng, Found: true}, nil
}

// Naver API response types.

type response struct {
	Addresses []address `json:"addresses"`
}

type address struct {
	X string `json:"x"` // longitude
	Y string `json:"y"` // latitude
}
