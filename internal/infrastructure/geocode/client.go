package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rentpulse/internal/config"
)

// Client reverse-geocodes coordinates into locality text.
type Client interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (Place, error)
}

type Place struct {
	Neighbourhood string
	Suburb        string
	City          string
}

// DisplayArea picks the most specific non-empty locality name.
func (p Place) DisplayArea() string {
	for _, s := range []string{p.Neighbourhood, p.Suburb, p.City} {
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var ErrNotConfigured = errors.New("geocoder not configured")

type httpClient struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.GeocoderConfig) Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type reverseResponse struct {
	Address struct {
		Neighbourhood string `json:"neighbourhood"`
		Suburb        string `json:"suburb"`
		City          string `json:"city"`
		Town          string `json:"town"`
	} `json:"address"`
}

func (c *httpClient) ReverseGeocode(ctx context.Context, lat, lng float64) (Place, error) {
	if c == nil {
		return Place{}, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	q.Set("format", "jsonv2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return Place{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Place{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Place{}, fmt.Errorf("geocoder status %d", resp.StatusCode)
	}

	var rr reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return Place{}, fmt.Errorf("decode geocoder response: %w", err)
	}

	city := rr.Address.City
	if strings.TrimSpace(city) == "" {
		city = rr.Address.Town
	}
	return Place{
		Neighbourhood: strings.TrimSpace(rr.Address.Neighbourhood),
		Suburb:        strings.TrimSpace(rr.Address.Suburb),
		City:          strings.TrimSpace(city),
	}, nil
}
