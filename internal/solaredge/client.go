package solaredge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ANIKETSHETTY47/solar-inverter-monitor/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	opInventory = "fetch inventory"
	opSamples   = "fetch samples"

	maxErrorBody = 512
)

// Client is a read-only client for the power-monitoring API. Each call is
// independent; there is no retry or caching.
type Client struct {
	baseURL string
	siteID  string
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the default client. Its timeout bounds every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func NewClient(baseURL, siteID, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: baseURL,
		siteID:  siteID,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type inventoryResponse struct {
	Reporters struct {
		Count int                   `json:"count"`
		List  []domain.DeviceRecord `json:"list"`
	} `json:"reporters"`
}

type samplesResponse struct {
	Data *struct {
		Count       int                      `json:"count"`
		Telemetries []domain.TelemetrySample `json:"telemetries"`
	} `json:"data"`
}

// FetchInventory returns the site's device list.
func (c *Client) FetchInventory(ctx context.Context) ([]domain.DeviceRecord, error) {
	path := fmt.Sprintf("/equipment/%s/list", url.PathEscape(c.siteID))

	var out inventoryResponse
	if err := c.getJSON(ctx, path, url.Values{}, &out); err != nil {
		return nil, c.upstreamError(opInventory, "", err)
	}
	return out.Reporters.List, nil
}

// FetchSamples returns the device's samples for the window in API order.
// A body without samples yields an empty slice, not an error.
func (c *Client) FetchSamples(ctx context.Context, serial domain.InverterID, w domain.Window) ([]domain.TelemetrySample, error) {
	if w.End.Before(w.Start) {
		return nil, c.upstreamError(opSamples, serial, errors.New("window end before start"))
	}
	path := fmt.Sprintf("/equipment/%s/%s/data", url.PathEscape(c.siteID), url.PathEscape(string(serial)))
	params := url.Values{}
	params.Set("startTime", w.StartParam())
	params.Set("endTime", w.EndParam())

	var out samplesResponse
	if err := c.getJSON(ctx, path, params, &out); err != nil {
		return nil, c.upstreamError(opSamples, serial, err)
	}
	if out.Data == nil || len(out.Data.Telemetries) == 0 {
		return []domain.TelemetrySample{}, nil
	}
	return out.Data.Telemetries, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status code %d", e.code)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.code, e.body)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", redact(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) upstreamError(op string, serial domain.InverterID, err error) error {
	ue := &domain.UpstreamError{Op: op, SiteID: c.siteID, Serial: serial, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		ue.StatusCode = se.code
	}
	return ue
}

// redact drops the query string (it carries the API key) from transport errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			ue.URL = u.String()
		}
	}
	return err
}
