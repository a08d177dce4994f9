package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"citydir/internal/codec"
	"citydir/internal/model"
)

// Client is a thin HTTP client for the directory API.
type Client struct {
	baseURL string
	http    *http.Client
	cbor    bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCBORTelemetry makes UpdateTelemetry send CBOR bodies.
func WithCBORTelemetry() ClientOption {
	return func(c *Client) { c.cbor = true }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(NormalizeBaseURL(baseURL), "/"),
		http: &http.Client{
			// Command relays may wait for the server's relay timeout.
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeBaseURL adds an http:// scheme to bare host:port addresses.
func NormalizeBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

// Register registers a city and returns the stored metadata.
func (c *Client) Register(ctx context.Context, meta model.CityMetadata) (model.CityMetadata, error) {
	var resp model.CityMetadata
	if err := c.sendJSON(ctx, http.MethodPost, "/api/city/register", meta, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// UpdateTelemetry pushes the latest telemetry for a city id.
func (c *Client) UpdateTelemetry(ctx context.Context, id string, t model.Telemetry) error {
	path := "/api/city/info/" + url.PathEscape(id)
	if !c.cbor {
		return c.sendJSON(ctx, http.MethodPut, path, t, nil)
	}
	payload, err := codec.Marshal(t)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, codec.ContentType, bytes.NewReader(payload), nil)
}

// Info fetches the latest telemetry for a city by name.
func (c *Client) Info(ctx context.Context, name string) (model.Telemetry, error) {
	var resp model.Telemetry
	err := c.do(ctx, http.MethodGet, "/api/city/info/"+url.PathEscape(name), "", nil, &resp)
	return resp, err
}

// List fetches all registered cities.
func (c *Client) List(ctx context.Context) ([]model.CityMetadata, error) {
	var resp []model.CityMetadata
	err := c.do(ctx, http.MethodGet, "/api/cities/list", "", nil, &resp)
	return resp, err
}

// Stats fetches directory counts.
func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	var resp StatsResponse
	err := c.do(ctx, http.MethodGet, "/api/cities/stats", "", nil, &resp)
	return resp, err
}

// Command relays command to the named city and returns the relay result.
func (c *Client) Command(ctx context.Context, name, command string) (string, error) {
	var resp CommandResponse
	path := "/api/city/command/" + url.PathEscape(name)
	if err := c.sendJSON(ctx, http.MethodPost, path, CommandRequest{Name: command}, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// Hello relays the "hello" command to the named city.
func (c *Client) Hello(ctx context.Context, name string) (string, error) {
	var resp CommandResponse
	if err := c.do(ctx, http.MethodGet, "/api/city/hello/"+url.PathEscape(name), "", nil, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// Upload sends a screenshot for a city id.
func (c *Client) Upload(ctx context.Context, id string, body io.Reader) (UploadResponse, error) {
	var resp UploadResponse
	err := c.do(ctx, http.MethodPost, "/api/city/upload/"+url.PathEscape(id), "image/png", body, &resp)
	return resp, err
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		serr := &StatusError{
			StatusCode: res.StatusCode,
			Status:     res.Status,
			Body:       strings.TrimSpace(string(data)),
		}
		var eresp ErrorResponse
		if json.Unmarshal(data, &eresp) == nil {
			serr.Code = eresp.Code
		}
		return serr
	}

	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}

// IsConflict reports whether err is a 409 from the directory.
func IsConflict(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.IsConflict()
}

// ErrorCode returns the directory error code carried by err, if any.
func ErrorCode(err error) string {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ""
}
