package rtview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// DefaultTargetURL is where an RTView DataServer listens out of the box.
const DefaultTargetURL = "http://localhost:3275"

// ErrUnexpectedStatus is returned when the DataServer answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected DataServer status")

// ClientConfig holds configuration for the DataServer HTTP client.
type ClientConfig struct {
	// TargetURL is the DataServer base URL, e.g. http://localhost:3275. The
	// servlet form http://localhost:3270/rtvpost is also accepted; its
	// trailing /rtvpost segment is treated as the data endpoint, not the root.
	TargetURL string
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
}

// CacheClient is the DataServer surface used by the Dispatcher.
type CacheClient interface {
	CreateDataCache(ctx context.Context, cacheName string, schema types.CacheSchema) error
	SendDataTable(ctx context.Context, cacheName string, record types.NormalizedRecord) error
}

// Client talks to an RTView DataServer over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// DataServer endpoints, relative to the base URL.
const (
	adminEndpoint = "rtvadmin"
	dataEndpoint  = "rtvpost"
)

// createRequest is the create_datacache body.
type createRequest struct {
	Properties map[string]string           `json:"properties"`
	Columns    []map[string]types.ColumnType `json:"columns"`
}

// sendRequest is the send_datatable body.
type sendRequest struct {
	Data []types.NormalizedRecord `json:"data"`
}

// NewClient creates a DataServer client.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	target := cfg.TargetURL
	if target == "" {
		target = DefaultTargetURL
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid DataServer target URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid DataServer target URL %q: scheme must be http or https", target)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if path.Base(u.Path) == dataEndpoint {
		u.Path = strings.TrimSuffix(u.Path, "/"+dataEndpoint)
	}
	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "RTViewClient").Logger(),
	}, nil
}

// CreateDataCache declares a cache and its columns on the DataServer.
func (c *Client) CreateDataCache(ctx context.Context, cacheName string, schema types.CacheSchema) error {
	body := createRequest{
		Properties: schema.Properties(),
		Columns:    schema.ColumnMetadata(),
	}
	return c.post(ctx, "/"+adminEndpoint+"/"+url.PathEscape(cacheName), body)
}

// SendDataTable posts one record to a cache.
func (c *Client) SendDataTable(ctx context.Context, cacheName string, record types.NormalizedRecord) error {
	body := sendRequest{Data: []types.NormalizedRecord{record.WireSafe()}}
	return c.post(ctx, "/"+dataEndpoint+"/"+url.PathEscape(cacheName), body)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("json.Marshal(%s): %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call DataServer %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d, body: %s", ErrUnexpectedStatus, path, resp.StatusCode, string(bodyBytes))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Trace().Str("path", path).Int("status", resp.StatusCode).Msg("DataServer call succeeded")
	return nil
}
