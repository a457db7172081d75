package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smartsave/gateway/internal/domain"
)

// maxResponseBytes caps how much of a bridge response is read
const maxResponseBytes = 10 << 20

// ClientConfig holds transport settings for talking to the bridge
type ClientConfig struct {
	BaseURL            string
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	MinRequestInterval time.Duration // minimum spacing between requests; zero disables pacing
}

// Client handles HTTP communication with the supervised bridge process
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a new bridge client
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinRequestInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
			Transport: transport,
		},
		baseURL:     cfg.BaseURL,
		rateLimiter: limiter,
		logger:      logger.With(zap.String("component", "bridge_client")),
	}
}

// Search queries the bridge for products matching term
func (c *Client) Search(ctx context.Context, term, region string, limit int) (*domain.BridgeEnvelope, error) {
	params := url.Values{}
	params.Set("q", term)
	params.Set("postcode", region)
	params.Set("limit", strconv.Itoa(limit))

	return c.get(ctx, "/search", params)
}

// NewArrivals lists recently added products for region
func (c *Client) NewArrivals(ctx context.Context, region string, limit int) (*domain.BridgeEnvelope, error) {
	params := url.Values{}
	params.Set("postcode", region)
	params.Set("limit", strconv.Itoa(limit))

	return c.get(ctx, "/new", params)
}

// ProductDetail retrieves a single product by its external id
func (c *Client) ProductDetail(ctx context.Context, id, region string) (*domain.BridgeEnvelope, error) {
	params := url.Values{}
	params.Set("postcode", region)

	return c.get(ctx, "/product/"+url.PathEscape(id), params)
}

// get executes a paced GET request and decodes the response envelope
func (c *Client) get(ctx context.Context, path string, params url.Values) (*domain.BridgeEnvelope, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrBridgeRequestFailed, err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "SmartSave/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBridgeRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrBridgeRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrBridgeRequestFailed, resp.StatusCode)
	}

	var envelope domain.BridgeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Debug("undecodable bridge response", zap.String("path", path), zap.ByteString("body", truncate(body, 500)))
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	return &envelope, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
