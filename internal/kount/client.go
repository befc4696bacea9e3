package kount

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
)

const (
	defaultRequestTimeout    = 15 * time.Second
	maxOrderResponseBytes    = 4 << 20
	ordersPath               = "/orders"
	queryRiskInquiry         = "riskInquiry"
	queryExcludeDevice       = "excludeDevice"
	headerAuthorization      = "Authorization"
	headerContentType        = "Content-Type"
	contentTypeJSON          = "application/json"
	bearerAuthorizationValue = "Bearer "
)

// TokenSource supplies bearer tokens and discards rejected ones.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Client submits orders to the Commerce v2 orders endpoint.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for order submissions.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestTimeout bounds each submission attempt.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient constructs a Client for the API rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.New("kount: api base url is invalid")
	}
	if tokens == nil {
		return nil, errors.New("kount: token source is required")
	}
	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  zap.NewNop(),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// OrdersURL builds the submission URL. riskInquiry is always present so an explicit false reaches
// the provider; excludeDevice is only sent when true.
func (c *Client) OrdersURL(opts domain.EvaluateOptions) string {
	query := url.Values{}
	query.Set(queryRiskInquiry, strconv.FormatBool(opts.RiskInquiryEnabled()))
	if opts.ExcludeDevice {
		query.Set(queryExcludeDevice, "true")
	}
	return c.baseURL + ordersPath + "?" + query.Encode()
}

// Submit posts req once. A 401 invalidates the cached token and triggers exactly one retry with a
// fresh token; whatever the retry returns is final. Token failures surface as
// *domain.AuthenticationError and transport failures as *domain.APIError.
func (c *Client) Submit(ctx context.Context, req OrderRequest, opts domain.EvaluateOptions) (RawResponse, error) {
	body, err := EncodeOrderRequest(req)
	if err != nil {
		return RawResponse{}, &domain.APIError{Message: "encode order request", Err: err}
	}
	endpoint := c.OrdersURL(opts)

	token, err := c.tokens.BearerToken(ctx)
	if err != nil {
		return RawResponse{}, err
	}
	resp, err := c.post(ctx, endpoint, token, body)
	if err != nil {
		return RawResponse{}, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	c.logger.Info("kount order submission unauthorized; refreshing token",
		zap.String("merchant_order_id", req.MerchantOrderID))
	if err := c.tokens.Invalidate(ctx); err != nil {
		c.logger.Warn("kount token invalidation failed", zap.Error(err))
	}
	token, err = c.tokens.BearerToken(ctx)
	if err != nil {
		return RawResponse{}, err
	}
	return c.post(ctx, endpoint, token, body)
}

func (c *Client) post(ctx context.Context, endpoint, token string, body []byte) (RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return RawResponse{}, &domain.APIError{Message: "build order request", Err: err}
	}
	req.Header.Set(headerAuthorization, bearerAuthorizationValue+token)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return RawResponse{}, &domain.APIError{Message: "order request failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxOrderResponseBytes))
	if err != nil {
		return RawResponse{}, &domain.APIError{StatusCode: resp.StatusCode, Message: "read order response", Err: err}
	}

	c.logger.Debug("kount order submitted",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
	)
	return RawResponse{StatusCode: resp.StatusCode, Body: payload, Header: resp.Header.Clone()}, nil
}
