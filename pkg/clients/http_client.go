package clients

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/simpro-tap/pkg/errors"
	"github.com/ajitpratap0/simpro-tap/pkg/metrics"
)

const maxErrorBody = 512

// HTTPClient issues gated GET requests against one simPRO company and decodes
// JSON responses.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	gate       *RequestGate
	baseURL    *url.URL
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// CompanyURL is {base}/api/v1.0/companies/{id}; request paths resolve below it
	CompanyURL  string
	AccessToken string
	UserAgent   string

	RequestTimeout      time.Duration
	MaxIdleConnsPerHost int
	EnableHTTP2         bool

	// Transport overrides the network transport, mainly for tests
	Transport http.RoundTripper
}

// NewHTTPClient creates a client whose every request passes through gate
func NewHTTPClient(config *HTTPConfig, gate *RequestGate, logger *zap.Logger) (*HTTPClient, error) {
	if config == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "http config is required")
	}
	if gate == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "request gate is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base, err := url.Parse(strings.TrimRight(config.CompanyURL, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid company URL")
	}

	transport := config.Transport
	if transport == nil {
		t := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
		if config.EnableHTTP2 {
			if err := http2.ConfigureTransport(t); err != nil {
				logger.Warn("failed to configure HTTP/2", zap.Error(err))
			}
		}
		transport = t
	}

	return &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
		httpClient: &http.Client{
			Transport: NewBearerTransport(config.AccessToken, transport),
			Timeout:   config.RequestTimeout,
		},
		gate:    gate,
		baseURL: base,
	}, nil
}

// ResolveURL resolves a company-relative path such as "jobs/12?display=all"
// and merges query into it.
func (c *HTTPClient) ResolveURL(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid request path").WithDetail("path", path)
	}
	u := c.baseURL.ResolveReference(ref)

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// GetJSON performs a gated GET and decodes the body into out. stream labels
// metrics and logs. Numbers decode as json.Number so identifiers keep their
// literal form.
func (c *HTTPClient) GetJSON(ctx context.Context, stream, path string, query url.Values, out interface{}) error {
	u, err := c.ResolveURL(path, query)
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer("simpro-tap/clients").Start(ctx, "GET "+stream)
	defer span.End()
	span.SetAttributes(attribute.String("http.url", u.String()), attribute.String("simpro.stream", stream))

	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "request gate closed")
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(stream, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("url", u.String())
	}
	defer resp.Body.Close()

	metrics.ObserveRequest(stream, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return statusError(resp, u)
	}

	decoder := gojson.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode response").
			WithDetail("url", u.String())
	}

	c.logger.Debug("request completed",
		zap.String("stream", stream),
		zap.String("url", u.String()),
		zap.Duration("latency", time.Since(start)))
	return nil
}

// statusError maps a non-success response onto the error taxonomy
func statusError(resp *http.Response, u *url.URL) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	errType := errors.ErrorTypeHTTP
	switch {
	case resp.StatusCode == http.StatusNotFound:
		errType = errors.ErrorTypeNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	}

	return errors.Newf(errType, "GET %s returned %d", u.Path, resp.StatusCode).
		WithDetail("status", resp.StatusCode).
		WithDetail("url", u.String()).
		WithDetail("body", strings.TrimSpace(string(body)))
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
