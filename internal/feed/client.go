package feed

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies the service to upstream feeds.
const DefaultUserAgent = "cap-alert-ingest/1.0"

// maxBodySize bounds any single upstream response.
const maxBodySize = 64 << 20

// ClientOptions configures a Client.
type ClientOptions struct {
	Timeout   time.Duration
	RetryMax  int
	UserAgent string
	// RootCAs replaces the system trust store when set.
	RootCAs *x509.CertPool
	// RetryWaitMin and RetryWaitMax bound the retry backoff. Zero values use
	// 200ms and 2s.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client performs upstream HTTP requests with retries, a per-request timeout,
// and an optional rate limit on secondary requests.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// Response is the body and cache validator of a conditional GET.
type Response struct {
	NotModified bool
	Body        []byte
	ETag        string
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	rC := retryablehttp.NewClient()
	rC.Logger = nil
	rC.RetryMax = opts.RetryMax
	rC.RetryWaitMin = opts.RetryWaitMin
	if rC.RetryWaitMin == 0 {
		rC.RetryWaitMin = 200 * time.Millisecond
	}
	rC.RetryWaitMax = opts.RetryWaitMax
	if rC.RetryWaitMax == 0 {
		rC.RetryWaitMax = 2 * time.Second
	}
	if opts.RootCAs != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs, MinVersion: tls.VersionTLS12}
		rC.HTTPClient.Transport = tr
	}

	hc := rC.StandardClient()
	hc.Timeout = opts.Timeout

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{http: hc, userAgent: ua}
}

// WithRateLimit returns a copy of c whose secondary requests are limited to
// perSecond. A non-positive rate disables limiting.
func (c *Client) WithRateLimit(perSecond float64) *Client {
	cp := *c
	cp.limiter = nil
	if perSecond > 0 {
		burst := max(int(perSecond), 1)
		cp.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &cp
}

// GetConditional fetches url, sending validator as If-None-Match.
func (c *Client) GetConditional(ctx context.Context, url, validator string) (Response, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return Response{}, err
	}
	if validator != "" {
		req.Header.Set("If-None-Match", validator)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return Response{NotModified: true}, nil
	}
	body, err := readBody(url, resp)
	if err != nil {
		return Response{}, err
	}
	return Response{Body: body, ETag: resp.Header.Get("ETag")}, nil
}

// Get fetches url without a validator. It is used for secondary per-entry
// requests and waits for the rate limiter.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
	}
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	return readBody(url, resp)
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// StatusError reports a non-200 upstream response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

func readBody(url string, resp *http.Response) ([]byte, error) {
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("read %s: %w", url, errTooLarge)
	}
	return body, nil
}

var errTooLarge = errors.New("response exceeds size limit")

// LoadCertPool builds a trust store from the system roots plus the PEM
// certificates in pem.
func LoadCertPool(pem []byte) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("no certificates found in PEM data")
	}
	return pool, nil
}
