// Package signing obtains the per-page handshake signature from the signing endpoint.
package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redforks/wx-js-sdk/internal/platform/ratelimiter"
)

const (
	DefaultPath = "/api/wx/jsapi/sign-url"

	maxResponseBytes int64 = 64 << 10
)

var (
	ErrNetwork   = errors.New("signing request failed")
	ErrDecode    = errors.New("decode response")
	ErrThrottled = errors.New("signing request throttled")
)

// Result is one signing round trip's answer.
type Result struct {
	Sign      string
	Timestamp uint32
	NonceStr  string
}

type signResponse struct {
	Sign      *string `json:"sign"`
	Timestamp *uint32 `json:"timestamp"`
	NonceStr  *string `json:"noncestr"`
}

type Options struct {
	// Path of the signing endpoint; relative paths resolve against the page URL.
	Path       string
	HTTPClient *http.Client
	Limiter    *ratelimiter.PageLimiter
	Logger     *slog.Logger
	Now        func() time.Time
}

type Client struct {
	source  URLSource
	path    string
	http    *http.Client
	limiter *ratelimiter.PageLimiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewClient(source URLSource, opts Options) *Client {
	c := &Client{
		source:  source,
		path:    strings.TrimSpace(opts.Path),
		http:    opts.HTTPClient,
		limiter: opts.Limiter,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if c.path == "" {
		c.path = DefaultPath
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// SignCurrentURL signs the source's current URL with its fragment removed.
// It makes exactly one attempt.
func (c *Client) SignCurrentURL(ctx context.Context) (Result, error) {
	if c.source == nil {
		return Result{}, ErrURLUnavailable
	}
	pageURL, err := c.source.CurrentURL(ctx)
	if err != nil {
		if errors.Is(err, ErrURLUnavailable) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrURLUnavailable, err)
	}
	if strings.TrimSpace(pageURL) == "" {
		return Result{}, ErrURLUnavailable
	}
	return c.SignURL(ctx, StripFragment(pageURL))
}

func (c *Client) SignURL(ctx context.Context, pageURL string) (Result, error) {
	if retry, ok := c.limiter.Admit(pageURL, c.now()); !ok {
		c.logger.Warn("sign url throttled", "retry_after_ms", retry.Milliseconds())
		return Result{}, fmt.Errorf("%w: retry in %s", ErrThrottled, retry)
	}
	endpoint, err := c.endpoint(pageURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(pageURL))
	if err != nil {
		return Result{}, fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	started := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("sign url failed", "endpoint", endpoint, "error", err)
		return Result{}, fmt.Errorf("%w: send request: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("sign url rejected", "endpoint", endpoint, "status", resp.StatusCode)
		return Result{}, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	out, err := decodeSignResponse(body)
	if err != nil {
		return Result{}, err
	}
	c.logger.Debug("sign url", "endpoint", endpoint, "latency_ms", c.now().Sub(started).Milliseconds(), "timestamp", out.Timestamp)
	return out, nil
}

func (c *Client) endpoint(pageURL string) (string, error) {
	ref, err := url.Parse(c.path)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("page url %q is not absolute", pageURL)
	}
	return base.ResolveReference(ref).String(), nil
}

func decodeSignResponse(body []byte) (Result, error) {
	var parsed signResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: sign-url: %v", ErrDecode, err)
	}
	if parsed.Sign == nil || parsed.Timestamp == nil || parsed.NonceStr == nil {
		return Result{}, fmt.Errorf("%w: sign-url: missing field", ErrDecode)
	}
	return Result{
		Sign:      *parsed.Sign,
		Timestamp: *parsed.Timestamp,
		NonceStr:  *parsed.NonceStr,
	}, nil
}
