// Package bilibili implements the platform API: the QR login challenge flow,
// account metadata, and catalog resolution for video/audio stream options.
package bilibili

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/bilifetch/bilifetch"
)

const (
	defaultAPIBase      = "https://api.bilibili.com"
	defaultPassportBase = "https://passport.bilibili.com"

	// The API rejects requests without a browser-looking UA and referer.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://www.bilibili.com"
)

type Config struct {
	APIBase      string
	PassportBase string
	HTTPClient   *http.Client
	// RequestsPerSec paces all API calls to stay under platform rate limits.
	RequestsPerSec int
	// CacheTTL bounds how long metadata responses are reused.
	CacheTTL time.Duration
}

var DefaultConfig = Config{
	APIBase:        defaultAPIBase,
	PassportBase:   defaultPassportBase,
	RequestsPerSec: 4,
	CacheTTL:       5 * time.Minute,
}

type Client struct {
	config  Config
	limiter ratelimit.Limiter
	cache   *cache.Cache
	log     *zap.SugaredLogger
}

var _ bilifetch.Platform = (*Client)(nil)

func New(config Config) *Client {
	if config.APIBase == "" {
		config.APIBase = DefaultConfig.APIBase
	}
	if config.PassportBase == "" {
		config.PassportBase = DefaultConfig.PassportBase
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = DefaultConfig.RequestsPerSec
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig.CacheTTL
	}
	return &Client{
		config:  config,
		limiter: ratelimit.New(config.RequestsPerSec),
		cache:   cache.New(config.CacheTTL, 10*time.Minute),
		log:     zap.S().Named("bilibili"),
	}
}

// do issues a paced GET carrying the browser headers and, when credentials
// are present, the session cookie. Transport and 5xx failures come back
// wrapped as ErrTransientFetch.
func (c *Client) do(ctx context.Context, rawURL string, creds bilifetch.Credentials) (*http.Response, error) {
	c.limiter.Take()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	if !creds.IsZero() {
		req.AddCookie(&http.Cookie{Name: "SESSDATA", Value: creds.SessionToken})
	}
	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bilifetch.ErrTransientFetch, err)
	}
	if resp.StatusCode >= 500 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: http %d", bilifetch.ErrTransientFetch, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}
	return resp, nil
}

// apiGet fetches an API endpoint and returns its "data" object after checking
// the envelope return code.
func (c *Client) apiGet(ctx context.Context, rawURL string, creds bilifetch.Credentials) (gjson.Result, error) {
	resp, err := c.do(ctx, rawURL, creds)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", bilifetch.ErrTransientFetch, err)
	}
	root := gjson.ParseBytes(body)
	if code := root.Get("code").Int(); code != 0 {
		return gjson.Result{}, mapAPIError(code, root.Get("message").String())
	}
	return root.Get("data"), nil
}

// cachedAPIGet is apiGet with a short-lived response cache, used for catalog
// metadata that is stable within a run.
func (c *Client) cachedAPIGet(ctx context.Context, rawURL string, creds bilifetch.Credentials) (gjson.Result, error) {
	key := rawURL
	if !creds.IsZero() {
		key += "#auth"
	}
	if cached, ok := c.cache.Get(key); ok {
		return cached.(gjson.Result), nil
	}
	data, err := c.apiGet(ctx, rawURL, creds)
	if err != nil {
		return gjson.Result{}, err
	}
	c.cache.Set(key, data, cache.DefaultExpiration)
	return data, nil
}

func mapAPIError(code int64, message string) error {
	switch code {
	case -404, 62002:
		return bilifetch.ErrNotFound
	case -403, 62004, 62012:
		return bilifetch.ErrGeoOrAgeRestricted
	case -101:
		return bilifetch.ErrAuthExpired
	default:
		return &bilifetch.APIError{Code: code, Message: message}
	}
}
