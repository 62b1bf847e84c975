package shortener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/serroba/filegate/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 10

var errThrottled = errors.New("shortener request budget exhausted")

// Strategy wraps an internal URL into an outbound link.
type Strategy interface {
	Shorten(ctx context.Context, targetURL string) Link
}

// Config configures a Gateway.
type Config struct {
	Provider Provider
	APIKey   string
	// BaseURL overrides the provider's default host.
	BaseURL string
	// Timeout bounds a single attempt; with one retry a call may take about twice as long.
	Timeout time.Duration
	Backoff time.Duration
	// RatePerSecond caps outbound calls; zero disables the cap.
	RatePerSecond float64
	Burst         int
}

// Gateway calls the configured shortening provider and never blocks delivery on it.
type Gateway struct {
	client   *http.Client
	provider Provider
	endpoint string
	apiKey   string
	timeout  time.Duration
	backoff  time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewGateway creates a gateway for cfg.Provider using client for outbound calls.
func NewGateway(cfg Config, client *http.Client, logger *zap.Logger) *Gateway {
	base := cfg.BaseURL
	if base == "" {
		base = cfg.Provider.BaseURL()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}

	return &Gateway{
		client:   client,
		provider: cfg.Provider,
		endpoint: strings.TrimRight(base, "/") + "/api",
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		backoff:  cfg.Backoff,
		limiter:  limiter,
		logger:   logger,
	}
}

// NewHTTPClient builds the outbound client, dialing through a SOCKS5 proxy when proxyURL is set.
func NewHTTPClient(proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}

		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}

		transport.Proxy = nil

		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}

	return &http.Client{Transport: transport}, nil
}

// Shorten returns the provider's short URL for targetURL, or targetURL itself on any failure.
func (g *Gateway) Shorten(ctx context.Context, targetURL string) Link {
	link := Link{TargetURL: targetURL, ShortURL: targetURL}

	if g.provider == ProviderNone {
		return link
	}

	short, err := g.shorten(ctx, targetURL)
	if err != nil {
		g.logger.Warn("shortener unavailable, using raw link",
			zap.String("provider", g.provider.String()),
			zap.Error(err),
		)
		metrics.ShortenerRequestsTotal.WithLabelValues(g.provider.String(), "fallback").Inc()

		return link
	}

	metrics.ShortenerRequestsTotal.WithLabelValues(g.provider.String(), "ok").Inc()
	link.ShortURL = short

	return link
}

func (g *Gateway) shorten(ctx context.Context, targetURL string) (string, error) {
	if !g.limiter.Allow() {
		return "", fmt.Errorf("%w: %w", ErrShortenFailed, errThrottled)
	}

	var short string

	// One retry at most: the user is waiting on an interactive reply.
	// Each attempt gets the full timeout of its own.
	err := retry.Retry(func(_ uint) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		var callErr error

		short, callErr = g.call(attemptCtx, targetURL)

		return callErr
	}, strategy.Limit(2), strategy.Wait(g.backoff))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrShortenFailed, err)
	}

	return short, nil
}

func (g *Gateway) call(ctx context.Context, targetURL string) (string, error) {
	query := url.Values{}
	query.Set("api", g.apiKey)
	query.Set("url", targetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)

		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return parseResponse(body)
}

// envelope covers the JSON shapes the known providers answer with.
type envelope struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	ShortURL     string `json:"short_url"`
	URL          string `json:"url"`
}

func parseResponse(body []byte) (string, error) {
	text := strings.TrimSpace(string(body))

	if strings.HasPrefix(text, "{") {
		var env envelope
		if err := json.Unmarshal([]byte(text), &env); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}

		if env.Status != "" && !strings.EqualFold(env.Status, "success") {
			return "", fmt.Errorf("provider status %q", env.Status)
		}

		text = firstNonEmpty(env.ShortenedURL, env.ShortURL, env.URL)
	}

	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("response is not a url: %.64q", text)
	}

	return text, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
