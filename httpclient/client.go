// httpclient/client.go
/* The `httpclient` package provides an authenticated HTTP client. Every request carries the current
bearer token from a TokenSource; an authorization failure triggers one coordinated token refresh
followed by a single replay of the request. The main `Client` structure encapsulates the
configuration, the retry ledger, concurrency management and an embedded standard HTTP client. */
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deploymenttheory/go-api-session-client/concurrency"
	"github.com/deploymenttheory/go-api-session-client/cookiejar"
	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/proxy"
	"github.com/deploymenttheory/go-api-session-client/redirecthandler"
	"go.uber.org/zap"
)

// TokenSource is the client's view of the session. Token never blocks; Refresh blocks until a
// new token is available or the refresh failed, and concurrent calls must share one refresh.
type TokenSource interface {
	Token() (string, bool)
	Refresh(ctx context.Context) error
}

// RejectionAwareTokenSource is implemented by token sources that can skip the identity provider
// when the rejected token was already replaced by a concurrent refresh.
type RejectionAwareTokenSource interface {
	TokenSource
	RefreshAfterRejection(ctx context.Context, rejected string) error
}

// ExpiringTokenSource is implemented by token sources that know when the current token expires.
// The client uses it to refresh ahead of time when TokenRefreshBufferPeriod is set.
type ExpiringTokenSource interface {
	TokenSource
	Expiry() (time.Time, bool)
}

// Master struct/object
type Client struct {
	// Private
	config ClientConfig
	http   *http.Client
	tokens TokenSource
	ledger RetryLedger

	// Exported
	Logger      logger.Logger
	Concurrency *concurrency.ConcurrencyHandler
	Metrics     *concurrency.Metrics
}

// Option customises a Client built by BuildClient.
type Option func(*Client)

// WithLogger replaces the logger BuildClient derives from the configuration.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.Logger = log
		}
	}
}

// WithRetryLedger replaces the in-memory retry ledger.
func WithRetryLedger(ledger RetryLedger) Option {
	return func(c *Client) {
		if ledger != nil {
			c.ledger = ledger
		}
	}
}

// WithTransport sets the round tripper of the embedded http.Client. Proxy settings, when
// configured, are applied on top of it.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// BuildClient creates a new authenticated HTTP client with the provided configuration.
func BuildClient(config ClientConfig, tokens TokenSource, populateDefaultValues bool, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("invalid configuration: token source is required")
	}

	if populateDefaultValues {
		SetDefaultValuesClientConfig(&config)
	}

	if err := validateClientConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	//region Create

	client := &Client{
		config:  config,
		http:    &http.Client{Timeout: config.CustomTimeout},
		tokens:  tokens,
		ledger:  NewMemoryRetryLedger(),
		Metrics: &concurrency.Metrics{},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.Logger == nil {
		parsedLogLevel := logger.ParseLogLevelFromString(config.LogLevel)
		exportPath := ""
		if config.ExportLogs {
			exportPath = config.LogExportPath
		}
		client.Logger = logger.BuildLogger(parsedLogLevel, config.LogOutputFormat, config.LogConsoleSeparator, exportPath)
		client.Logger.SetLevel(parsedLogLevel)
	}
	log := client.Logger

	//endregion

	//region HTTP

	if err := cookiejar.SetupCookieJar(client.http, config.CookieJarEnabled, log); err != nil {
		return nil, fmt.Errorf("setting up cookie jar: %w", err)
	}

	if err := redirecthandler.SetupRedirectHandler(client.http, config.FollowRedirects, config.MaxRedirects, log); err != nil {
		log.Error("Failed to set up redirect handler", zap.Error(err))
		return nil, err
	}

	if config.ProxyURL != "" {
		if err := proxy.InitializeProxy(client.http, config.ProxyURL, config.ProxyUsername, config.ProxyPassword, config.ProxyAuthToken, log); err != nil {
			return nil, fmt.Errorf("setting up proxy: %w", err)
		}
	}

	//endregion

	//region Concurrency

	if config.MaxConcurrentRequests > 0 {
		client.Concurrency = concurrency.NewConcurrencyHandler(config.MaxConcurrentRequests, log, client.Metrics)
	}

	//endregion

	log.Debug("New API client initialized",
		zap.String("Base URL", config.BaseURL),
		zap.String("Logging Level", config.LogLevel),
		zap.String("Log Encoding Format", config.LogOutputFormat),
		zap.Bool("Hide Sensitive Data In Logs", config.HideSensitiveData),
		zap.Bool("Cookie Jar Enabled", config.CookieJarEnabled),
		zap.Int("Authorization Failure Status", config.AuthFailureStatusCode),
		zap.Bool("Share Retry Episodes", config.ShareRetryEpisodes),
		zap.Int("Max Concurrent Requests", config.MaxConcurrentRequests),
		zap.Bool("Follow Redirects", config.FollowRedirects),
		zap.Int("Max Redirects", config.MaxRedirects),
		zap.Duration("Token Refresh Buffer Period", config.TokenRefreshBufferPeriod),
		zap.Duration("Custom Timeout", config.CustomTimeout),
		zap.Bool("Proxy Enabled", config.ProxyURL != ""),
	)

	return client, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() ClientConfig {
	return c.config
}

// RetryState reports whether the route is currently marked as having used its refresh and replay.
func (c *Client) RetryState(method, endpoint string) bool {
	return c.ledger.HasRetried(RouteKey(method, c.buildURL(endpoint)))
}

// HTTPClient exposes the embedded http.Client, e.g. to inspect its cookie jar.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}
