// httpclient/request.go
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-session-client/concurrency"
	"github.com/deploymenttheory/go-api-session-client/cookiejar"
	"github.com/deploymenttheory/go-api-session-client/headers"
	"github.com/deploymenttheory/go-api-session-client/headers/redact"
	"github.com/deploymenttheory/go-api-session-client/response"
	"github.com/deploymenttheory/go-api-session-client/status"
	"github.com/deploymenttheory/go-api-session-client/version"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxLoggedBodyBytes caps the raw response written to error logs.
const maxLoggedBodyBytes = 1024

// outgoingRequest is one logical request. It is replayed at most once after a token refresh.
type outgoingRequest struct {
	method      string
	url         string
	key         string
	body        []byte
	contentType string

	// sentToken is the token carried by the latest attempt, empty when none was present.
	sentToken string
	retried   bool
}

// DoRequest sends an authenticated request and decodes a successful response body into out.
// out may be nil, a *[]byte, a *string, an io.Writer or any value JSON/XML can be decoded into.
//
// A first authorization failure refreshes the session token and replays the request once; the
// caller only sees the replayed result. Errors follow the client's taxonomy (see Classify):
// non-authorization error statuses are returned as the unchanged *response.APIError.
//
// Example:
//
//	var widgets []Widget
//	resp, err := client.DoRequest(ctx, http.MethodGet, "/api/v1/widgets", nil, &widgets)
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, body, out any) (*http.Response, error) {
	resp, data, err := c.Request(ctx, method, endpoint, body)
	if err != nil {
		return resp, err
	}
	if err := response.HandleAPISuccessResponse(resp, data, out, c.Logger); err != nil {
		return resp, err
	}
	return resp, nil
}

// Request sends an authenticated request and returns the response with its fully read body.
// resp.Body is replaced by a reader over the same bytes so it can still be consumed.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) (*http.Response, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, contentType, err := encodeBody(body, c.config.ContentType)
	if err != nil {
		return nil, nil, err
	}

	method = strings.ToUpper(method)
	requestURL := c.buildURL(endpoint)
	req := &outgoingRequest{
		method:      method,
		url:         requestURL,
		key:         RouteKey(method, requestURL),
		body:        payload,
		contentType: contentType,
	}

	return c.executeRequest(ctx, req)
}

// executeRequest drives one logical request through at most two attempts.
func (c *Client) executeRequest(ctx context.Context, req *outgoingRequest) (*http.Response, []byte, error) {
	log := c.Logger

	c.refreshIfExpiring(ctx)

	for {
		resp, data, err := c.send(ctx, req)
		if err != nil {
			c.Metrics.RecordTransportError()
			log.Warn("HTTP request failed before a response was received",
				zap.String("method", req.method),
				zap.String("url", req.url),
				zap.Error(err),
			)
			return nil, nil, fmt.Errorf("%w: %s %s: %w", ErrTransportFailure, req.method, req.url, err)
		}

		if status.IsSuccessStatusCode(resp.StatusCode) {
			c.ledger.Clear(req.key)
			headers.CheckDeprecationHeader(resp, log)
			return resp, data, nil
		}

		apiErr := response.HandleAPIErrorResponse(resp, data, log)

		if !status.IsAuthorizationFailure(resp.StatusCode, c.config.AuthFailureStatusCode) {
			log.LogError("api_error", req.method, req.url, resp.StatusCode, status.TranslateStatusCode(resp), apiErr, truncateBody(data))
			if status.IsTransientError(resp) || status.IsRateLimitError(resp) {
				log.Warn("Server reported a transient failure; the request is not retried",
					zap.Int("status_code", resp.StatusCode),
					zap.String("retry_after", resp.Header.Get("Retry-After")),
				)
			}
			return resp, data, apiErr
		}

		c.Metrics.RecordAuthFailure()

		if req.retried || (c.config.ShareRetryEpisodes && c.ledger.HasRetried(req.key)) {
			return resp, data, c.terminalAuthFailure(req, resp, apiErr, nil)
		}

		req.retried = true
		c.ledger.MarkRetried(req.key)
		c.Metrics.RecordRetry()
		log.LogRetryAttempt("auth_retry", req.method, req.url, 1, "authorization failure, refreshing token", apiErr)

		if err := c.refreshToken(ctx, req.sentToken); err != nil {
			if ctx.Err() != nil {
				return resp, data, fmt.Errorf("%w: %w (refresh interrupted: %w)", ErrTransientAuthFailure, apiErr, err)
			}
			return resp, data, c.terminalAuthFailure(req, resp, apiErr, err)
		}
	}
}

func (c *Client) terminalAuthFailure(req *outgoingRequest, resp *http.Response, apiErr *response.APIError, refreshErr error) error {
	c.Metrics.RecordTerminalAuth()

	var err error
	if refreshErr != nil {
		err = fmt.Errorf("%w: %w (token refresh failed: %w)", ErrTerminalAuthFailure, apiErr, refreshErr)
	} else {
		err = fmt.Errorf("%w: %w", ErrTerminalAuthFailure, apiErr)
	}
	c.Logger.LogAuthTokenError("terminal_auth_failure", req.method, req.url, resp.StatusCode, err)
	return err
}

// send performs a single attempt with the token that is current at the time of sending.
func (c *Client) send(ctx context.Context, req *outgoingRequest) (*http.Response, []byte, error) {
	log := c.Logger

	if c.Concurrency != nil {
		permitCtx, requestID, err := c.Concurrency.AcquireConcurrencyPermit(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("acquiring concurrency permit: %w", err)
		}
		defer c.Concurrency.ReleaseConcurrencyPermit(requestID)
		ctx = permitCtx
	} else {
		ctx = concurrency.ContextWithRequestID(ctx, uuid.New())
	}
	requestID, _ := concurrency.RequestIDFromContext(ctx)

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}

	token, present := c.tokens.Token()
	req.sentToken = ""
	if present {
		req.sentToken = token
	}

	headerHandler := headers.NewHeaderHandler(httpReq, log, c.config.HideSensitiveData)
	headerHandler.SetAuthorization(token, present, c.config.NoCredentialPlaceholder)
	if req.body != nil {
		headerHandler.SetContentType(req.contentType)
	}
	headerHandler.SetAccept(c.config.Accept)
	headerHandler.SetUserAgent(version.GetUserAgentHeader())
	headerHandler.SetCustomHeaders(c.config.CustomHeaders)
	headerHandler.LogHeaders()

	if len(c.config.CustomCookies) > 0 {
		for name, value := range c.config.CustomCookies {
			httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
		}
		log.Debug("Custom cookies applied", zap.Any("cookies", cookiejar.RedactSensitiveCookies(httpReq.Cookies())))
	}

	c.Metrics.RecordRequest()
	log.LogRequestStart("request_start", requestID.String(), req.method, req.url, redact.RedactHeaders(c.config.HideSensitiveData, httpReq.Header))

	startTime := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	elapsed := time.Since(startTime)
	log.LogRequestEnd("request_end", requestID.String(), req.method, req.url, resp.StatusCode, elapsed)

	if c.Concurrency != nil && c.config.EnableConcurrencyManagement {
		throttled := status.IsRateLimitError(resp) || status.IsTransientError(resp)
		c.Concurrency.AdjustConcurrency(throttled, status.IsSuccessStatusCode(resp.StatusCode), elapsed)
	}

	return resp, data, nil
}

// refreshToken asks the token source for a new token. rejected is the token the server refused,
// letting a rejection-aware source skip the identity provider when it was already replaced.
func (c *Client) refreshToken(ctx context.Context, rejected string) error {
	c.Metrics.RecordRefreshRequest()
	if source, ok := c.tokens.(RejectionAwareTokenSource); ok && rejected != "" {
		return source.RefreshAfterRejection(ctx, rejected)
	}
	return c.tokens.Refresh(ctx)
}

// refreshIfExpiring refreshes ahead of time when the token expires within TokenRefreshBufferPeriod.
// Failures are logged; the request then goes out with whatever the session holds.
func (c *Client) refreshIfExpiring(ctx context.Context) {
	if c.config.TokenRefreshBufferPeriod <= 0 {
		return
	}
	source, ok := c.tokens.(ExpiringTokenSource)
	if !ok {
		return
	}
	expiry, ok := source.Expiry()
	if !ok || time.Until(expiry) > c.config.TokenRefreshBufferPeriod {
		return
	}
	token, present := c.tokens.Token()
	if !present {
		return
	}

	c.Logger.Debug("Token is about to expire, refreshing", zap.Time("expiry", expiry))
	if err := c.refreshToken(ctx, token); err != nil && !errors.Is(err, context.Canceled) {
		c.Logger.Warn("Proactive token refresh failed", zap.Error(err))
	}
}

// buildURL resolves endpoint against the configured base URL. Absolute URLs are used unchanged.
func (c *Client) buildURL(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	if c.config.BaseURL == "" {
		return endpoint
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func truncateBody(data []byte) string {
	if len(data) > maxLoggedBodyBytes {
		return string(data[:maxLoggedBodyBytes]) + "..."
	}
	return string(data)
}
