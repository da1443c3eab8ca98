// identity/tokenendpoint/tokenendpoint.go
/* Package tokenendpoint implements session.IdentityProvider for APIs that issue bearer tokens
from a basic-auth token endpoint. Tokens are renewed by presenting the current token to a
keep-alive endpoint and invalidated on logout. */
package tokenendpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-session-client/headers"
	"github.com/deploymenttheory/go-api-session-client/headers/redact"
	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/response"
	"github.com/deploymenttheory/go-api-session-client/session"
	"go.uber.org/zap"
)

const (
	DefaultTokenPath      = "/api/v1/auth/token"
	DefaultRefreshPath    = "/api/v1/auth/keep-alive"
	DefaultInvalidatePath = "/api/v1/auth/invalidate-token"
)

// TokenResponse represents the structure of a token response from the API.
type TokenResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Config locates the token endpoints. Paths are resolved against BaseURL.
type Config struct {
	BaseURL           string
	TokenPath         string
	RefreshPath       string
	InvalidatePath    string
	HTTPClient        *http.Client
	HideSensitiveData bool
}

// Provider exchanges basic credentials for bearer tokens.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	log        logger.Logger
}

var _ session.IdentityProvider = (*Provider)(nil)

// New validates cfg, applies default paths and returns a Provider.
func New(cfg Config, log logger.Logger) (*Provider, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid token endpoint base URL: %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TokenPath == "" {
		cfg.TokenPath = DefaultTokenPath
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.InvalidatePath == "" {
		cfg.InvalidatePath = DefaultInvalidatePath
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Provider{cfg: cfg, httpClient: httpClient, log: log}, nil
}

func (p *Provider) endpoint(path string) string {
	return p.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// Login fetches a token using basic authentication.
func (p *Provider) Login(ctx context.Context, creds session.Credentials) (*session.Token, error) {
	if ok, msg := ValidateCredentials(creds); !ok {
		return nil, fmt.Errorf("invalid credentials: %s", msg)
	}

	authenticationEndpoint := p.endpoint(p.cfg.TokenPath)
	p.log.Debug("Attempting to obtain token for user", zap.String("Username", creds.Username))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authenticationEndpoint, nil)
	if err != nil {
		p.log.LogError("authentication_request_creation_error", http.MethodPost, authenticationEndpoint, 0, "", err, "Failed to create new request for token")
		return nil, err
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	token, err := p.doTokenRequest(req, "token_authentication_failed")
	if err != nil {
		return nil, err
	}

	p.log.Info("Token obtained successfully",
		zap.String("AccessToken", redact.RedactSensitiveHeaderData(p.cfg.HideSensitiveData, "AccessToken", token.AccessToken)),
		zap.Time("Expiry", token.Expiry),
		zap.Duration("Duration", time.Until(token.Expiry)),
	)
	return token, nil
}

// RefreshToken renews the current token by presenting it to the keep-alive endpoint.
func (p *Provider) RefreshToken(ctx context.Context, current *session.Token) (*session.Token, error) {
	if current == nil || current.AccessToken == "" {
		return nil, fmt.Errorf("token refresh requires a current token")
	}

	tokenRefreshEndpoint := p.endpoint(p.cfg.RefreshPath)
	p.log.Debug("Attempting to refresh token", zap.String("URL", tokenRefreshEndpoint))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenRefreshEndpoint, nil)
	if err != nil {
		p.log.Error("Failed to create new request for token refresh", zap.Error(err))
		return nil, err
	}
	req.Header.Set("Authorization", headers.AuthorizationValue(current.AccessToken, true, ""))

	token, err := p.doTokenRequest(req, "token_refresh_failed")
	if err != nil {
		return nil, err
	}

	p.log.Info("Token refreshed successfully", zap.Time("Expiry", token.Expiry))
	return token, nil
}

// Logout invalidates the current token. A 401 means the token is already invalid and is not an error.
func (p *Provider) Logout(ctx context.Context, token *session.Token) error {
	if token == nil || token.AccessToken == "" {
		return nil
	}

	invalidateEndpoint := p.endpoint(p.cfg.InvalidatePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, invalidateEndpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", headers.AuthorizationValue(token.AccessToken, true, ""))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Error("Failed to make request for token invalidation", zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusUnauthorized:
		p.log.Debug("Token invalidated", zap.Int("status_code", resp.StatusCode))
		return nil
	default:
		return response.HandleAPIErrorResponse(resp, body, p.log)
	}
}

func (p *Provider) doTokenRequest(req *http.Request, failureEvent string) (*session.Token, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.LogError("authentication_request_error", req.Method, req.URL.String(), 0, "", err, "Failed to make request for token")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.log.Error("Failed to read token response body", zap.Error(err))
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := response.HandleAPIErrorResponse(resp, body, p.log)
		p.log.LogError(failureEvent, req.Method, req.URL.String(), resp.StatusCode, resp.Status, apiErr, "Token request resulted in a non-OK response")
		return nil, apiErr
	}

	tokenResp := &TokenResponse{}
	if err := json.Unmarshal(body, tokenResp); err != nil {
		p.log.Error("Failed to decode token response", zap.Error(err))
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tokenResp.Token == "" {
		return nil, p.log.Error("Empty access token received")
	}

	return &session.Token{
		AccessToken: tokenResp.Token,
		TokenType:   headers.AuthorizationScheme,
		Expiry:      tokenResp.Expires,
	}, nil
}
