// identity/oauth/oauth.go
/* Package oauth adapts an OAuth 2.0 authorization server to the session.IdentityProvider
contract using golang.org/x/oauth2. Login supports the resource owner password and client
credentials grants, refresh uses the refresh_token grant and logout optionally revokes the
token (RFC 7009). */
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-session-client/headers/redact"
	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/session"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
)

// ErrNoRefreshToken is returned when a password grant session has no refresh token to use.
var ErrNoRefreshToken = errors.New("no refresh token available")

// Config describes the authorization server and the client registered with it.
type Config struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	RevocationURL string
	Scopes        []string
	// GrantType is GrantTypePassword (default) or GrantTypeClientCredentials.
	GrantType string
	// AuthStyle controls how client credentials are sent. Zero autodetects.
	AuthStyle         oauth2.AuthStyle
	HTTPClient        *http.Client
	HideSensitiveData bool
}

// Provider implements session.IdentityProvider against an OAuth 2.0 token endpoint.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	log        logger.Logger
}

var _ session.IdentityProvider = (*Provider)(nil)

// New validates cfg and returns a Provider.
func New(cfg Config, log logger.Logger) (*Provider, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("oauth token URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.TokenURL); err != nil {
		return nil, fmt.Errorf("invalid oauth token URL: %w", err)
	}
	switch cfg.GrantType {
	case "":
		cfg.GrantType = GrantTypePassword
	case GrantTypePassword, GrantTypeClientCredentials:
	default:
		return nil, fmt.Errorf("unsupported oauth grant type: %s", cfg.GrantType)
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

func (p *Provider) oauthConfig(creds session.Credentials) *oauth2.Config {
	clientID, clientSecret := p.clientCredentials(creds)
	scopes := p.cfg.Scopes
	if len(creds.Scopes) > 0 {
		scopes = creds.Scopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.cfg.TokenURL,
			AuthStyle: p.cfg.AuthStyle,
		},
	}
}

func (p *Provider) clientCredentials(creds session.Credentials) (string, string) {
	clientID, clientSecret := p.cfg.ClientID, p.cfg.ClientSecret
	if creds.ClientID != "" {
		clientID = creds.ClientID
	}
	if creds.ClientSecret != "" {
		clientSecret = creds.ClientSecret
	}
	return clientID, clientSecret
}

// withHTTPClient makes x/oauth2 use the configured client for token requests.
func (p *Provider) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Login obtains a token with the configured grant.
func (p *Provider) Login(ctx context.Context, creds session.Credentials) (*session.Token, error) {
	ctx = p.withHTTPClient(ctx)

	var (
		tok *oauth2.Token
		err error
	)
	switch p.cfg.GrantType {
	case GrantTypeClientCredentials:
		tok, err = p.clientCredentialsToken(ctx, creds)
	default:
		p.log.Debug("Attempting to obtain OAuth token", zap.String("Username", creds.Username), zap.Strings("Scopes", p.cfg.Scopes))
		tok, err = p.oauthConfig(creds).PasswordCredentialsToken(ctx, creds.Username, creds.Password)
	}
	if err != nil {
		p.log.Error("Error obtaining OAuth token", zap.String("grant_type", p.cfg.GrantType), zap.Error(err))
		return nil, fmt.Errorf("obtaining OAuth token: %w", err)
	}

	p.log.Info("OAuth token obtained successfully",
		zap.String("AccessToken", redact.RedactSensitiveHeaderData(p.cfg.HideSensitiveData, "AccessToken", tok.AccessToken)),
		zap.Time("ExpirationTime", tok.Expiry),
	)
	return fromOAuth2(tok), nil
}

func (p *Provider) clientCredentialsToken(ctx context.Context, creds session.Credentials) (*oauth2.Token, error) {
	clientID, clientSecret := p.clientCredentials(creds)
	scopes := p.cfg.Scopes
	if len(creds.Scopes) > 0 {
		scopes = creds.Scopes
	}
	p.log.Debug("Attempting to obtain OAuth token", zap.String("ClientID", clientID), zap.Strings("Scopes", scopes))

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     p.cfg.TokenURL,
		Scopes:       scopes,
		AuthStyle:    p.cfg.AuthStyle,
	}
	return cc.Token(ctx)
}

// RefreshToken uses the refresh_token grant. Client credentials sessions without a refresh
// token simply request a new token.
func (p *Provider) RefreshToken(ctx context.Context, current *session.Token) (*session.Token, error) {
	ctx = p.withHTTPClient(ctx)

	if current == nil || current.RefreshToken == "" {
		if p.cfg.GrantType == GrantTypeClientCredentials {
			tok, err := p.clientCredentialsToken(ctx, session.Credentials{})
			if err != nil {
				return nil, fmt.Errorf("renewing client credentials token: %w", err)
			}
			return fromOAuth2(tok), nil
		}
		return nil, ErrNoRefreshToken
	}

	// An empty access token forces the token source to refresh.
	source := p.oauthConfig(session.Credentials{}).TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing OAuth token: %w", err)
	}
	return fromOAuth2(tok), nil
}

// Logout revokes the refresh token (or the access token when there is none) if a revocation
// endpoint is configured.
func (p *Provider) Logout(ctx context.Context, token *session.Token) error {
	if p.cfg.RevocationURL == "" || token == nil {
		return nil
	}

	value, hint := token.RefreshToken, "refresh_token"
	if value == "" {
		value, hint = token.AccessToken, "access_token"
	}

	form := url.Values{}
	form.Set("token", value)
	form.Set("token_type_hint", hint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.cfg.ClientID != "" {
		req.SetBasicAuth(url.QueryEscape(p.cfg.ClientID), url.QueryEscape(p.cfg.ClientSecret))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		p.log.LogError("token_revocation_failed", http.MethodPost, p.cfg.RevocationURL, resp.StatusCode, resp.Status, nil, "")
		return fmt.Errorf("token revocation failed with status code: %d", resp.StatusCode)
	}

	p.log.Debug("Token revoked", zap.String("token_type_hint", hint))
	return nil
}

func fromOAuth2(tok *oauth2.Token) *session.Token {
	return &session.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
}
