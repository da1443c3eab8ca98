// session/session.go
/* Package session holds the current access token for an authenticated client and renews it
through an identity provider. It is the single source of truth for the token: the http client
reads it before every request and asks it to refresh after an authorization failure. */
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/tokenstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultStoreKey is the token store key used when no key is configured.
const DefaultStoreKey = "default"

// ErrNoRefreshMaterial is returned by Refresh when the session holds nothing to refresh with.
var ErrNoRefreshMaterial = errors.New("session has no refresh material")

// ErrNoIdentityProvider is returned when a Provider was built without an identity provider.
var ErrNoIdentityProvider = errors.New("no identity provider configured")

// ErrSessionChanged is returned by a refresh whose session was replaced while the identity
// provider call was in flight, by Login, Logout or Restore. Its result is discarded.
var ErrSessionChanged = errors.New("session changed during token refresh")

// Token is the credential issued by an identity provider.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Credentials are passed through to IdentityProvider.Login. Which fields are used depends on the provider.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// IdentityProvider is the contract the session expects from an external identity service.
type IdentityProvider interface {
	Login(ctx context.Context, creds Credentials) (*Token, error)
	Logout(ctx context.Context, token *Token) error
	// RefreshToken exchanges the current token's refresh material for a new token.
	RefreshToken(ctx context.Context, current *Token) (*Token, error)
}

// ChangeReason describes why the session token changed.
type ChangeReason string

const (
	ReasonLogin         ChangeReason = "login"
	ReasonRefresh       ChangeReason = "refresh"
	ReasonRefreshFailed ChangeReason = "refresh_failed"
	ReasonLogout        ChangeReason = "logout"
	ReasonRestore       ChangeReason = "restore"
)

// TokenChange is delivered to observers registered with OnTokenChange.
type TokenChange struct {
	Reason        ChangeReason
	Authenticated bool
	Expiry        time.Time
}

// Provider is a concurrency-safe session token holder.
type Provider struct {
	idp               IdentityProvider
	store             tokenstore.Store
	storeKey          string
	log               logger.Logger
	hideSensitiveData bool
	refreshTimeout    time.Duration

	mu    sync.RWMutex
	token *Token
	// generation is bumped by every token replacement. A refresh only commits if it is unchanged.
	generation uint64
	// commitMu orders token replacements together with their store writes.
	commitMu sync.Mutex

	group singleflight.Group

	observersMu sync.Mutex
	observers   []func(TokenChange)
}

// Option configures a Provider.
type Option func(*Provider)

// WithStore persists refresh material in store. Without it the session lives in memory only.
func WithStore(store tokenstore.Store) Option {
	return func(p *Provider) { p.store = store }
}

// WithStoreKey sets the key the session is saved under.
func WithStoreKey(key string) Option {
	return func(p *Provider) {
		if key != "" {
			p.storeKey = key
		}
	}
}

// WithHideSensitiveData redacts token values in log output.
func WithHideSensitiveData(hide bool) Option {
	return func(p *Provider) { p.hideSensitiveData = hide }
}

// WithRefreshTimeout bounds each identity provider refresh round trip.
func WithRefreshTimeout(d time.Duration) Option {
	return func(p *Provider) { p.refreshTimeout = d }
}

// WithToken seeds the provider with an existing token, e.g. one issued out of band.
func WithToken(token *Token) Option {
	return func(p *Provider) { p.token = cloneToken(token) }
}

// NewProvider returns a Provider backed by idp.
func NewProvider(idp IdentityProvider, log logger.Logger, opts ...Option) *Provider {
	if log == nil {
		log = logger.NewNopLogger()
	}
	p := &Provider{
		idp:      idp,
		store:    tokenstore.NewMemoryStore(),
		storeKey: DefaultStoreKey,
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns the current access token and whether one is present. It never blocks on I/O.
func (p *Provider) Token() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil || p.token.AccessToken == "" {
		return "", false
	}
	return p.token.AccessToken, true
}

// IsAuthenticated reports whether a non-empty access token is present.
func (p *Provider) IsAuthenticated() bool {
	_, ok := p.Token()
	return ok
}

// Expiry returns when the current access token expires. The identity provider's value is
// preferred; otherwise the exp claim of a JWT access token is used.
func (p *Provider) Expiry() (time.Time, bool) {
	p.mu.RLock()
	token := cloneToken(p.token)
	p.mu.RUnlock()

	if token == nil || token.AccessToken == "" {
		return time.Time{}, false
	}
	if !token.Expiry.IsZero() {
		return token.Expiry, true
	}
	return expiryFromJWT(token.AccessToken)
}

// OnTokenChange registers fn to be called after every token change. fn runs on the goroutine
// that caused the change and must not block.
func (p *Provider) OnTokenChange(fn func(TokenChange)) {
	p.observersMu.Lock()
	defer p.observersMu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *Provider) notify(change TokenChange) {
	p.observersMu.Lock()
	observers := make([]func(TokenChange), len(p.observers))
	copy(observers, p.observers)
	p.observersMu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
}

// setToken swaps in token, persists it and notifies observers.
func (p *Provider) setToken(ctx context.Context, token *Token, reason ChangeReason) {
	p.commitToken(ctx, token, reason, nil)
}

// clearToken drops the token, deletes persisted material and notifies observers.
func (p *Provider) clearToken(ctx context.Context, reason ChangeReason) {
	p.commitToken(ctx, nil, reason, nil)
}

// snapshot returns a copy of the token together with the generation it belongs to.
func (p *Provider) snapshot() (*Token, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneToken(p.token), p.generation
}

// commitToken replaces the token (nil clears it), persists the change and notifies observers.
// When expected is non-nil the change is only applied if the generation still matches; it
// reports whether the change was applied.
func (p *Provider) commitToken(ctx context.Context, token *Token, reason ChangeReason, expected *uint64) bool {
	p.commitMu.Lock()

	p.mu.Lock()
	if expected != nil && *expected != p.generation {
		p.mu.Unlock()
		p.commitMu.Unlock()
		return false
	}
	p.token = cloneToken(token)
	p.generation++
	p.mu.Unlock()

	if token != nil {
		if err := p.store.Save(ctx, p.storeKey, toRecord(token)); err != nil {
			p.log.Warn("Failed to persist session token", zap.Error(err))
		}
	} else if err := p.store.Delete(ctx, p.storeKey); err != nil {
		p.log.Warn("Failed to delete persisted session token", zap.Error(err))
	}
	p.commitMu.Unlock()

	authenticated := token != nil && token.AccessToken != ""
	change := TokenChange{Reason: reason, Authenticated: authenticated}
	if authenticated {
		change.Expiry, _ = p.Expiry()
	}
	p.notify(change)
	return true
}

func cloneToken(t *Token) *Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func toRecord(t *Token) *tokenstore.Record {
	return &tokenstore.Record{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		UpdatedAt:    time.Now(),
	}
}

func fromRecord(r *tokenstore.Record) *Token {
	return &Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
	}
}
