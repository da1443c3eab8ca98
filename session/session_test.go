// session/session_test.go
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/tokenstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdentityProvider issues sequential tokens and counts calls.
type fakeIdentityProvider struct {
	loginCalls   atomic.Int32
	logoutCalls  atomic.Int32
	refreshCalls atomic.Int32

	loginErr   error
	logoutErr  error
	refreshErr error

	// refreshGate, when set, blocks RefreshToken until closed.
	refreshGate    chan struct{}
	refreshEntered chan struct{}
	lastRefreshed  atomic.Pointer[Token]
}

func (f *fakeIdentityProvider) Login(ctx context.Context, creds Credentials) (*Token, error) {
	f.loginCalls.Add(1)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &Token{AccessToken: "access-0", RefreshToken: "refresh-0", TokenType: "Bearer"}, nil
}

func (f *fakeIdentityProvider) Logout(ctx context.Context, token *Token) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

func (f *fakeIdentityProvider) RefreshToken(ctx context.Context, current *Token) (*Token, error) {
	n := f.refreshCalls.Add(1)
	f.lastRefreshed.Store(current)
	if f.refreshEntered != nil {
		select {
		case f.refreshEntered <- struct{}{}:
		default:
		}
	}
	if f.refreshGate != nil {
		<-f.refreshGate
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &Token{AccessToken: "access-" + string(rune('0'+n)), TokenType: "Bearer"}, nil
}

func newTestProvider(t *testing.T, idp IdentityProvider, opts ...Option) *Provider {
	t.Helper()
	return NewProvider(idp, logger.NewNopLogger(), opts...)
}

func TestProvider_TokenAbsentBeforeLogin(t *testing.T) {
	p := newTestProvider(t, &fakeIdentityProvider{})

	token, ok := p.Token()
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.False(t, p.IsAuthenticated())

	_, ok = p.Expiry()
	assert.False(t, ok)
}

func TestProvider_LoginLogout(t *testing.T) {
	idp := &fakeIdentityProvider{}
	store := tokenstore.NewMemoryStore()
	p := newTestProvider(t, idp, WithStore(store), WithStoreKey("alice"))
	ctx := context.Background()

	require.NoError(t, p.Login(ctx, Credentials{Username: "alice", Password: "secret"}))
	token, ok := p.Token()
	assert.True(t, ok)
	assert.Equal(t, "access-0", token)
	assert.True(t, p.IsAuthenticated())

	record, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "refresh-0", record.RefreshToken)

	require.NoError(t, p.Logout(ctx))
	assert.False(t, p.IsAuthenticated())
	assert.Equal(t, int32(1), idp.logoutCalls.Load())

	_, err = store.Load(ctx, "alice")
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestProvider_LoginErrors(t *testing.T) {
	p := newTestProvider(t, &fakeIdentityProvider{loginErr: errors.New("bad credentials")})
	err := p.Login(context.Background(), Credentials{})
	assert.ErrorContains(t, err, "bad credentials")
	assert.False(t, p.IsAuthenticated())

	noIDP := NewProvider(nil, nil)
	assert.ErrorIs(t, noIDP.Login(context.Background(), Credentials{}), ErrNoIdentityProvider)
	assert.ErrorIs(t, noIDP.Refresh(context.Background()), ErrNoIdentityProvider)
}

func TestProvider_LogoutClearsEvenWhenIdentityProviderFails(t *testing.T) {
	idp := &fakeIdentityProvider{logoutErr: errors.New("unreachable")}
	p := newTestProvider(t, idp, WithToken(&Token{AccessToken: "a", RefreshToken: "r"}))

	err := p.Logout(context.Background())
	assert.ErrorContains(t, err, "unreachable")
	assert.False(t, p.IsAuthenticated())
}

func TestProvider_RefreshSuccess(t *testing.T) {
	idp := &fakeIdentityProvider{}
	p := newTestProvider(t, idp, WithToken(&Token{AccessToken: "stale", RefreshToken: "refresh-0"}))

	var succeeded, failed bool
	err := p.RefreshWithCallbacks(context.Background(), func() { succeeded = true }, func(error) { failed = true })
	require.NoError(t, err)

	assert.True(t, succeeded)
	assert.False(t, failed)
	token, ok := p.Token()
	assert.True(t, ok)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, "refresh-0", idp.lastRefreshed.Load().RefreshToken)

	// The identity provider did not rotate the refresh token, so the old one is kept.
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, "refresh-0", idp.lastRefreshed.Load().RefreshToken)
}

func TestProvider_RefreshFailureLogsOut(t *testing.T) {
	idp := &fakeIdentityProvider{refreshErr: errors.New("revoked")}
	store := tokenstore.NewMemoryStore()
	p := newTestProvider(t, idp, WithStore(store), WithToken(&Token{AccessToken: "stale", RefreshToken: "r"}))
	require.NoError(t, store.Save(context.Background(), DefaultStoreKey, &tokenstore.Record{AccessToken: "stale"}))

	var gotErr error
	err := p.RefreshWithCallbacks(context.Background(), nil, func(err error) { gotErr = err })
	assert.ErrorContains(t, err, "revoked")
	assert.Equal(t, err, gotErr)
	assert.False(t, p.IsAuthenticated())

	_, loadErr := store.Load(context.Background(), DefaultStoreKey)
	assert.ErrorIs(t, loadErr, tokenstore.ErrNotFound)
}

func TestProvider_RefreshWithoutTokenFails(t *testing.T) {
	idp := &fakeIdentityProvider{}
	p := newTestProvider(t, idp)

	err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshMaterial)
	assert.Equal(t, int32(0), idp.refreshCalls.Load())
}

func TestProvider_RefreshEmptyTokenIsFailure(t *testing.T) {
	p := newTestProvider(t, &emptyRefreshProvider{}, WithToken(&Token{AccessToken: "a"}))
	err := p.Refresh(context.Background())
	assert.ErrorContains(t, err, "empty access token")
	assert.False(t, p.IsAuthenticated())
}

type emptyRefreshProvider struct{ fakeIdentityProvider }

func (*emptyRefreshProvider) RefreshToken(ctx context.Context, current *Token) (*Token, error) {
	return &Token{}, nil
}

func TestProvider_ConcurrentRefreshIsCoalesced(t *testing.T) {
	idp := &fakeIdentityProvider{
		refreshGate:    make(chan struct{}),
		refreshEntered: make(chan struct{}, 1),
	}
	p := newTestProvider(t, idp, WithToken(&Token{AccessToken: "stale", RefreshToken: "r"}))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- p.Refresh(context.Background())
	}()
	<-idp.refreshEntered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Refresh(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(idp.refreshGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), idp.refreshCalls.Load())
}

func TestProvider_RefreshAfterRejection(t *testing.T) {
	idp := &fakeIdentityProvider{}
	p := newTestProvider(t, idp, WithToken(&Token{AccessToken: "stale", RefreshToken: "r"}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.RefreshAfterRejection(context.Background(), "stale"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), idp.refreshCalls.Load(), "every caller after the first sees a replaced token")
	token, _ := p.Token()
	assert.Equal(t, "access-1", token)
}

func TestProvider_RefreshWaiterCancellation(t *testing.T) {
	idp := &fakeIdentityProvider{refreshGate: make(chan struct{}), refreshEntered: make(chan struct{}, 1)}
	p := newTestProvider(t, idp, WithToken(&Token{AccessToken: "stale", RefreshToken: "r"}))

	done := make(chan error, 1)
	go func() { done <- p.Refresh(context.Background()) }()
	<-idp.refreshEntered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Refresh(ctx), context.Canceled)

	close(idp.refreshGate)
	assert.NoError(t, <-done)
	assert.True(t, p.IsAuthenticated(), "a cancelled waiter does not fail the shared refresh")
}

func TestProvider_Restore(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	ctx := context.Background()
	p := newTestProvider(t, &fakeIdentityProvider{}, WithStore(store))

	assert.ErrorIs(t, p.Restore(ctx), tokenstore.ErrNotFound)

	require.NoError(t, store.Save(ctx, DefaultStoreKey, &tokenstore.Record{AccessToken: "persisted", RefreshToken: "r"}))
	require.NoError(t, p.Restore(ctx))
	token, ok := p.Token()
	assert.True(t, ok)
	assert.Equal(t, "persisted", token)
}

func TestProvider_OnTokenChange(t *testing.T) {
	idp := &fakeIdentityProvider{}
	p := newTestProvider(t, idp)

	var reasons []ChangeReason
	p.OnTokenChange(func(c TokenChange) { reasons = append(reasons, c.Reason) })

	ctx := context.Background()
	require.NoError(t, p.Login(ctx, Credentials{}))
	require.NoError(t, p.Refresh(ctx))
	require.NoError(t, p.Logout(ctx))

	assert.Equal(t, []ChangeReason{ReasonLogin, ReasonRefresh, ReasonLogout}, reasons)
}

func TestProvider_Expiry(t *testing.T) {
	explicit := time.Date(2031, 5, 6, 7, 8, 9, 0, time.UTC)
	p := newTestProvider(t, &fakeIdentityProvider{}, WithToken(&Token{AccessToken: "opaque", Expiry: explicit}))
	got, ok := p.Expiry()
	assert.True(t, ok)
	assert.True(t, explicit.Equal(got))

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	p = newTestProvider(t, &fakeIdentityProvider{}, WithToken(&Token{AccessToken: signed}))
	got, ok = p.Expiry()
	assert.True(t, ok)
	assert.True(t, exp.Equal(got))

	p = newTestProvider(t, &fakeIdentityProvider{}, WithToken(&Token{AccessToken: "not-a-jwt"}))
	_, ok = p.Expiry()
	assert.False(t, ok)
}

func TestProvider_LogoutDuringRefreshIsNotUndone(t *testing.T) {
	idp := &fakeIdentityProvider{refreshGate: make(chan struct{}), refreshEntered: make(chan struct{}, 1)}
	store := tokenstore.NewMemoryStore()
	ctx := context.Background()
	p := newTestProvider(t, idp, WithStore(store))
	require.NoError(t, p.Login(ctx, Credentials{Username: "u", Password: "p"}))

	done := make(chan error, 1)
	go func() { done <- p.Refresh(ctx) }()
	<-idp.refreshEntered

	require.NoError(t, p.Logout(ctx))
	assert.False(t, p.IsAuthenticated())

	close(idp.refreshGate)
	assert.ErrorIs(t, <-done, ErrSessionChanged)

	assert.False(t, p.IsAuthenticated(), "the refreshed token is discarded after logout")
	_, err := store.Load(ctx, DefaultStoreKey)
	assert.ErrorIs(t, err, tokenstore.ErrNotFound, "nothing is persisted after logout")
}

func TestProvider_FailedRefreshKeepsNewerLogin(t *testing.T) {
	idp := &fakeIdentityProvider{
		refreshGate:    make(chan struct{}),
		refreshEntered: make(chan struct{}, 1),
		refreshErr:     errors.New("refresh token revoked"),
	}
	store := tokenstore.NewMemoryStore()
	ctx := context.Background()
	p := newTestProvider(t, idp, WithStore(store), WithToken(&Token{AccessToken: "stale", RefreshToken: "r"}))

	done := make(chan error, 1)
	go func() { done <- p.Refresh(ctx) }()
	<-idp.refreshEntered

	require.NoError(t, p.Login(ctx, Credentials{Username: "u", Password: "p"}))

	close(idp.refreshGate)
	assert.Error(t, <-done)

	token, ok := p.Token()
	assert.True(t, ok, "the failed refresh does not log out a session that replaced it")
	assert.Equal(t, "access-0", token)
	record, err := store.Load(ctx, DefaultStoreKey)
	require.NoError(t, err)
	assert.Equal(t, "access-0", record.AccessToken)
}

func TestProvider_RestoreDuringRefreshWins(t *testing.T) {
	idp := &fakeIdentityProvider{refreshGate: make(chan struct{}), refreshEntered: make(chan struct{}, 1)}
	store := tokenstore.NewMemoryStore()
	ctx := context.Background()
	p := newTestProvider(t, idp, WithStore(store), WithToken(&Token{AccessToken: "stale", RefreshToken: "r"}))

	done := make(chan error, 1)
	go func() { done <- p.Refresh(ctx) }()
	<-idp.refreshEntered

	require.NoError(t, store.Save(ctx, DefaultStoreKey, &tokenstore.Record{AccessToken: "persisted", RefreshToken: "r2"}))
	require.NoError(t, p.Restore(ctx))

	close(idp.refreshGate)
	assert.ErrorIs(t, <-done, ErrSessionChanged)
	token, _ := p.Token()
	assert.Equal(t, "persisted", token)
}

func TestProvider_RejectionOfCurrentTokenAlwaysRefreshes(t *testing.T) {
	for i := 0; i < 50; i++ {
		idp := &fakeIdentityProvider{}
		p := newTestProvider(t, idp, WithToken(&Token{AccessToken: "current", RefreshToken: "r"}))

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, p.RefreshAfterRejection(context.Background(), "long-gone"))
			}()
		}
		err := p.RefreshAfterRejection(context.Background(), "current")
		wg.Wait()

		require.NoError(t, err)
		token, _ := p.Token()
		require.NotEqual(t, "current", token, "a caller whose token was rejected never returns without a refresh")
		assert.Equal(t, int32(1), idp.refreshCalls.Load())
	}
}
