package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/session"
	"github.com/stretchr/testify/require"
)

// fakeTokenSource holds a token in memory. Refresh replaces it with next, or fails with refreshErr.
type fakeTokenSource struct {
	mu      sync.Mutex
	token   string
	present bool

	next       string
	refreshErr error
	refreshes  atomic.Int32
}

func newFakeTokenSource(token string) *fakeTokenSource {
	return &fakeTokenSource{token: token, present: token != ""}
}

func (f *fakeTokenSource) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.present
}

func (f *fakeTokenSource) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		f.token, f.present = "", false
		return f.refreshErr
	}
	f.token, f.present = f.next, f.next != ""
	return nil
}

// countingIdentityProvider issues "valid-token" on login and "refreshed-N" on refresh.
type countingIdentityProvider struct {
	refreshCalls atomic.Int32
	refreshDelay time.Duration
	refreshErr   error
}

func (p *countingIdentityProvider) Login(ctx context.Context, creds session.Credentials) (*session.Token, error) {
	return &session.Token{AccessToken: "valid-token", RefreshToken: "refresh-material"}, nil
}

func (p *countingIdentityProvider) Logout(ctx context.Context, token *session.Token) error {
	return nil
}

func (p *countingIdentityProvider) RefreshToken(ctx context.Context, current *session.Token) (*session.Token, error) {
	n := p.refreshCalls.Add(1)
	if p.refreshDelay > 0 {
		time.Sleep(p.refreshDelay)
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return &session.Token{AccessToken: fmt.Sprintf("refreshed-%d", n)}, nil
}

// recordingServer answers with handler and records the Authorization header of every request.
type recordingServer struct {
	*httptest.Server
	mu    sync.Mutex
	auths []string
}

func newRecordingServer(t *testing.T, handler http.HandlerFunc) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.auths = append(rs.auths, r.Header.Get("Authorization"))
		rs.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) authorizations() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.auths...)
}

func newTestClient(t *testing.T, baseURL string, tokens TokenSource, mutate ...func(*ClientConfig)) *Client {
	t.Helper()
	config := ClientConfig{BaseURL: baseURL}
	for _, fn := range mutate {
		fn(&config)
	}
	client, err := BuildClient(config, tokens, true, WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	return client
}
