package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/deploymenttheory/go-api-session-client/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI issues tokens from the token endpoint and serves /api/widgets to the current token only.
type fakeAPI struct {
	mu        sync.Mutex
	issued    int
	current   string
	refreshes int
}

func (f *fakeAPI) issue() string {
	f.issued++
	f.current = fmt.Sprintf("token-%d", f.issued)
	return f.current
}

// expire invalidates the current token while leaving it usable for keep-alive.
func (f *fakeAPI) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = "expired:" + f.current
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeToken := func(w http.ResponseWriter, token string) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":   token,
			"expires": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	}

	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		token := f.issue()
		f.mu.Unlock()
		writeToken(w, token)
	})
	mux.HandleFunc("/api/v1/auth/keep-alive", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if presented == "null" || presented == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.refreshes++
		writeToken(w, f.issue())
	})
	mux.HandleFunc("/api/v1/auth/invalidate-token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.current = ""
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/widgets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		current := f.current
		f.mu.Unlock()
		if current == "" || r.Header.Get("Authorization") != "Bearer "+current {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"gear"}]`))
	})
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := new(bytes.Buffer)
		_, _ = body.ReadFrom(r.Body)
		_, _ = w.Write(body.Bytes())
	})
	return mux
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func cliArgs(srv *httptest.Server, storePath string, args ...string) []string {
	return append(args,
		"--base-url", srv.URL,
		"--store", "file",
		"--store-path", storePath,
		"--username", "admin",
		"--password", "secret",
		"--log-level", "LogLevelFatal",
	)
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"login", "logout", "status", "request"}, names)

	for _, flag := range []string{"base-url", "identity", "store", "store-path", "redis-addr"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestSessionLifecycle(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()
	storePath := filepath.Join(t.TempDir(), "tokens.json")

	out, err := runCLI(t, cliArgs(srv, storePath, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated: false")

	out, err = runCLI(t, cliArgs(srv, storePath, "login")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")

	out, err = runCLI(t, cliArgs(srv, storePath, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated: true")
	assert.Contains(t, out, "(valid)")

	out, err = runCLI(t, cliArgs(srv, storePath, "request", "GET", "/api/widgets")...)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"gear"}]`, out)

	api.expire()
	out, err = runCLI(t, cliArgs(srv, storePath, "request", "GET", "/api/widgets", "--include")...)
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK")
	assert.Equal(t, 1, api.refreshes)

	out, err = runCLI(t, cliArgs(srv, storePath, "logout")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, err = runCLI(t, cliArgs(srv, storePath, "status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated: false")

	_, err = runCLI(t, cliArgs(srv, storePath, "request", "GET", "/api/widgets")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal_auth")
}

func TestRequestCommand_DataFromFile(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()
	dir := t.TempDir()
	bodyPath := filepath.Join(dir, "widget.json")
	require.NoError(t, os.WriteFile(bodyPath, []byte(`{"name":"sprocket"}`), 0o600))
	outPath := filepath.Join(dir, "response.json")

	_, err := runCLI(t, cliArgs(srv, filepath.Join(dir, "tokens.json"),
		"request", "POST", "/api/echo", "--data", "@"+bodyPath, "--output", outPath)...)
	require.NoError(t, err)

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"sprocket"}`, string(written))
}

func TestLoginCommand_BadCredentials(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	args := cliArgs(srv, filepath.Join(t.TempDir(), "tokens.json"), "login")
	args = append(args, "--password", "wrong")
	_, err := runCLI(t, args...)
	assert.Error(t, err)
}

func TestRequestCommand_RequiresBaseURL(t *testing.T) {
	_, err := runCLI(t, "request", "GET", "/api/widgets", "--store", "memory", "--auth-url", "https://auth.example.com", "--log-level", "LogLevelFatal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")
}

func TestUnknownStore(t *testing.T) {
	_, err := runCLI(t, "status", "--store", "floppy", "--auth-url", "https://auth.example.com", "--log-level", "LogLevelFatal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown token store")
}

func TestReadData(t *testing.T) {
	data, err := readData(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	_, err = readData("@/does/not/exist.json")
	assert.Error(t, err)
}

func TestRedisStoreIsClosedAfterUse(t *testing.T) {
	mr := miniredis.RunT(t)
	v := viper.New()
	v.Set("store", storeRedis)
	v.Set("redis-addr", mr.Addr())
	a := &app{v: v}

	store, closeStore, err := a.tokenStore()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "default", &tokenstore.Record{AccessToken: "a"}))
	assert.True(t, mr.Exists(tokenstore.DefaultRedisKeyPrefix+"default"))

	require.NoError(t, closeStore())
	err = store.Save(ctx, "default", &tokenstore.Record{AccessToken: "b"})
	assert.ErrorIs(t, err, redis.ErrClosed)
}
