package httpclient

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultValuesClientConfig(t *testing.T) {
	config := ClientConfig{FollowRedirects: true, ExportLogs: true}
	SetDefaultValuesClientConfig(&config)

	assert.Equal(t, DefaultLogLevelString, config.LogLevel)
	assert.Equal(t, DefaultLogOutputFormatString, config.LogOutputFormat)
	assert.Equal(t, DefaultLogExportPath, config.LogExportPath)
	assert.Equal(t, DefaultContentType, config.ContentType)
	assert.Equal(t, DefaultAccept, config.Accept)
	assert.Equal(t, http.StatusUnauthorized, config.AuthFailureStatusCode)
	assert.Equal(t, "null", config.NoCredentialPlaceholder)
	assert.Equal(t, DefaultMaxConcurrentRequests, config.MaxConcurrentRequests)
	assert.Equal(t, DefaultCustomTimeout, config.CustomTimeout)
	assert.Equal(t, DefaultMaxRedirects, config.MaxRedirects)
	assert.False(t, config.ShareRetryEpisodes)
}

func TestValidateClientConfig(t *testing.T) {
	valid := func() ClientConfig {
		config := ClientConfig{BaseURL: "https://api.example.com"}
		SetDefaultValuesClientConfig(&config)
		return config
	}

	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*ClientConfig) {}},
		{name: "base url without scheme", mutate: func(c *ClientConfig) { c.BaseURL = "api.example.com" }, wantErr: "invalid base URL"},
		{name: "unknown log level", mutate: func(c *ClientConfig) { c.LogLevel = "verbose" }, wantErr: "invalid log level"},
		{name: "unknown log format", mutate: func(c *ClientConfig) { c.LogOutputFormat = "xml" }, wantErr: "invalid log output format"},
		{name: "auth failure status out of range", mutate: func(c *ClientConfig) { c.AuthFailureStatusCode = 200 }, wantErr: "4xx or 5xx"},
		{name: "placeholder with whitespace", mutate: func(c *ClientConfig) { c.NoCredentialPlaceholder = "no token" }, wantErr: "whitespace"},
		{name: "negative concurrency", mutate: func(c *ClientConfig) { c.MaxConcurrentRequests = -1 }, wantErr: "concurrent"},
		{name: "negative timeout", mutate: func(c *ClientConfig) { c.CustomTimeout = -time.Second }, wantErr: "timeout"},
		{name: "negative buffer", mutate: func(c *ClientConfig) { c.TokenRefreshBufferPeriod = -time.Second }, wantErr: "buffer"},
		{name: "redirects without limit", mutate: func(c *ClientConfig) { c.FollowRedirects = true; c.MaxRedirects = 0 }, wantErr: "max redirects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)
			err := validateClientConfig(config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildClient_RequiresTokenSource(t *testing.T) {
	_, err := BuildClient(ClientConfig{}, nil, true)
	assert.Error(t, err)
}

func TestBuildClient_RejectsInvalidConfig(t *testing.T) {
	_, err := BuildClient(ClientConfig{LogLevel: "loud"}, newFakeTokenSource("token"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestBuildClient_CookieJarAndRedirects(t *testing.T) {
	client := newTestClient(t, "https://api.example.com", newFakeTokenSource("token"), func(c *ClientConfig) {
		c.CookieJarEnabled = true
		c.FollowRedirects = true
		c.MaxRedirects = 3
	})
	assert.NotNil(t, client.HTTPClient().Jar)
	assert.NotNil(t, client.HTTPClient().CheckRedirect)
	assert.NotNil(t, client.Concurrency)
	assert.Equal(t, DefaultMaxConcurrentRequests, client.Concurrency.Limit())
	assert.Equal(t, DefaultCustomTimeout, client.HTTPClient().Timeout)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	content := `{
		"base_url": "https://api.example.com",
		"log_level": "LogLevelDebug",
		"auth_failure_status_code": 419,
		"no_credential_placeholder": "anonymous",
		"share_retry_episodes": true,
		"custom_timeout": "30s",
		"token_refresh_buffer_period": "2m",
		"max_concurrent_requests": 4,
		"custom_headers": {"X-Tenant": "acme"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", config.BaseURL)
	assert.Equal(t, "LogLevelDebug", config.LogLevel)
	assert.Equal(t, 419, config.AuthFailureStatusCode)
	assert.Equal(t, "anonymous", config.NoCredentialPlaceholder)
	assert.True(t, config.ShareRetryEpisodes)
	assert.Equal(t, 30*time.Second, config.CustomTimeout)
	assert.Equal(t, 2*time.Minute, config.TokenRefreshBufferPeriod)
	assert.Equal(t, 4, config.MaxConcurrentRequests)
	assert.Equal(t, DefaultAccept, config.Accept)
	assert.NoError(t, validateClientConfig(*config))
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SESSIONCLIENT_BASE_URL", "https://env.example.com")
	t.Setenv("SESSIONCLIENT_AUTH_FAILURE_STATUS_CODE", "403")
	t.Setenv("SESSIONCLIENT_CUSTOM_TIMEOUT", "45s")
	t.Setenv("SESSIONCLIENT_HIDE_SENSITIVE_DATA", "true")

	config, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", config.BaseURL)
	assert.Equal(t, 403, config.AuthFailureStatusCode)
	assert.Equal(t, 45*time.Second, config.CustomTimeout)
	assert.True(t, config.HideSensitiveData)
	assert.Equal(t, "null", config.NoCredentialPlaceholder)
}
