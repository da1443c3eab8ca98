// httpclient/config.go
// Description: This file contains the client configuration, its defaults, validation, and
// functions to load it from a JSON file or environment variables.
package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-session-client/headers"
	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/status"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevelString          = "LogLevelInfo"
	DefaultLogOutputFormatString   = logger.LogOutputPretty
	DefaultLogConsoleSeparator     = "\t"
	DefaultLogExportPath           = "logs"
	DefaultMaxConcurrentRequests   = 10
	DefaultCustomTimeout           = 10 * time.Second
	DefaultMaxRedirects            = 5
	DefaultAuthFailureStatusCode   = status.DefaultAuthFailureStatusCode
	DefaultNoCredentialPlaceholder = headers.DefaultNoCredentialPlaceholder
	DefaultContentType             = "application/json"
	DefaultAccept                  = "application/json"

	// EnvPrefix is prepended to every key read by LoadConfigFromEnv, e.g. SESSIONCLIENT_BASE_URL.
	EnvPrefix = "SESSIONCLIENT"
)

// ClientConfig holds every option of the authenticated client.
type ClientConfig struct {
	// BaseURL is prepended to relative request paths. Absolute URLs are used as given.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// Log
	LogLevel            string `mapstructure:"log_level" json:"log_level"`
	LogOutputFormat     string `mapstructure:"log_output_format" json:"log_output_format"` // "json", "console" or "pretty"
	LogConsoleSeparator string `mapstructure:"log_console_separator" json:"log_console_separator"`
	ExportLogs          bool   `mapstructure:"export_logs" json:"export_logs"`
	LogExportPath       string `mapstructure:"log_export_path" json:"log_export_path"`
	HideSensitiveData   bool   `mapstructure:"hide_sensitive_data" json:"hide_sensitive_data"`

	// Cookies
	CookieJarEnabled bool              `mapstructure:"cookie_jar_enabled" json:"cookie_jar_enabled"`
	CustomCookies    map[string]string `mapstructure:"custom_cookies" json:"custom_cookies"`

	// Headers
	ContentType   string            `mapstructure:"content_type" json:"content_type"`
	Accept        string            `mapstructure:"accept" json:"accept"`
	CustomHeaders map[string]string `mapstructure:"custom_headers" json:"custom_headers"`

	// Authorization
	AuthFailureStatusCode    int           `mapstructure:"auth_failure_status_code" json:"auth_failure_status_code"`
	NoCredentialPlaceholder  string        `mapstructure:"no_credential_placeholder" json:"no_credential_placeholder"`
	TokenRefreshBufferPeriod time.Duration `mapstructure:"token_refresh_buffer_period" json:"token_refresh_buffer_period"`
	// ShareRetryEpisodes makes a route that already used its refresh+retry skip the refresh for
	// later requests until one of them succeeds.
	ShareRetryEpisodes bool `mapstructure:"share_retry_episodes" json:"share_retry_episodes"`

	// Transport
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" json:"max_concurrent_requests"`
	// EnableConcurrencyManagement lowers the concurrency limit on 429/5xx responses and raises it
	// back towards MaxConcurrentRequests after a run of fast successes.
	EnableConcurrencyManagement bool          `mapstructure:"enable_concurrency_management" json:"enable_concurrency_management"`
	CustomTimeout               time.Duration `mapstructure:"custom_timeout" json:"custom_timeout"`
	FollowRedirects             bool          `mapstructure:"follow_redirects" json:"follow_redirects"`
	MaxRedirects                int           `mapstructure:"max_redirects" json:"max_redirects"`

	// Proxy
	ProxyURL       string `mapstructure:"proxy_url" json:"proxy_url"`
	ProxyUsername  string `mapstructure:"proxy_username" json:"proxy_username"`
	ProxyPassword  string `mapstructure:"proxy_password" json:"proxy_password"`
	ProxyAuthToken string `mapstructure:"proxy_auth_token" json:"proxy_auth_token"`
}

// SetDefaultValuesClientConfig fills zero-valued fields with the package defaults.
func SetDefaultValuesClientConfig(config *ClientConfig) {
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevelString
	}
	if config.LogOutputFormat == "" {
		config.LogOutputFormat = DefaultLogOutputFormatString
	}
	if config.LogConsoleSeparator == "" {
		config.LogConsoleSeparator = DefaultLogConsoleSeparator
	}
	if config.ExportLogs && config.LogExportPath == "" {
		config.LogExportPath = DefaultLogExportPath
	}
	if config.ContentType == "" {
		config.ContentType = DefaultContentType
	}
	if config.Accept == "" {
		config.Accept = DefaultAccept
	}
	if config.AuthFailureStatusCode == 0 {
		config.AuthFailureStatusCode = DefaultAuthFailureStatusCode
	}
	if config.NoCredentialPlaceholder == "" {
		config.NoCredentialPlaceholder = DefaultNoCredentialPlaceholder
	}
	if config.MaxConcurrentRequests == 0 {
		config.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if config.CustomTimeout == 0 {
		config.CustomTimeout = DefaultCustomTimeout
	}
	if config.FollowRedirects && config.MaxRedirects == 0 {
		config.MaxRedirects = DefaultMaxRedirects
	}
}

func validateClientConfig(config ClientConfig) error {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL: %q", config.BaseURL)
		}
	}

	if !slices.Contains(logger.ValidLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validLogFormats := []string{logger.LogOutputJSON, logger.LogOutputConsole, logger.LogOutputPretty}
	if !slices.Contains(validLogFormats, config.LogOutputFormat) {
		return fmt.Errorf("invalid log output format: %s", config.LogOutputFormat)
	}

	if config.ExportLogs && config.LogExportPath == "" {
		return errors.New("log export path is required when exporting logs")
	}

	if config.AuthFailureStatusCode != 0 && (config.AuthFailureStatusCode < 400 || config.AuthFailureStatusCode > 599) {
		return fmt.Errorf("authorization failure status code must be a 4xx or 5xx status: %d", config.AuthFailureStatusCode)
	}

	if strings.ContainsAny(config.NoCredentialPlaceholder, " \t\r\n") {
		return errors.New("no-credential placeholder cannot contain whitespace")
	}

	if config.MaxConcurrentRequests < 0 {
		return errors.New("maximum concurrent requests cannot be less than 0")
	}

	if config.CustomTimeout < 0 {
		return errors.New("timeout cannot be less than 0 seconds")
	}

	if config.TokenRefreshBufferPeriod < 0 {
		return errors.New("refresh buffer period cannot be less than 0 seconds")
	}

	if config.FollowRedirects && config.MaxRedirects < 1 {
		return errors.New("max redirects cannot be less than 1")
	}

	return nil
}

// configKeys lists every ClientConfig key so viper resolves them from the environment.
var configKeys = []string{
	"base_url",
	"log_level", "log_output_format", "log_console_separator", "export_logs", "log_export_path", "hide_sensitive_data",
	"cookie_jar_enabled",
	"content_type", "accept",
	"auth_failure_status_code", "no_credential_placeholder", "token_refresh_buffer_period", "share_retry_episodes",
	"max_concurrent_requests", "enable_concurrency_management", "custom_timeout", "follow_redirects", "max_redirects",
	"proxy_url", "proxy_username", "proxy_password", "proxy_auth_token",
}

// LoadConfigFromFile reads a JSON (or any viper supported format, by extension) configuration file.
// Durations are Go duration strings such as "30s". Defaults are applied to unset fields.
func LoadConfigFromFile(configPath string) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}
	return decodeConfig(v)
}

// LoadConfigFromEnv reads the configuration from SESSIONCLIENT_* environment variables,
// e.g. SESSIONCLIENT_BASE_URL or SESSIONCLIENT_CUSTOM_TIMEOUT=30s.
func LoadConfigFromEnv() (*ClientConfig, error) {
	v := viper.New()
	BindEnv(v, EnvPrefix)
	return decodeConfig(v)
}

// BindEnv makes v resolve every client configuration key from <prefix>_<KEY> environment variables.
func BindEnv(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
}

// ConfigFromViper decodes a ClientConfig from an already populated viper instance.
func ConfigFromViper(v *viper.Viper) (*ClientConfig, error) {
	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (*ClientConfig, error) {
	config := &ClientConfig{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decoding client configuration: %w", err)
	}
	SetDefaultValuesClientConfig(config)
	return config, nil
}
