package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-session-client/httpclient"
	"github.com/deploymenttheory/go-api-session-client/identity/oauth"
	"github.com/deploymenttheory/go-api-session-client/identity/tokenendpoint"
	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/session"
	"github.com/deploymenttheory/go-api-session-client/tokenstore"
	"github.com/deploymenttheory/go-api-session-client/version"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "SESSIONCTL"

const (
	identityTokenEndpoint = "token-endpoint"
	identityOAuth         = "oauth"

	storeFile   = "file"
	storeRedis  = "redis"
	storeMemory = "memory"
)

// app carries the resolved settings of one invocation.
type app struct {
	v *viper.Viper
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Authenticated API session client",
		Long:          "Log in against an identity provider, persist the session and send authenticated API requests that refresh the token on demand.",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bindFlags(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Client configuration file (JSON)")
	flags.String("base-url", "", "Base URL of the API")
	flags.String("log-level", "LogLevelWarn", "Log level, e.g. LogLevelDebug")
	flags.String("identity", identityTokenEndpoint, "Identity provider: token-endpoint or oauth")
	flags.String("auth-url", "", "Token endpoint base URL, or the OAuth token URL")
	flags.String("revocation-url", "", "OAuth token revocation URL")
	flags.String("grant-type", oauth.GrantTypePassword, "OAuth grant type: password or client_credentials")
	flags.String("client-id", "", "OAuth client ID")
	flags.String("client-secret", "", "OAuth client secret")
	flags.StringSlice("scopes", nil, "OAuth scopes")
	flags.String("username", "", "Username")
	flags.String("password", "", "Password")
	flags.String("store", storeFile, "Token store: file, redis or memory")
	flags.String("store-path", defaultStorePath(), "Token file used by the file store")
	flags.String("store-key", session.DefaultStoreKey, "Key the session is saved under")
	flags.String("redis-addr", "localhost:6379", "Redis address used by the redis store")
	flags.Duration("redis-ttl", 24*time.Hour, "Expiry of session records in redis")
	flags.Bool("hide-sensitive-data", true, "Redact tokens in log output")

	rootCmd.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newStatusCommand(a),
		newRequestCommand(a),
	)
	return rootCmd
}

// bindFlags makes every flag resolvable from SESSIONCTL_* environment variables, flags winning.
func (a *app) bindFlags(cmd *cobra.Command) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sessionctl", "tokens.json")
}

func (a *app) logger() logger.Logger {
	level := logger.ParseLogLevelFromString(a.v.GetString("log-level"))
	if level == logger.LogLevelNone {
		level = logger.LogLevelWarn
	}
	// Logs go to stderr so response bodies on stdout stay pipeable.
	cfg := zap.NewProductionConfig()
	cfg.Encoding = logger.LogOutputConsole
	cfg.EncoderConfig.ConsoleSeparator = "\t"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(level))
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	zl, err := cfg.Build()
	if err != nil {
		return logger.NewNopLogger()
	}
	return logger.NewLogger(zl, level)
}

// tokenStore returns the configured store and a function releasing its connections.
func (a *app) tokenStore() (tokenstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch a.v.GetString("store") {
	case storeFile:
		return tokenstore.NewFileStore(a.v.GetString("store-path")), noop, nil
	case storeRedis:
		client := redis.NewClient(&redis.Options{Addr: a.v.GetString("redis-addr")})
		return tokenstore.NewRedisStore(client, tokenstore.DefaultRedisKeyPrefix, a.v.GetDuration("redis-ttl")), client.Close, nil
	case storeMemory:
		return tokenstore.NewMemoryStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store: %s", a.v.GetString("store"))
	}
}

func (a *app) identityProvider(log logger.Logger) (session.IdentityProvider, error) {
	authURL := a.v.GetString("auth-url")
	if authURL == "" {
		authURL = a.v.GetString("base-url")
	}

	switch a.v.GetString("identity") {
	case identityTokenEndpoint:
		return tokenendpoint.New(tokenendpoint.Config{
			BaseURL:           authURL,
			HideSensitiveData: a.v.GetBool("hide-sensitive-data"),
		}, log)
	case identityOAuth:
		return oauth.New(oauth.Config{
			ClientID:          a.v.GetString("client-id"),
			ClientSecret:      a.v.GetString("client-secret"),
			TokenURL:          authURL,
			RevocationURL:     a.v.GetString("revocation-url"),
			Scopes:            a.v.GetStringSlice("scopes"),
			GrantType:         a.v.GetString("grant-type"),
			HideSensitiveData: a.v.GetBool("hide-sensitive-data"),
		}, log)
	default:
		return nil, fmt.Errorf("unknown identity provider: %s", a.v.GetString("identity"))
	}
}

// session builds the session provider and restores a previously saved session, if any.
// The returned function closes the token store and must be called when the command is done.
func (a *app) session(ctx context.Context, log logger.Logger) (*session.Provider, func() error, error) {
	idp, err := a.identityProvider(log)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := a.tokenStore()
	if err != nil {
		return nil, nil, err
	}

	provider := session.NewProvider(idp, log,
		session.WithStore(store),
		session.WithStoreKey(a.v.GetString("store-key")),
		session.WithHideSensitiveData(a.v.GetBool("hide-sensitive-data")),
	)
	if err := provider.Restore(ctx); err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		_ = closeStore()
		return nil, nil, fmt.Errorf("restoring session: %w", err)
	}
	return provider, closeStore, nil
}

func (a *app) credentials() session.Credentials {
	return session.Credentials{
		Username:     a.v.GetString("username"),
		Password:     a.v.GetString("password"),
		ClientID:     a.v.GetString("client-id"),
		ClientSecret: a.v.GetString("client-secret"),
		Scopes:       a.v.GetStringSlice("scopes"),
	}
}

// clientConfig loads the configuration file when given, SESSIONCLIENT_* variables otherwise.
// --base-url overrides either source.
func (a *app) clientConfig() (*httpclient.ClientConfig, error) {
	var (
		config *httpclient.ClientConfig
		err    error
	)
	if path := a.v.GetString("config"); path != "" {
		config, err = httpclient.LoadConfigFromFile(path)
	} else {
		config, err = httpclient.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if baseURL := a.v.GetString("base-url"); baseURL != "" {
		config.BaseURL = baseURL
	}
	if config.BaseURL == "" {
		return nil, errors.New("a base URL is required (--base-url or SESSIONCTL_BASE_URL)")
	}
	return config, nil
}
