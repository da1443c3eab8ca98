// session/login.go
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/deploymenttheory/go-api-session-client/headers/redact"
	"go.uber.org/zap"
)

// Login authenticates with the identity provider and stores the issued token.
func (p *Provider) Login(ctx context.Context, creds Credentials) error {
	if p.idp == nil {
		return ErrNoIdentityProvider
	}

	p.log.Debug("Attempting to obtain token", zap.String("Username", creds.Username), zap.String("ClientID", creds.ClientID))

	token, err := p.idp.Login(ctx, creds)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if token == nil || token.AccessToken == "" {
		return errors.New("logging in: identity provider returned an empty access token")
	}

	p.setToken(ctx, token, ReasonLogin)

	expiry, _ := p.Expiry()
	p.log.Info("Token obtained successfully",
		zap.String("AccessToken", redact.RedactSensitiveHeaderData(p.hideSensitiveData, "AccessToken", token.AccessToken)),
		zap.Time("Expiry", expiry),
	)
	return nil
}

// Logout ends the session. The identity provider is told on a best-effort basis; the local
// token and persisted material are removed regardless, and the provider error is returned.
func (p *Provider) Logout(ctx context.Context) error {
	current, _ := p.snapshot()

	var idpErr error
	if p.idp != nil && current != nil {
		if err := p.idp.Logout(ctx, current); err != nil {
			p.log.Warn("Identity provider logout failed", zap.Error(err))
			idpErr = fmt.Errorf("logging out: %w", err)
		}
	}

	p.clearToken(ctx, ReasonLogout)
	p.log.Info("Session logged out")
	return idpErr
}

// Restore loads a previously persisted token from the store. tokenstore.ErrNotFound is
// returned when there is nothing to restore.
func (p *Provider) Restore(ctx context.Context) error {
	record, err := p.store.Load(ctx, p.storeKey)
	if err != nil {
		return err
	}

	token := fromRecord(record)
	p.mu.Lock()
	p.token = token
	p.generation++
	p.mu.Unlock()

	expiry, _ := p.Expiry()
	p.notify(TokenChange{Reason: ReasonRestore, Authenticated: token.AccessToken != "", Expiry: expiry})
	p.log.Debug("Session restored from token store", zap.String("key", p.storeKey))
	return nil
}
