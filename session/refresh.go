// session/refresh.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-api-session-client/headers/redact"
	"go.uber.org/zap"
)

const refreshKey = "refresh"

// Refresh obtains a new access token from the identity provider. Concurrent calls share one
// round trip. On failure the session is logged out and the error is returned; it is not retried.
func (p *Provider) Refresh(ctx context.Context) error {
	return p.refresh(ctx, nil)
}

// RefreshWithCallbacks is Refresh with optional callbacks invoked after the outcome is known.
func (p *Provider) RefreshWithCallbacks(ctx context.Context, onSuccess func(), onFailure func(error)) error {
	err := p.refresh(ctx, nil)
	if err != nil {
		if onFailure != nil {
			onFailure(err)
		}
		return err
	}
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

// RefreshAfterRejection refreshes unless the token already changed since rejected was sent.
// A request that failed with a token another request has since replaced needs no new round trip,
// so a burst of authorization failures costs one identity provider call.
func (p *Provider) RefreshAfterRejection(ctx context.Context, rejected string) error {
	return p.refresh(ctx, &rejected)
}

// refresh joins or starts the shared refresh. A shared call started by another caller may
// skip the round trip on that caller's behalf; when nothing was committed and this caller
// still needs a new token, it goes once more.
func (p *Provider) refresh(ctx context.Context, rejected *string) error {
	for attempt := 0; attempt < 2; attempt++ {
		current, generation := p.snapshot()
		if replacedSince(current, rejected) {
			p.log.Debug("Token already replaced since rejection, skipping refresh")
			return nil
		}
		if err := p.sharedRefresh(ctx, rejected); err != nil {
			return err
		}
		if _, now := p.snapshot(); now != generation {
			return nil
		}
	}
	return nil
}

func (p *Provider) sharedRefresh(ctx context.Context, rejected *string) error {
	ch := p.group.DoChan(refreshKey, func() (any, error) {
		if current, _ := p.snapshot(); replacedSince(current, rejected) {
			return nil, nil
		}
		// Detached so one caller's cancellation does not fail the refresh for everyone sharing it.
		refreshCtx := context.WithoutCancel(ctx)
		if p.refreshTimeout > 0 {
			var cancel context.CancelFunc
			refreshCtx, cancel = context.WithTimeout(refreshCtx, p.refreshTimeout)
			defer cancel()
		}
		return nil, p.doRefresh(refreshCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func replacedSince(current *Token, rejected *string) bool {
	return rejected != nil && current != nil && current.AccessToken != "" && current.AccessToken != *rejected
}

// doRefresh commits its outcome only if no Login, Logout or Restore replaced the session
// while the identity provider was being called.
func (p *Provider) doRefresh(ctx context.Context) error {
	if p.idp == nil {
		return ErrNoIdentityProvider
	}

	current, generation := p.snapshot()

	start := time.Now()
	if current == nil {
		p.log.LogTokenRefresh("token_refresh", false, time.Since(start), ErrNoRefreshMaterial)
		p.commitToken(ctx, nil, ReasonRefreshFailed, &generation)
		return ErrNoRefreshMaterial
	}

	p.log.Debug("Attempting to refresh token",
		zap.String("RefreshToken", redact.RedactSensitiveHeaderData(p.hideSensitiveData, "RefreshToken", current.RefreshToken)),
	)

	token, err := p.idp.RefreshToken(ctx, current)
	if err == nil && (token == nil || token.AccessToken == "") {
		err = fmt.Errorf("identity provider returned an empty access token")
	}
	if err != nil {
		p.log.LogTokenRefresh("token_refresh", false, time.Since(start), err)
		if !p.commitToken(ctx, nil, ReasonRefreshFailed, &generation) {
			p.log.Info("Session changed during failed refresh; keeping the current session")
		}
		return fmt.Errorf("refreshing session token: %w", err)
	}

	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
	}
	if !p.commitToken(ctx, token, ReasonRefresh, &generation) {
		p.log.Info("Session changed during refresh; discarding the refreshed token")
		return ErrSessionChanged
	}

	p.log.LogTokenRefresh("token_refresh", true, time.Since(start), nil)
	return nil
}
