// tokenstore/tokenstore.go
// Package tokenstore persists the refresh material issued by an identity provider so a
// session can be restored after a process restart.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no record exists for the key.
var ErrNotFound = errors.New("token record not found")

// Record is the persisted form of a session token.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store loads, saves and deletes token records by key.
type Store interface {
	Load(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, key string, record *Record) error
	Delete(ctx context.Context, key string) error
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
