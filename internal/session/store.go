// Package session persists server-side session state. Keys are opaque
// strings derived from the session cookie; values are model.Session.
package session

import (
	"context"
	"time"

	"github.com/intranet/auth-server-go/internal/model"
)

type Store interface {
	// Get returns nil without error when key is unknown or expired.
	Get(ctx context.Context, key string) (*model.Session, error)
	Put(ctx context.Context, key string, s *model.Session, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
