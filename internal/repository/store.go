package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/intranet/auth-server-go/internal/database"
)

// IdentityStore groups the repositories of the identity database. WithTx runs
// fn against repositories bound to a single transaction.
type IdentityStore interface {
	Users() UserRepository
	LoginAttempts() LoginAttemptRepository
	Invitations() InvitationRepository
	WithTx(ctx context.Context, fn func(IdentityStore) error) error
}

// ContentStore groups the repositories of the application content database.
type ContentStore interface {
	Profiles() ProfileRepository
}

type identityStore struct {
	db *database.DB
	q  database.DBTX
}

func NewIdentityStore(db *database.DB) IdentityStore {
	return &identityStore{db: db, q: db}
}

func (s *identityStore) Users() UserRepository { return NewUserRepository(s.q) }
func (s *identityStore) LoginAttempts() LoginAttemptRepository { return NewLoginAttemptRepository(s.q) }
func (s *identityStore) Invitations() InvitationRepository { return NewInvitationRepository(s.q) }

// WithTx joins the current transaction when called on a transactional store.
func (s *identityStore) WithTx(ctx context.Context, fn func(IdentityStore) error) error {
	if s.db == nil {
		return fn(s)
	}
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&identityStore{q: tx})
	})
}

type contentStore struct {
	q database.DBTX
}

func NewContentStore(db *database.DB) ContentStore {
	return &contentStore{q: db}
}

func (s *contentStore) Profiles() ProfileRepository {
	return NewProfileRepository(s.q)
}
