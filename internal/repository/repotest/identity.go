// Package repotest provides in-memory stores for tests that exercise services
// and handlers without a database.
package repotest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
)

type identityData struct {
	users       map[string]model.User
	attempts    []model.LoginAttempt
	invitations map[string]model.Invitation
	nextAttempt int64
}

func (d *identityData) clone() *identityData {
	c := &identityData{
		users:       make(map[string]model.User, len(d.users)),
		attempts:    slices.Clone(d.attempts),
		invitations: make(map[string]model.Invitation, len(d.invitations)),
		nextAttempt: d.nextAttempt,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.invitations {
		c.invitations[k] = v
	}
	return c
}

// IdentityStore is an in-memory repository.IdentityStore. Transactions are
// serialized and roll back to a snapshot when fn fails.
type IdentityStore struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *identityData
	err  error

	beforeMarkAccepted func(token string)
}

var _ repository.IdentityStore = (*IdentityStore)(nil)

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{data: &identityData{
		users:       map[string]model.User{},
		invitations: map[string]model.Invitation{},
	}}
}

// FailWith makes every subsequent operation return err. nil restores service.
func (s *IdentityStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// BeforeMarkAccepted registers fn to run, outside any lock, just before the
// conditional accept update. Tests use it to let another redeemer win.
func (s *IdentityStore) BeforeMarkAccepted(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeMarkAccepted = fn
}

func (s *IdentityStore) Users() repository.UserRepository                 { return &users{s} }
func (s *IdentityStore) LoginAttempts() repository.LoginAttemptRepository { return &attempts{s} }
func (s *IdentityStore) Invitations() repository.InvitationRepository     { return &invitations{s} }

func (s *IdentityStore) WithTx(ctx context.Context, fn func(repository.IdentityStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(txView{s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

type txView struct {
	s *IdentityStore
}

func (v txView) Users() repository.UserRepository                 { return v.s.Users() }
func (v txView) LoginAttempts() repository.LoginAttemptRepository { return v.s.LoginAttempts() }
func (v txView) Invitations() repository.InvitationRepository     { return v.s.Invitations() }

func (v txView) WithTx(ctx context.Context, fn func(repository.IdentityStore) error) error {
	return fn(v)
}

// do runs fn under the data lock unless a failure is injected.
func (s *IdentityStore) do(fn func(d *identityData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return fn(s.data)
}

// SeedUser inserts u directly, filling the id and timestamps when empty.
func (s *IdentityStore) SeedUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.RoleNone
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
		u.UpdatedAt = u.CreatedAt
	}
	s.data.users[u.ID] = u
	return u
}

// SeedInvitation inserts inv directly.
func (s *IdentityStore) SeedInvitation(inv model.Invitation) model.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	s.data.invitations[inv.ID] = inv
	return inv
}

func (s *IdentityStore) User(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	return u, ok
}

func (s *IdentityStore) AllUsers() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.data.users))
	for _, u := range s.data.users {
		out = append(out, u)
	}
	return out
}

func (s *IdentityStore) AllAttempts() []model.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.attempts)
}

func (s *IdentityStore) AllInvitations() []model.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Invitation, 0, len(s.data.invitations))
	for _, inv := range s.data.invitations {
		out = append(out, inv)
	}
	return out
}

func (s *IdentityStore) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.users, id)
}

// UpdateUser applies fn to the stored user, simulating an out-of-band change.
func (s *IdentityStore) UpdateUser(id string, fn func(u *model.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return
	}
	fn(&u)
	s.data.users[id] = u
}

type users struct{ s *IdentityStore }

func (r *users) find(match func(model.User) bool) (*model.User, error) {
	var found *model.User
	err := r.s.do(func(d *identityData) error {
		for _, u := range d.users {
			if match(u) {
				found = &u
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *users) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r *users) FindByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.FindByID(ctx, id)
}

func (r *users) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r *users) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var created model.User
	err := r.s.do(func(d *identityData) error {
		for _, u := range d.users {
			if u.Email == params.Email {
				return &pq.Error{Code: "23505", Constraint: "users_email_key"}
			}
		}
		now := time.Now()
		hash := params.PasswordHash
		created = model.User{
			ID:              uuid.NewString(),
			Email:           params.Email,
			Firstname:       params.Firstname,
			Lastname:        params.Lastname,
			Role:            params.Role,
			AlumniValidated: params.AlumniValidated,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if hash != "" {
			created.PasswordHash = &hash
		}
		d.users[created.ID] = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *users) update(id string, fn func(u *model.User) error) error {
	return r.s.do(func(d *identityData) error {
		u, ok := d.users[id]
		if !ok {
			return nil
		}
		if err := fn(&u); err != nil {
			return err
		}
		u.UpdatedAt = time.Now()
		d.users[id] = u
		return nil
	})
}

func (r *users) UpdateRole(ctx context.Context, id string, role model.Role) error {
	return r.update(id, func(u *model.User) error { u.Role = role; return nil })
}

func (r *users) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return r.update(id, func(u *model.User) error { u.PasswordHash = &passwordHash; return nil })
}

func (r *users) UpdateEmail(ctx context.Context, id string, email string) error {
	return r.s.do(func(d *identityData) error {
		for _, other := range d.users {
			if other.Email == email && other.ID != id {
				return &pq.Error{Code: "23505", Constraint: "users_email_key"}
			}
		}
		if u, ok := d.users[id]; ok {
			u.Email = email
			d.users[id] = u
		}
		return nil
	})
}

func (r *users) SetAlumniValidated(ctx context.Context, id string, validated bool) error {
	return r.update(id, func(u *model.User) error { u.AlumniValidated = validated; return nil })
}

func (r *users) EnableTOTP(ctx context.Context, id string, secret string, verifiedAt time.Time) error {
	return r.update(id, func(u *model.User) error {
		u.TOTPSecret = &secret
		u.TOTPEnabled = true
		u.TOTPVerifiedAt = &verifiedAt
		return nil
	})
}

func (r *users) DisableTOTP(ctx context.Context, id string) error {
	return r.update(id, func(u *model.User) error {
		u.TOTPSecret = nil
		u.TOTPEnabled = false
		u.TOTPVerifiedAt = nil
		return nil
	})
}

func (r *users) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(u *model.User) error { u.LastLoginAt = &at; return nil })
}

func (r *users) List(ctx context.Context, params model.ListUsersParams) ([]model.User, error) {
	var out []model.User
	err := r.s.do(func(d *identityData) error {
		all := make([]model.User, 0, len(d.users))
		for _, u := range d.users {
			all = append(all, u)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
		start := min(params.Offset, len(all))
		end := min(start+params.Limit, len(all))
		out = all[start:end]
		return nil
	})
	return out, err
}

func (r *users) Count(ctx context.Context) (int, error) {
	var n int
	err := r.s.do(func(d *identityData) error {
		n = len(d.users)
		return nil
	})
	return n, err
}

type attempts struct{ s *IdentityStore }

func (r *attempts) Create(ctx context.Context, params model.CreateLoginAttemptParams) error {
	return r.s.do(func(d *identityData) error {
		d.nextAttempt++
		a := model.LoginAttempt{
			ID:          d.nextAttempt,
			IPAddress:   params.IPAddress,
			AttemptTime: params.AttemptTime,
			Success:     params.Success,
		}
		if params.Email != "" {
			email := params.Email
			a.Email = &email
		}
		if params.UserAgent != "" {
			ua := params.UserAgent
			a.UserAgent = &ua
		}
		d.attempts = append(d.attempts, a)
		return nil
	})
}

func (r *attempts) count(match func(model.LoginAttempt) bool) (int, error) {
	var n int
	err := r.s.do(func(d *identityData) error {
		for _, a := range d.attempts {
			if !a.Success && match(a) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *attempts) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	return r.count(func(a model.LoginAttempt) bool {
		return a.IPAddress == ip && a.AttemptTime.After(since)
	})
}

func (r *attempts) CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	return r.count(func(a model.LoginAttempt) bool {
		return a.Email != nil && *a.Email == email && a.AttemptTime.After(since)
	})
}

func (r *attempts) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(d *identityData) error {
		kept := d.attempts[:0]
		for _, a := range d.attempts {
			if a.AttemptTime.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, a)
		}
		d.attempts = kept
		return nil
	})
	return n, err
}

type invitations struct{ s *IdentityStore }

func (r *invitations) Create(ctx context.Context, params model.CreateInvitationParams) (*model.Invitation, error) {
	var inv model.Invitation
	err := r.s.do(func(d *identityData) error {
		for _, existing := range d.invitations {
			if existing.Token == params.Token {
				return &pq.Error{Code: "23505", Constraint: "invitations_token_key"}
			}
		}
		inv = model.Invitation{
			ID:        uuid.NewString(),
			Email:     params.Email,
			Token:     params.Token,
			Role:      params.Role,
			CreatedBy: params.CreatedBy,
			CreatedAt: params.CreatedAt,
			ExpiresAt: params.ExpiresAt,
		}
		d.invitations[inv.ID] = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitations) find(match func(model.Invitation) bool) (*model.Invitation, error) {
	var found *model.Invitation
	err := r.s.do(func(d *identityData) error {
		for _, inv := range d.invitations {
			if match(inv) {
				found = &inv
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *invitations) FindByID(ctx context.Context, id string) (*model.Invitation, error) {
	return r.find(func(inv model.Invitation) bool { return inv.ID == id })
}

func (r *invitations) FindByToken(ctx context.Context, token string) (*model.Invitation, error) {
	return r.find(func(inv model.Invitation) bool { return inv.Token == token })
}

func (r *invitations) MarkAccepted(ctx context.Context, token string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	hook := r.s.beforeMarkAccepted
	r.s.mu.Unlock()
	if hook != nil {
		hook(token)
	}

	var won bool
	err := r.s.do(func(d *identityData) error {
		for id, inv := range d.invitations {
			if inv.Token == token && inv.AcceptedAt == nil && inv.ExpiresAt.After(at) {
				inv.AcceptedAt = &at
				d.invitations[id] = inv
				won = true
			}
		}
		return nil
	})
	return won, err
}

func (r *invitations) ListPending(ctx context.Context, now time.Time) ([]model.Invitation, error) {
	var out []model.Invitation
	err := r.s.do(func(d *identityData) error {
		for _, inv := range d.invitations {
			if inv.AcceptedAt == nil && inv.ExpiresAt.After(now) {
				out = append(out, inv)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r *invitations) DeletePending(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.s.do(func(d *identityData) error {
		if inv, ok := d.invitations[id]; ok && inv.AcceptedAt == nil {
			delete(d.invitations, id)
			deleted = true
		}
		return nil
	})
	return deleted, err
}

func (r *invitations) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(d *identityData) error {
		for id, inv := range d.invitations {
			if inv.AcceptedAt == nil && inv.ExpiresAt.Before(cutoff) {
				delete(d.invitations, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
