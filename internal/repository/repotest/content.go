package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
)

// ContentStore is an in-memory repository.ContentStore.
type ContentStore struct {
	mu       sync.Mutex
	profiles map[string]model.MemberProfile
	err      error
}

var _ repository.ContentStore = (*ContentStore)(nil)

func NewContentStore() *ContentStore {
	return &ContentStore{profiles: map[string]model.MemberProfile{}}
}

func (s *ContentStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *ContentStore) Profile(userID string) (model.MemberProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	return p, ok
}

func (s *ContentStore) Profiles() repository.ProfileRepository {
	return &profiles{s}
}

type profiles struct{ s *ContentStore }

func (r *profiles) FindByUserID(ctx context.Context, userID string) (*model.MemberProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return nil, r.s.err
	}
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *profiles) Upsert(ctx context.Context, params model.UpsertMemberProfileParams) (*model.MemberProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return nil, r.s.err
	}
	now := time.Now()
	p, ok := r.s.profiles[params.UserID]
	if !ok {
		p.CreatedAt = now
	}
	p.UserID = params.UserID
	p.Firstname = params.Firstname
	p.Lastname = params.Lastname
	p.Email = params.Email
	p.UpdatedAt = now
	r.s.profiles[params.UserID] = p
	return &p, nil
}

func (r *profiles) UpdateEmail(ctx context.Context, userID string, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return r.s.err
	}
	if p, ok := r.s.profiles[userID]; ok {
		p.Email = email
		r.s.profiles[userID] = p
	}
	return nil
}
