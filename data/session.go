package data

import (
	"context"
	"sync"
)

// User is the signed-in account as reported by the auth backend.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CompanyID string `json:"company_id"`
}

// Session resolves the current user. A nil user with a nil error means no
// one is signed in.
type Session interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// StaticSession is an in-process Session, used by demos and tests.
type StaticSession struct {
	mu   sync.RWMutex
	user *User
}

func NewStaticSession(user *User) *StaticSession {
	return &StaticSession{user: user}
}

func (s *StaticSession) CurrentUser(context.Context) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, nil
	}
	u := *s.user
	return &u, nil
}

// SignIn replaces the current user.
func (s *StaticSession) SignIn(user User) {
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
}

func (s *StaticSession) SignOut() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// SetCompany moves the current user to companyID.
func (s *StaticSession) SetCompany(companyID string) {
	s.mu.Lock()
	if s.user != nil {
		s.user.CompanyID = companyID
	}
	s.mu.Unlock()
}
