package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campus-auth/internal/model"

	"github.com/google/uuid"
)

// Memory is an in-process UserStore keyed by email. It backs development mode
// and tests; the RWMutex gives it the same last-writer-wins semantics the
// production store has.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*model.UserCredential
}

func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]*model.UserCredential),
	}
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*model.UserCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.users[email]
	if !ok {
		return nil, ErrNotFound
	}

	return clone(rec), nil
}

func (m *Memory) Create(ctx context.Context, user *model.UserCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Email]; ok {
		return fmt.Errorf("credential record already exists for %s", user.Email)
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	m.users[user.Email] = clone(user)
	return nil
}

// clone deep-copies a record so callers cannot write through the OTP pointer
// fields into the store outside the lock.
func clone(rec *model.UserCredential) *model.UserCredential {
	cp := *rec
	cp.OTP = copyString(rec.OTP)
	cp.OTPExpiry = copyTime(rec.OTPExpiry)
	cp.PasswordResetOTP = copyString(rec.PasswordResetOTP)
	cp.PasswordResetExpiry = copyTime(rec.PasswordResetExpiry)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (m *Memory) UpdateByEmail(ctx context.Context, email string, upd UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}

	upd.Apply(rec)
	return nil
}

// Len reports the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
