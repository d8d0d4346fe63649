package fakeuserrepo

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-wallet-web/internal/errors"
	"github.com/jrsteele09/go-wallet-web/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]*users.User
	emailIds    map[string]string // email to user id
	usernameIds map[string]string // lower-cased username to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() users.UserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		emailIds:    make(map[string]string),
		usernameIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Email = users.NormalizeEmail(user.Email)
	copied := *user
	ur.users[user.ID] = &copied
	ur.emailIds[user.Email] = user.ID
	if user.Username != "" {
		ur.usernameIds[strings.ToLower(user.Username)] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) Delete(email string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email = users.NormalizeEmail(email)
	userID, ok := ur.emailIds[email]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	delete(ur.emailIds, email)

	user, ok := ur.users[userID]
	if !ok {
		return nil
	}
	delete(ur.usernameIds, strings.ToLower(user.Username))
	delete(ur.users, userID)
	return nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return ur.copyOf(id)
}

func (ur *FakeUserRepo) GetByUsername(username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernameIds[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return ur.copyOf(id)
}

func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.copyOf(id)
}

func (ur *FakeUserRepo) SetBlocked(email string, blocked bool) error {
	return ur.update(email, func(u *users.User) { u.Blocked = blocked })
}

func (ur *FakeUserRepo) SetVerified(email string, verified bool) error {
	return ur.update(email, func(u *users.User) { u.Verified = verified })
}

func (ur *FakeUserRepo) SetLastLogin(email string, at time.Time) error {
	return ur.update(email, func(u *users.User) { u.LastLogin = at })
}

func (ur *FakeUserRepo) update(email string, fn func(*users.User)) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	id, ok := ur.emailIds[users.NormalizeEmail(email)]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	fn(ur.users[id])
	return nil
}

func (ur *FakeUserRepo) copyOf(id string) (*users.User, error) {
	user, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}
