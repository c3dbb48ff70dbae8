package fakeuserrepo

import (
	"strings"
	"sync"

	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users      map[int64]*users.User
	emailIds   map[string]int64 // lower-cased email to user id
	googleSubs map[string]int64 // google subject to user id
	nextID     int64
	lock       sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:      make(map[int64]*users.User),
		emailIds:   make(map[string]int64),
		googleSubs: make(map[string]int64),
		nextID:     1,
	}
}

// Create assigns the next numeric id and stores the user. Emails are unique
// regardless of case.
func (ur *FakeUserRepo) Create(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := ur.emailIds[key]; ok {
		return apperrors.ErrUserExists
	}
	user.ID = ur.nextID
	ur.nextID++
	ur.users[user.ID] = user
	ur.emailIds[key] = user.ID
	if user.GoogleSubject != "" {
		ur.googleSubs[user.GoogleSubject] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return ur.users[id], nil
}

func (ur *FakeUserRepo) GetByID(id int64) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (ur *FakeUserRepo) GetByGoogleSubject(subject string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.googleSubs[subject]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return ur.users[id], nil
}

func (ur *FakeUserRepo) LinkGoogleSubject(email, subject string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	id, ok := ur.emailIds[strings.ToLower(email)]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	ur.users[id].GoogleSubject = subject
	ur.googleSubs[subject] = id
	return nil
}
