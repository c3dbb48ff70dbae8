package session

import (
	"sync"

	apperrors "github.com/jrsteele09/farm-session/internal/errors"
	"github.com/jrsteele09/farm-session/users"
)

// Credentials is the access/refresh pair issued together by the backend.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// State is the authoritative in-memory session record. User and Credentials
// are either both set or both nil. While IsLoading is true neither should be
// trusted.
type State struct {
	User        *users.Identity
	Credentials *Credentials
	IsLoading   bool
}

// Phase is the coarse state machine position derived from a State.
type Phase string

const (
	PhaseLoading         Phase = "loading"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

func (s State) Phase() Phase {
	switch {
	case s.IsLoading:
		return PhaseLoading
	case s.User != nil:
		return PhaseAuthenticated
	}
	return PhaseUnauthenticated
}

func (s State) Authenticated() bool {
	return s.User != nil && s.Credentials != nil
}

// Valid reports whether the pairing invariant holds.
func (s State) Valid() bool {
	return (s.User == nil) == (s.Credentials == nil)
}

func (s State) clone() State {
	out := State{IsLoading: s.IsLoading}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Credentials != nil {
		c := *s.Credentials
		out.Credentials = &c
	}
	return out
}

// Holder owns the current State and notifies subscribers on every change.
// Records are only ever replaced whole.
type Holder struct {
	lock        sync.RWMutex
	state       State
	subscribers []subscriber
	nextID      int
}

type subscriber struct {
	id int
	fn func(State)
}

// NewHolder returns a Holder in the start-up state: empty and loading.
func NewHolder() *Holder {
	return &Holder{state: State{IsLoading: true}}
}

// State returns a copy of the current record.
func (h *Holder) State() State {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.state.clone()
}

// Set replaces the whole record. A record with a user but no credentials, or
// the reverse, is rejected.
func (h *Holder) Set(next State) error {
	if !next.Valid() {
		return apperrors.ErrInconsistentState
	}
	h.lock.Lock()
	h.state = next.clone()
	subs := h.snapshotLocked()
	h.lock.Unlock()

	h.notify(subs, next)
	return nil
}

// SetLoading copies the current record with a new loading flag. Subscribers
// are only told when the flag actually changes.
func (h *Holder) SetLoading(loading bool) {
	h.lock.Lock()
	if h.state.IsLoading == loading {
		h.lock.Unlock()
		return
	}
	h.state.IsLoading = loading
	current := h.state.clone()
	subs := h.snapshotLocked()
	h.lock.Unlock()

	h.notify(subs, current)
}

// Subscribe registers fn for change notifications, called synchronously in
// subscription order. The returned func removes it.
func (h *Holder) Subscribe(fn func(State)) (unsubscribe func()) {
	h.lock.Lock()
	defer h.lock.Unlock()

	id := h.nextID
	h.nextID++
	h.subscribers = append(h.subscribers, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.lock.Lock()
			defer h.lock.Unlock()
			for i, s := range h.subscribers {
				if s.id == id {
					h.subscribers = append(h.subscribers[:i:i], h.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

func (h *Holder) snapshotLocked() []subscriber {
	return append([]subscriber(nil), h.subscribers...)
}

func (h *Holder) notify(subs []subscriber, s State) {
	for _, sub := range subs {
		sub.fn(s.clone())
	}
}
