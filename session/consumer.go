package session

import "context"

// Consumer is the view of the session handed to UI code: observe the state
// and trigger the user-facing actions.
type Consumer interface {
	State() State
	Subscribe(fn func(State)) (unsubscribe func())
	SignInWithEmailPassword(ctx context.Context, email, password string) error
	SignInWithGoogle(ctx context.Context, idToken string) error
	SignOut(ctx context.Context) error
	Register(ctx context.Context, r Registration) error
}

var _ Consumer = (*Manager)(nil)
