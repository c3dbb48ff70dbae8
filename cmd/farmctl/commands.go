package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jrsteele09/farm-session/identity"
	"github.com/jrsteele09/farm-session/session"
)

var errUsage = errors.New("usage")

const usage = `usage: farmctl <command> [flags]

commands:
  status                          show the restored session
  login    -email E -password P   sign in with email and password
  google   -id-token T            sign in with a Google ID token
  register -email E -name N -password P [-confirm C]
  refresh                         trade the refresh token for a new pair
  logout                          sign out and forget stored tokens
`

// command runs one subcommand against a restored session.
type command func(ctx context.Context, m *session.Manager, args []string, out io.Writer) error

var commands = map[string]command{
	"status":   statusCmd,
	"login":    loginCmd,
	"google":   googleCmd,
	"register": registerCmd,
	"refresh":  refreshCmd,
	"logout":   logoutCmd,
}

// fallback messages shown when the error carries nothing more specific.
var fallbacks = map[string]string{
	"login":    "Login failed. Please try again.",
	"google":   "Google sign-in failed. Please try again.",
	"register": "Registration failed. Please try again.",
	"refresh":  "Could not refresh the session.",
	"logout":   "Sign out did not complete.",
}

func runCommand(ctx context.Context, m *session.Manager, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n\n%s", args[0], usage)
		return errUsage
	}
	return cmd(ctx, m, args[1:], out)
}

func statusCmd(_ context.Context, m *session.Manager, _ []string, out io.Writer) error {
	printState(out, m.State())
	return nil
}

func loginCmd(ctx context.Context, m *session.Manager, args []string, out io.Writer) error {
	fs := newFlagSet("login", out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("FARM_PASSWORD"), "account password (or FARM_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if err := m.SignInWithEmailPassword(ctx, *email, *password); err != nil {
		return err
	}
	printState(out, m.State())
	return nil
}

func googleCmd(ctx context.Context, m *session.Manager, args []string, out io.Writer) error {
	fs := newFlagSet("google", out)
	idToken := fs.String("id-token", "", "Google ID token")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if err := m.SignInWithGoogle(ctx, *idToken); err != nil {
		return err
	}
	printState(out, m.State())
	return nil
}

func registerCmd(ctx context.Context, m *session.Manager, args []string, out io.Writer) error {
	fs := newFlagSet("register", out)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "full name")
	password := fs.String("password", os.Getenv("FARM_PASSWORD"), "account password (or FARM_PASSWORD)")
	confirm := fs.String("confirm", "", "password confirmation (defaults to -password)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *confirm == "" {
		*confirm = *password
	}
	err := m.Register(ctx, session.Registration{
		Email:           *email,
		FullName:        *name,
		Password:        *password,
		ConfirmPassword: *confirm,
	})
	if err != nil {
		return err
	}
	printState(out, m.State())
	return nil
}

func refreshCmd(ctx context.Context, m *session.Manager, _ []string, out io.Writer) error {
	if err := m.RefreshSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "session refreshed")
	return nil
}

func logoutCmd(ctx context.Context, m *session.Manager, _ []string, out io.Writer) error {
	if err := m.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func printState(out io.Writer, s session.State) {
	if !s.Authenticated() {
		fmt.Fprintln(out, "not signed in")
		return
	}
	fmt.Fprintf(out, "signed in as %s <%s> (%s)\n", s.User.Name, s.User.Email, s.User.Role)
}

// userMessage is what farmctl prints for a failed command.
func userMessage(name string, err error) string {
	fallback, ok := fallbacks[name]
	if !ok {
		fallback = "Something went wrong."
	}
	return identity.UserMessage(err, fallback)
}
