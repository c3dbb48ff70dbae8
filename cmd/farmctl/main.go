package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/farm-session/identity"
	"github.com/jrsteele09/farm-session/identity/google"
	"github.com/jrsteele09/farm-session/internal/config"
	"github.com/jrsteele09/farm-session/internal/logger"
	"github.com/jrsteele09/farm-session/kvstore"
	"github.com/jrsteele09/farm-session/session"
	"github.com/jrsteele09/farm-session/token"
	"github.com/rs/zerolog"
)

// tokenExpirySkew treats an access token this close to expiry as expired.
const tokenExpirySkew = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	c, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		return 1
	}
	log := logger.New(c.GetEnv())
	if c.GetEnv() == "DEV" {
		displayAppname(c.GetAppName())
	}

	store, closeStore, err := openStore(ctx, c, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open token store")
		return 1
	}
	defer closeStore()

	manager, err := newManager(ctx, c, store, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build session manager")
		return 1
	}
	if err := manager.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("session restore interrupted")
		return 1
	}

	if err := runCommand(ctx, manager, args, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		log.Debug().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, userMessage(args[0], err))
		return 1
	}
	return 0
}

func openStore(ctx context.Context, c config.Config, log zerolog.Logger) (kvstore.Store, func(), error) {
	switch c.GetStoreKind() {
	case config.StoreKindRedis:
		client, err := kvstore.NewRedisClient(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB())
		if err != nil {
			return nil, nil, err
		}
		return kvstore.NewRedisStore(client, ""), func() { _ = client.Close() }, nil
	case config.StoreKindFile:
		options := []kvstore.FileStoreOption{kvstore.WithFileStoreLogger(log)}
		if passphrase := c.GetStorePassphrase(); passphrase != "" {
			options = append(options, kvstore.WithPassphrase(passphrase))
		}
		store, err := kvstore.NewFileStore(c.GetDataFolder(), options...)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", c.GetStoreKind())
}

func newManager(ctx context.Context, c config.Config, store kvstore.Store, log zerolog.Logger) (*session.Manager, error) {
	backend, err := identity.NewClient(c.GetAPIBaseURL(),
		identity.WithTimeout(c.GetAPITimeout()),
		identity.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	options := []session.ManagerOption{
		session.WithLogger(log),
		session.WithTokenInspector(token.NewInspector(tokenExpirySkew)),
	}
	if clientID := c.GetGoogleClientID(); clientID != "" {
		verifier, err := google.New(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("google verifier: %w", err)
		}
		options = append(options, session.WithIDTokenVerifier(verifier))
	}
	return session.NewManager(backend, store, options...)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
