package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jrsteele09/farm-session/identity/google"
	"github.com/jrsteele09/farm-session/internal/config"
	"github.com/jrsteele09/farm-session/internal/devbackend"
	"github.com/jrsteele09/farm-session/internal/logger"
	fakeuserrepo "github.com/jrsteele09/farm-session/users/repofake"
	"github.com/rs/zerolog"
)

func main() {
	c, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	log := logger.New(c.GetEnv())

	if err := run(c, log); err != nil {
		log.Fatal().Err(err).Msg("Error running dev backend")
	}
	log.Info().Msg("Dev backend stopped")
}

func run(c config.Config, log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if c.GetEnv() != "DEV" {
		gin.SetMode(gin.ReleaseMode)
	}
	displayAppname(c.GetAppName() + " dev")

	secret := c.GetDevSigningSecret()
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Msg("FARM_DEV_SIGNING_SECRET not set, tokens will not survive a restart")
	}

	options := []devbackend.ServerOption{
		devbackend.WithLogger(log),
		devbackend.WithTokenTTLs(c.GetDevAccessTokenTTL(), c.GetDevRefreshTokenTTL()),
		devbackend.WithRouteLogging(c.GetEnv() == "DEV"),
		devbackend.WithAdminEmails(c.GetDevAdminEmails()...),
	}
	if clientID := c.GetGoogleClientID(); clientID != "" {
		verifier, err := google.New(context.Background(), clientID)
		if err != nil {
			return fmt.Errorf("google verifier: %w", err)
		}
		options = append(options, devbackend.WithGoogleVerifier(verifier))
	}

	backend, err := devbackend.New(fakeuserrepo.NewFakeUserRepo(), secret, options...)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: c.GetDevPort(), Handler: backend, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(server, log) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server, log zerolog.Logger) error {
	log.Info().Str("addr", server.Addr).Msg("Dev backend listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
