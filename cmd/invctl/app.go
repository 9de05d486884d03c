package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/jrsteele09/go-inventory-session/authapi"
	"github.com/jrsteele09/go-inventory-session/httpclient"
	"github.com/jrsteele09/go-inventory-session/internal/config"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/jrsteele09/go-inventory-session/token/sqlrepo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app is the wiring shared by every command.
type app struct {
	cfg     config.Config
	repo    *sqlrepo.Repo
	store   *token.Store
	api     *authapi.Client
	manager *session.Manager
}

func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)

	repo, err := sqlrepo.Open(ctx, cfg.GetStorePath(), sqlrepo.WithTimeout(cfg.GetRequestTimeout()))
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	var storeOptions []token.StoreOption
	if key := cfg.GetStoreKey(); key != nil {
		sealer, err := token.NewSealer(key)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("token store key: %w", err)
		}
		storeOptions = append(storeOptions, token.WithSealer(sealer))
	}
	store := token.NewStore(repo, storeOptions...)

	// source and refresher are set once the manager exists
	transport := &httpclient.Transport{}
	api, err := authapi.NewClient(cfg.GetAPIBaseURL(),
		authapi.WithTimeout(cfg.GetRequestTimeout()),
		authapi.WithTokenReader(store),
		authapi.WithAuthorizedHTTPClient(&http.Client{Transport: transport, Timeout: cfg.GetRequestTimeout()}),
	)
	if err != nil {
		repo.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		repo:    repo,
		store:   store,
		api:     api,
		manager: session.NewManager(api, store),
	}
	transport.Source = a.manager.TokenSource(ctx)
	transport.Refresher = a.manager
	a.manager.Initialize(ctx)
	return a, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		log.Warn().Err(err).Msg("close token store")
	}
}

// withApp runs fn with a ready app and closes it afterwards.
func withApp(ctx context.Context, opts *globalOptions, fn func(a *app) error) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// lastError prefers the session's user-facing message over the raw error.
func (a *app) lastError(err error) error {
	if msg := a.manager.State().LastError; msg != "" {
		return errors.New(msg)
	}
	return err
}

func setupLogging(cfg config.EnvConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.GetLogLevel()))
	if err != nil || cfg.GetLogLevel() == "" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// prompt reads one line from in when value is empty.
func prompt(in *bufio.Reader, out io.Writer, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}
