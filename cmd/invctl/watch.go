package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-inventory-session/gate"
	"github.com/jrsteele09/go-inventory-session/gate/httpgate"
	"github.com/jrsteele09/go-inventory-session/internal/metrics"
	"github.com/jrsteele09/go-inventory-session/renewal"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh until interrupted",
		Long: `watch renews the access token shortly before it expires and re-checks
the session periodically. With --metrics-addr it also serves /metrics and a
guarded /session endpoint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(cmd.OutOrStdout(), appName)
			return withApp(cmd.Context(), opts, func(a *app) error {
				return a.watch(cmd.Context(), addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "metrics-addr", "", "serve /metrics and /session on this address, e.g. :9090")
	return cmd
}

func (a *app) watch(ctx context.Context, addr string) error {
	if !a.manager.IsAuthenticated() {
		return a.lastError(fmt.Errorf("not signed in"))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := a.manager.Subscribe(func(ev session.Event) {
		log.Info().Str("event", ev.Kind.String()).Uint64("generation", ev.Generation).Msg("Session changed")
		if ev.Kind == session.EventLoggedOut {
			cancel()
		}
	})
	defer unsubscribe()

	scheduler := renewal.NewScheduler(a.manager, a.store, a.cfg)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	var server *http.Server
	if addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		server = &http.Server{Addr: addr, Handler: a.routes()}
		go listenAndServe(server)
	}

	if due, ok := scheduler.DueAt(); ok {
		log.Info().Time("due_at", due).Msg("Watching session")
	} else {
		log.Info().Msg("Watching session")
	}
	waitForStopSignal(ctx)

	if server != nil {
		if err := shutdown(server); err != nil {
			return err
		}
	}
	if !a.manager.IsAuthenticated() {
		return a.lastError(fmt.Errorf("session ended"))
	}
	return nil
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", metrics.Handler())
	r.Get(a.cfg.GetLoginPath(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Run `%s login` to sign in, then return to %s\n", appName, httpgate.SafeNext(r.URL.Query().Get(httpgate.NextParam), "/session"))
	})

	guard := httpgate.NewGuard(a.manager, gate.New(a.cfg.GetLoginPath()))
	guard.Mount(r, []httpgate.Route{
		{Method: http.MethodGet, Pattern: "/session", Requirement: gate.RequireAuthenticated, Handler: http.HandlerFunc(sessionHandler)},
	})
	return r
}

func sessionHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := httpgate.UserFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(user); err != nil {
		log.Error().Err(err).Msg("encode session user")
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

// waitForStopSignal blocks until SIGINT, SIGTERM or ctx is done.
func waitForStopSignal(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-stop:
	case <-ctx.Done():
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
