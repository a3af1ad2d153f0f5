// Package server implements the daemon's HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forgeline-io/forgeline/internal/daemon/activity"
	"github.com/forgeline-io/forgeline/internal/daemon/process"
	"github.com/forgeline-io/forgeline/internal/daemon/runner"
	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/store"
)

// Server is the daemon's HTTP server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	port       int

	log        *slog.Logger
	sessions   *store.SessionStore
	tickets    *store.TicketStore
	runner     *runner.Runner
	procs      *process.Manager
	activities *activity.Registry
	settings   func() *models.Settings
	logsDir    string
}

// Options carries the server's collaborators. Settings is a getter rather
// than a snapshot so hot-reloaded settings reach in-flight handlers.
type Options struct {
	Log        *slog.Logger
	Sessions   *store.SessionStore
	Tickets    *store.TicketStore
	Runner     *runner.Runner
	Procs      *process.Manager
	Activities *activity.Registry
	Settings   func() *models.Settings
	LogsDir    string
}

// New creates a server listening on the specified port.
// Pass port 0 for dynamic allocation.
func New(port int, opts Options) (*Server, error) {
	listener, err := (&net.ListenConfig{}).Listen(context.TODO(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	// Get actual port if dynamically allocated
	actualPort := listener.Addr().(*net.TCPAddr).Port

	srv := &Server{
		listener:   listener,
		port:       actualPort,
		log:        opts.Log,
		sessions:   opts.Sessions,
		tickets:    opts.Tickets,
		runner:     opts.Runner,
		procs:      opts.Procs,
		activities: opts.Activities,
		settings:   opts.Settings,
		logsDir:    opts.LogsDir,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recovery(opts.Log))

	r.Get("/health", srv.handleHealth)

	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Post("/runs", srv.handleStartRun)
		r.Get("/sessions", srv.handleListSessions)
		r.Get("/activities", srv.handleListActivities)
		r.Post("/tickets", srv.handleCreateTicket)
		r.Get("/tickets", srv.handleListTickets)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", srv.handleStartSession)
		r.Get("/{sessionID}", srv.handleGetSession)
		r.Post("/{sessionID}/cancel", srv.handleCancelSession)
		r.Get("/{sessionID}/log", srv.handleSessionLog)
	})

	r.Route("/tickets/{ticketID}/dependencies", func(r chi.Router) {
		r.Get("/", srv.handleListDependencies)
		r.Post("/", srv.handleAddDependency)
		r.Delete("/{dependsOnID}", srv.handleRemoveDependency)
	})

	srv.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Serve starts serving requests. This blocks until Stop is called.
func (s *Server) Serve() error {
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)
}
