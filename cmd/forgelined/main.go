// Package main is the entry point for the forgelined daemon.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/forgeline-io/forgeline/internal/config"
	"github.com/forgeline-io/forgeline/internal/daemon/activity"
	"github.com/forgeline-io/forgeline/internal/daemon/process"
	"github.com/forgeline-io/forgeline/internal/daemon/runner"
	"github.com/forgeline-io/forgeline/internal/daemon/server"
	"github.com/forgeline-io/forgeline/internal/daemon/session"
	"github.com/forgeline-io/forgeline/internal/daemon/watcher"
	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/sessionlog"
	"github.com/forgeline-io/forgeline/internal/store"
)

func main() {
	port := flag.Int("port", 0, "Port to listen on (0 for dynamic allocation)")
	flag.Parse()

	log.SetPrefix("[forgelined] ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := config.EnsureGlobalDir(); err != nil {
		log.Fatalf("Failed to create global directory: %v", err)
	}
	if err := config.EnsureGlobalLogsDir(); err != nil {
		log.Fatalf("Failed to create logs directory: %v", err)
	}

	running, info, err := config.IsDaemonRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("Daemon already running on port %d (PID %d)", info.Port, info.PID)
	}

	if err := run(*port); err != nil {
		log.Fatalf("%v", err)
	}
}

// settingsHolder shares settings between the HTTP surface and the watcher
// that hot-reloads them.
type settingsHolder struct {
	mu       sync.RWMutex
	settings *models.Settings
}

func (h *settingsHolder) get() *models.Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

func (h *settingsHolder) set(s *models.Settings) {
	h.mu.Lock()
	h.settings = s
	h.mu.Unlock()
}

func run(port int) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	holder := &settingsHolder{settings: settings}

	logsDir, err := config.GlobalLogsDir()
	if err != nil {
		return err
	}
	if settings.LogDir != "" {
		logsDir = settings.LogDir
	}

	dbPath, err := config.GlobalDatabaseFile()
	if err != nil {
		return err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessions := store.NewSessionStore(db)
	tickets := store.NewTicketStore(db)
	lifecycle := session.NewManager(sessions)
	procs := process.NewManager()
	logs := sessionlog.NewRegistry()
	activities := activity.NewRegistry()

	resolve := func(name string) (process.Provider, error) {
		s := holder.get()
		cfg, ok := s.Providers[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s", name)
		}
		return &process.LocalProvider{
			Name:     name,
			Settings: cfg,
			Logs:     logs,
			LogPath: func(sessionID string) string {
				return config.SessionLogFile(logsDir, sessionID)
			},
		}, nil
	}
	runs := runner.New(sessions, lifecycle, procs, logs, logsDir, resolve)

	srv, err := server.New(port, server.Options{
		Log:        slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Sessions:   sessions,
		Tickets:    tickets,
		Runner:     runs,
		Procs:      procs,
		Activities: activities,
		Settings:   holder.get,
		LogsDir:    logsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	daemonInfo := models.NewDaemonInfo("localhost", srv.Port(), os.Getpid())
	if err := config.SaveDaemonInfo(daemonInfo); err != nil {
		return fmt.Errorf("failed to write daemon info: %w", err)
	}

	log.Printf("Daemon started on port %d (PID %d)", srv.Port(), os.Getpid())

	w, err := watcher.New()
	if err != nil {
		log.Printf("Settings watcher unavailable: %v", err)
	} else if err := w.Start(); err != nil {
		log.Printf("Settings watcher failed to start: %v", err)
	} else {
		defer w.Stop()
		go func() {
			for ev := range w.Events() {
				if ev.Type != watcher.EventSettingsChanged {
					continue
				}
				reloaded, err := config.LoadSettings()
				if err != nil {
					log.Printf("Failed to reload settings: %v", err)
					continue
				}
				holder.set(reloaded)
				log.Println("Settings reloaded")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-errCh:
		log.Printf("Server error: %v", err)
	}

	srv.Stop()

	if err := config.RemoveDaemonInfo(); err != nil {
		log.Printf("Failed to remove daemon info: %v", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}
