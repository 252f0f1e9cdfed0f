// Command termhubd is the terminal service's entry point: it loads
// configuration, opens the metadata store, wires every collaborator
// together, and serves the gin router until an interrupt triggers the
// graceful shutdown sequence described in the design. Generalized from
// the teacher's main.go (flag parsing, .env loading, router.Run) onto
// the larger collaborator graph this service needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/termhub/termhubd/docs"
	"github.com/termhub/termhubd/internal/api"
	"github.com/termhub/termhubd/internal/category"
	"github.com/termhub/termhubd/internal/config"
	"github.com/termhub/termhubd/internal/connection"
	"github.com/termhub/termhubd/internal/identity"
	"github.com/termhub/termhubd/internal/notify"
	"github.com/termhub/termhubd/internal/persistence"
	"github.com/termhub/termhubd/internal/ratelimit"
	"github.com/termhub/termhubd/internal/session"
	"github.com/termhub/termhubd/internal/store"
)

// @title           termhubd
// @version         1.0
// @description     Remote multi-client terminal service: PTY sessions multiplexed over a websocket channel.

// @BasePath  /
func main() {
	port := flag.Int("port", 0, "port to listen on (overrides SERVER_PORT)")
	shortPort := flag.Int("p", 0, "port to listen on, shorthand")
	flag.Parse()

	cfg := config.Load()
	if *port != 0 {
		cfg.ServerPort = *port
	}
	if *shortPort != 0 {
		cfg.ServerPort = *shortPort
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logrus.WithError(err).Fatal("termhubd: failed to create data directory")
	}
	dbPath := filepath.Join(cfg.DataDir, "termhubd.db")
	st, err := store.Open(dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("termhubd: failed to open metadata store")
	}
	defer st.Close()

	helper := persistence.Detect()
	logrus.WithField("multiplexer", helper.UsesMultiplexer()).Info("termhubd: persistence strategy selected")

	mgr := session.NewManager(st, helper, cfg.MaxSessions, time.Duration(cfg.IdleTimeoutMinutes)*time.Minute, cfg.ScrollbackLines)
	mgr.Start()

	bus := notify.NewBus(st)
	categories := category.NewService(st)
	limiter := ratelimit.New(ratelimit.DefaultCapacity, ratelimit.DefaultRefillInterval)
	registry := connection.NewRegistry()

	var resolver identity.Resolver = identity.DisabledResolver{}
	if cfg.AuthEnabled {
		resolver = identity.NewAllowedUsersResolver(cfg.AuthAllowedUsers)
	}

	connDeps := connection.Deps{
		Manager:    mgr,
		Categories: categories,
		Bus:        bus,
		Limiter:    limiter,
		Registry:   registry,
		Resolver:   resolver,
	}

	docs.SwaggerInfo.Host = fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)

	router := api.SetupRouter(api.Deps{
		Connection: connDeps,
		Manager:    mgr,
		Bus:        bus,
		Resolver:   resolver,
	}, false)

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logrus.WithField("addr", addr).Info("termhubd: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("termhubd: server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logrus.Info("termhubd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("termhubd: http server shutdown error")
	}

	// Stop the idle reaper, persist scrollback for fallback-helper
	// sessions, and mark every live session idle rather than terminated.
	// Writes that fell inside the touch debounce window are not persisted,
	// and sessions are not reloaded as live on the next run, so they are
	// then listed with attachable=false.
	mgr.Shutdown()

	logrus.Info("termhubd: shutdown complete")
}
