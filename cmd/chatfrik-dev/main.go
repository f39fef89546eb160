// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Command chatfrik-dev runs the local chat server against an in-memory
// backend seeded with demo users. Clients connect over the websocket
// frame protocol, e.g. ws://localhost:8080/ws?uid=alice.
package main

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Shahzain333/Chat-Application/internal/backend/memory"
	"github.com/Shahzain333/Chat-Application/internal/chatdb"
	"github.com/Shahzain333/Chat-Application/internal/config"
	"github.com/Shahzain333/Chat-Application/internal/devserver"
)

//go:embed conf/config.yaml
var confDefaults []byte

func main() {
	if err := run(); err != nil {
		slog.Error("chatfrik-dev: exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(confDefaults)
	if err != nil {
		return err
	}

	hub := memory.NewHub()
	seed(hub)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           devserver.New(hub).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("chatfrik-dev: listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seed registers demo users so a fresh server is usable immediately.
func seed(hub *memory.Hub) {
	hub.AddUser(chatdb.User{UID: "alice", Email: "alice@chatfrik.dev", Username: "alice", FullName: "Alice Doe"})
	hub.AddUser(chatdb.User{UID: "bob", Email: "bob@chatfrik.dev", Username: "bob", FullName: "Bob Roe"})
	hub.AddUser(chatdb.User{UID: "carol", Email: "carol@chatfrik.dev", Username: "carol", FullName: "Carol Poe"})
}
