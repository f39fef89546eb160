// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Command chatfrik runs a headless chat client session against the
// configured backend. It binds the identity from configuration, keeps the
// conversation list live, and logs activity until interrupted.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/Shahzain333/Chat-Application/internal/backend"
	"github.com/Shahzain333/Chat-Application/internal/backend/firestoredb"
	"github.com/Shahzain333/Chat-Application/internal/backend/wsbridge"
	"github.com/Shahzain333/Chat-Application/internal/client"
	"github.com/Shahzain333/Chat-Application/internal/config"
)

//go:embed conf/config.yaml
var confDefaults []byte

func main() {
	if err := run(); err != nil {
		slog.Error("chatfrik: exiting", "error", err)
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

	svc, cleanup, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	c := client.New(svc, client.WithSubscriptionErrorHandler(func(err error) {
		slog.Error("chatfrik: subscription lost", "error", err)
	}))
	if err := c.Start(); err != nil {
		return err
	}
	defer c.Close()

	if u := c.CurrentUser(); u != nil {
		slog.Info("chatfrik: session started", "uid", u.UID, "username", u.Username)
	}
	for _, chat := range c.Chats() {
		slog.Info("chatfrik: conversation", "id", chat.ID, "lastMessage", chat.LastMessage)
	}

	<-ctx.Done()
	slog.Info("chatfrik: shutting down")
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config) (backend.Service, func(), error) {
	switch cfg.Backend.Kind {
	case config.BackendFirestore:
		return newFirestoreBackend(ctx, cfg)
	case config.BackendWebsocket:
		url := cfg.Backend.ServerURL + "?uid=" + cfg.User.UID
		bridge, err := wsbridge.Dial(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("main: dialing chat server: %w", err)
		}
		return bridge, bridge.Close, nil
	default:
		return nil, nil, fmt.Errorf("main: unknown backend kind %q", cfg.Backend.Kind)
	}
}

func newFirestoreBackend(ctx context.Context, cfg *config.Config) (backend.Service, func(), error) {
	var opts []option.ClientOption
	if cfg.Google.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Google.CredentialsFile))
	}
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Google.Project}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("main: create firebase app: %w", err)
	}
	fbAuth, err := fbApp.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("main: create firebase auth client: %w", err)
	}
	store, err := fbApp.Firestore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("main: create firestore client: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.ErrorContext(ctx, "main: close firestore client", "error", err)
		}
	}

	svc, err := firestoredb.New(ctx, store, fbAuth, cfg.User.UID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("main: create firestore backend: %w", err)
	}
	return svc, cleanup, nil
}
