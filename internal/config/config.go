// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the application configuration from embedded YAML
// defaults overlaid with CHATFRIK_* environment variables. A .env file in
// the working directory is honored for local development.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Backend kinds selectable in configuration.
const (
	// BackendFirestore talks to Firestore and Firebase auth directly.
	BackendFirestore = "firestore"
	// BackendWebsocket talks to a chat server over the frame protocol.
	BackendWebsocket = "websocket"
)

// Google is the configuration for Google Cloud access.
type Google struct {
	// Project is the project hosting Firestore and Firebase auth.
	Project string `koanf:"project"`

	// CredentialsFile is an optional path to a service account key. When
	// empty, application default credentials are used.
	CredentialsFile string `koanf:"credentialsfile"`
}

// Backend selects and configures the backend implementation.
type Backend struct {
	// Kind is the backend kind, one of the Backend* constants.
	Kind string `koanf:"kind"`

	// ServerURL is the websocket endpoint, e.g.
	// ws://localhost:8080/ws, used when Kind is websocket.
	ServerURL string `koanf:"serverurl"`
}

// User binds the session identity at startup.
type User struct {
	// UID is the signed-in user's id.
	UID string `koanf:"uid"`
}

// Server configures the local dev server.
type Server struct {
	// Address is the listen address, e.g. :8080.
	Address string `koanf:"address"`
}

// Config is the application configuration.
type Config struct {
	// Google is the Google Cloud configuration.
	Google Google `koanf:"google"`

	// Backend selects the backend implementation.
	Backend Backend `koanf:"backend"`

	// User binds the session identity.
	User User `koanf:"user"`

	// Server configures the dev server.
	Server Server `koanf:"server"`
}

// Load resolves the configuration from the given YAML defaults and the
// process environment. CHATFRIK_BACKEND_KIND overrides backend.kind and so
// on.
func Load(defaults []byte) (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "CHATFRIK_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "CHATFRIK_"))
			return strings.ReplaceAll(key, "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}
	return &cfg, nil
}
