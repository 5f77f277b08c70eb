package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/store/etapi"
	"github.com/noteport/noteport/internal/store/memory"
	"github.com/noteport/noteport/internal/store/sqlite"
	"github.com/noteport/noteport/internal/ui"
)

// applyStoreFlags copies the persistent store flags over the config.
func applyStoreFlags(cmd *cobra.Command) {
	flags := map[string]string{
		"backend": "store.backend",
		"server":  "server.url",
		"db":      "store.path",
	}
	for flag, key := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			config.Set(key, f.Value.String())
		}
	}
}

// openStore connects to the configured note store. The returned func
// releases it and may be called more than once.
func openStore(ctx context.Context) (store.Store, func(), error) {
	s, release, err := dialStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return s, func() { once.Do(release) }, nil
}

func dialStore(ctx context.Context) (store.Store, func(), error) {
	switch backend := config.GetString("store.backend"); backend {
	case config.BackendETAPI, "":
		token := config.GetString("server.token")
		if token == "" {
			var err error
			if token, err = promptToken(); err != nil {
				return nil, nil, err
			}
		}
		timeout := config.GetDuration("server.timeout")
		if timeout <= 0 {
			timeout = etapi.DefaultTimeout
		}
		c, err := etapi.New(config.GetString("server.url"), token,
			etapi.WithHTTPClient(&http.Client{Timeout: timeout}),
			etapi.WithLogger(newLogger("etapi")))
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(config.GetString("store.path"))
		if err != nil {
			return nil, nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil

	case config.BackendMemory:
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q (want etapi, sqlite or memory)", backend)
	}
}

// promptToken asks for the ETAPI token when stdin is a terminal.
func promptToken() (string, error) {
	if !ui.IsTerminal(os.Stdin) {
		return "", fmt.Errorf("no ETAPI token: set server.token, NOTEPORT_TOKEN or TRILIUM_ETAPI_TOKEN")
	}
	fmt.Fprintf(os.Stderr, "%s ETAPI token: ", ui.RenderAccent("?"))
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("no ETAPI token given")
	}
	return token, nil
}
