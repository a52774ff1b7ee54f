// gemlite - terminal client for the gemini-lite chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/gemlite/internal/cache"
	"github.com/jeranaias/gemlite/internal/chat"
	"github.com/jeranaias/gemlite/internal/cli"
	"github.com/jeranaias/gemlite/internal/config"
	"github.com/jeranaias/gemlite/internal/gateway"
	"github.com/jeranaias/gemlite/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "explicit config file (.toml or .json)")
	backendURL := flag.String("backend", "", "override backend base URL")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gemlite %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath, *backendURL); err != nil {
		fmt.Fprintf(os.Stderr, "gemlite: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, backendURL string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if backendURL != "" {
		cfg.Backend.BaseURL = backendURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	store, err := storage.NewWithDir(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("cannot open storage dir %s: %w", cfg.Storage.Dir, err)
	}

	// SQLite cache keeps histories across sessions; an unusable cache
	// file degrades to an in-memory session rather than failing startup.
	var msgCache cache.MessageCache
	sqliteCache, err := cache.NewSQLite(cfg.Storage.CacheDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gemlite: message cache unavailable (%v), using in-memory cache\n", err)
		msgCache = cache.NewMemory()
	} else {
		defer sqliteCache.Close()
		msgCache = sqliteCache
	}

	client := gateway.New(cfg.Backend.BaseURL).
		WithTimeout(time.Duration(cfg.Backend.TimeoutSecs) * time.Second)

	controller := chat.New(store, msgCache, client, chat.Datastores{
		GP2: cfg.Datastores.GP2Path,
		GP3: cfg.Datastores.GP3Path,
	})

	return cli.NewREPL(controller, client).Run(context.Background())
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
