package main

import (
	"fmt"
	"net/http"

	"github.com/kalambet/wikigen/internal/config"
	"github.com/kalambet/wikigen/internal/storage"
	"github.com/kalambet/wikigen/internal/wiki"
)

// backendClient loads config and builds the wiki API client every
// command starts from.
func backendClient() (*wiki.Client, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg)
	hc := &http.Client{Timeout: cfg.Backend.TimeoutDuration()}
	return wiki.NewClientWithHTTPClient(cfg.Backend.BaseURL, hc), cfg, nil
}

// openStore opens the local job-history database.
func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}
	return store, nil
}
