package server

import (
	"errors"
	"time"

	"github.com/atelierlabs/atelier/indexer/pkg/works"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo
	ViewConfig        works.ViewConfig
}

func (cfg *Config) Validate() error {
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if err := cfg.ViewConfig.Validate(); err != nil {
		return err
	}
	return nil
}
