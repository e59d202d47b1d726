package backend

import (
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/jailrun/config"
)

// Defaults used when no configuration overrides them.
const (
	DefaultPreparePath = "/api/sandbox/prepare_jail"
	DefaultRunPath     = "/api/sandbox/run"
	DefaultTimeout     = 30 * time.Second
)

// New creates the backend client described by the configuration
func New(logger *zap.Logger, cfg *config.Config) (Backend, error) {
	return NewHTTPClient(logger.Named("backend"), cfg.Backend.BaseURL,
		WithPaths(cfg.Backend.PreparePath, cfg.Backend.RunPath),
		WithTimeout(cfg.GetTimeout()),
	), nil
}
