package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	instance *zap.Logger
	once     sync.Once
)

// Config controls logger construction.
type Config struct {
	Development bool
}

// New returns the process-wide logger, building it on first use.
func New(cfg Config) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		if cfg.Development {
			instance, err = zap.NewDevelopment()
		} else {
			instance, err = zap.NewProduction()
		}
	})
	return instance, err
}
