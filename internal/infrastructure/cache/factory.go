package cache

import (
	"fmt"

	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RunGuardFactory creates run guards based on configuration
type RunGuardFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RunGuardFactoryOption is a functional option for configuring the factory
type RunGuardFactoryOption func(*RunGuardFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RunGuardFactoryOption {
	return func(f *RunGuardFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory guard when Redis is
// unavailable. Default is true.
func WithInMemoryFallback(allow bool) RunGuardFactoryOption {
	return func(f *RunGuardFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRunGuardFactory creates a new factory
func NewRunGuardFactory(cfg config.RedisConfig, opts ...RunGuardFactoryOption) *RunGuardFactory {
	f := &RunGuardFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateGuard returns a Redis guard when Redis is configured and reachable, otherwise an
// in-memory guard if fallback is allowed
func (f *RunGuardFactory) CreateGuard() (invoicing.RunGuard, error) {
	if f.redisConfig.Addr() == "" {
		f.logger.Info("Redis not configured, using in-memory run guard")
		return NewInMemoryRunGuard(), nil
	}

	guard, err := NewRedisRunGuard(f.redisConfig)
	if err == nil {
		f.logger.Info("Using Redis run guard", zap.String("addr", f.redisConfig.Addr()))
		return guard, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for run guard but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory run guard. "+
		"Overlapping runs on other instances are not detected.",
		zap.Error(err),
	)
	return NewInMemoryRunGuard(), nil
}
