package fs

import (
	"context"
	"time"
)

// Global
var (
	// globalConfig for driveback
	globalConfig = NewConfig()
)

// ConfigInfo holds the global options not tied to one backend
// instance.  The per-phase timeouts are applied per call, not per
// backend.
type ConfigInfo struct {
	UserAgent      string
	ShortTimeout   time.Duration // control-plane calls: metadata, delete, rename, session start/cancel
	ListTimeout    time.Duration // each paginated GET
	Timeout        time.Duration // idle read/write timeout on body streams
	ConnectTimeout time.Duration
	TPSLimit       float64
	TPSLimitBurst  int
	UseCookies     bool
}

// NewConfig creates a new config with everything set to the default
// value.
func NewConfig() *ConfigInfo {
	c := new(ConfigInfo)

	// Defaults
	c.UserAgent = "driveback/" + Version
	c.ShortTimeout = 1 * time.Minute
	c.ListTimeout = 5 * time.Minute
	c.Timeout = 5 * time.Minute
	c.ConnectTimeout = 1 * time.Minute
	c.TPSLimitBurst = 1

	return c
}

type configContextKeyType struct{}

// Context key for config
var configContextKey = configContextKeyType{}

// GetConfig returns the global or context sensitive context
func GetConfig(ctx context.Context) *ConfigInfo {
	if ctx == nil {
		return globalConfig
	}
	c := ctx.Value(configContextKey)
	if c == nil {
		return globalConfig
	}
	return c.(*ConfigInfo)
}

// AddConfig returns a mutable config structure based on a shallow
// copy of that found in ctx and returns a new context with that added
// to it.
func AddConfig(ctx context.Context) (context.Context, *ConfigInfo) {
	c := GetConfig(ctx)
	cCopy := new(ConfigInfo)
	*cCopy = *c
	newCtx := context.WithValue(ctx, configContextKey, cCopy)
	return newCtx, cCopy
}
