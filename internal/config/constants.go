package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Startup and health check timeouts
const (
	DBPingTimeout    = 5 * time.Second
	RedisPingTimeout = 5 * time.Second
	StartupTimeout   = 30 * time.Second
)

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 60

// MaxRequestBodySize caps JSON request bodies.
const MaxRequestBodySize = 1 << 20
