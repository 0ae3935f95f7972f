package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Outbox timeouts
const (
	OutboxFetchTimeout    = 10 * time.Second
	OutboxDispatchTimeout = 30 * time.Second
)

// Lifecycle timeouts for calls into the messaging client
const (
	ClientInitTimeout     = 2 * time.Minute
	ClientDestroyTimeout  = 30 * time.Second
	CredentialWipeTimeout = 30 * time.Second
	PersistTimeout        = 10 * time.Second
)

// Bridge HTTP client timeout
const BridgeRequestTimeout = 30 * time.Second
