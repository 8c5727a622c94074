package storage

import "time"

// Log field keys.
const (
	logFieldBackend = "backend"
	logFieldPath    = "path"
)

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Pool defaults for the postgres backend.
const (
	defaultMaxConns          = 4
	defaultMinConns          = 1
	defaultMaxConnIdleTime   = 30 * time.Minute
	defaultMaxConnLifetime   = time.Hour
	defaultHealthCheckPeriod = time.Minute
)

// File backend permissions.
const (
	historyDirPerm  = 0o755
	historyFilePerm = 0o600
)
