// Package constants collects tuning defaults shared across the registry
// reconciler so magic numbers don't drift between packages.
package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default HTTP read-surface host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default HTTP read-surface port
	DefaultAPIPort = 8080

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second
)

// RPC Constants
const (
	// DefaultQueryTimeout is the default timeout for a single RPC call
	DefaultQueryTimeout = 30 * time.Second

	// DefaultMaxRetries is the default maximum number of retry attempts for a failed RPC call
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retries
	DefaultRetryDelay = time.Second

	// DefaultOperatorBatchSize bounds the number of getNodeOperator calls per JSON-RPC batch (§4.3)
	DefaultOperatorBatchSize = 100

	// DefaultKeyBatchSize bounds the number of getSigningKey calls per JSON-RPC batch (§4.4)
	DefaultKeyBatchSize = 100

	// DefaultRPCRateLimit is the default steady-state RPC request rate
	DefaultRPCRateLimit = 50

	// DefaultRPCRateBurst is the default RPC request burst allowance
	DefaultRPCRateBurst = 100
)

// Store Constants
const (
	// DefaultUpsertChunkSize is the conservative row-per-statement chunk size
	// used to stay under embedded-backend bound-parameter limits (§4.5).
	DefaultUpsertChunkSize = 499
)

// Update Loop Constants (§4.8)
const (
	// DefaultIntervalMs is the default period between update cycles
	DefaultIntervalMs = 60_000

	// DefaultUpdateTimeoutMs is the default stall-watchdog deadline
	DefaultUpdateTimeoutMs = 90 * 60 * 1000
)
