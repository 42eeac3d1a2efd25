package registry

import "errors"

// Sentinel error kinds, per the error taxonomy of §7. Call sites wrap these
// with fmt.Errorf("...: %w", ErrX) to attach context; callers match with
// errors.Is.
var (
	// ErrChainUnavailable is raised on RPC I/O failure, timeout, or a
	// non-JSON response. The current update is aborted; the next
	// scheduled cycle retries.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrUnknownBlock is raised when resolveBlock returns no block.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrStaleSnapshot is raised by the monotonicity guard (§4.7 step 2)
	// when the resolved block is older than the last persisted one. It
	// is a silent no-op, logged at warn, never returned to the caller of
	// update as an error.
	ErrStaleSnapshot = errors.New("stale snapshot")

	// ErrStoreFailure is raised when a transaction fails to commit. The
	// update is aborted; the next cycle retries, since the engine is
	// idempotent.
	ErrStoreFailure = errors.New("store failure")

	// ErrValidatorsOutdated is raised by the stall watchdog. It is
	// fatal: the process exits.
	ErrValidatorsOutdated = errors.New("validators outdated")

	// ErrTooEarly is surfaced as HTTP 425 when a read is attempted
	// against a module whose Meta row does not exist yet.
	ErrTooEarly = errors.New("too early")
)
