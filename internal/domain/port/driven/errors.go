package driven

import "errors"

// Error taxonomy shared by adapters and application services. Adapters wrap
// these with context; callers test with errors.Is.
var (
	// ErrAuthMissing means no source-control credential is available.
	ErrAuthMissing = errors.New("access token not found in storage")

	// ErrNotFound means upstream answered 404 or returned a structurally
	// invalid payload.
	ErrNotFound = errors.New("not found")

	// ErrConflict means upstream rejected a merge (dirty, blocked, stale head).
	ErrConflict = errors.New("merge rejected by upstream")

	// ErrTransport covers network failures and unexpected statuses.
	ErrTransport = errors.New("upstream transport error")
)
