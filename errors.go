package httpwire

import "github.com/pkg/errors"

// Error kinds. Packages wrap these with context; callers match them with
// [errors.Is]. I/O failures are not translated — they bubble up from the
// socket layer as-is, so [ErrTimeout] stays distinct from plain I/O errors.
var (
	// ErrInvalidConfig reports a non-positive pool capacity or a
	// zero/negative duration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidHeader reports a header rejected by the active policy.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrInvalidRequest reports a request that cannot be sent: both body
	// sources set, a missing file, missing Content-Length/Content-Type when
	// the method requires a body, or a chunk sender driven out of order.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidResponse reports a response that breaks the protocol: a
	// malformed status line, an ill-framed chunk, a version mismatch in
	// strict mode, or a redirect/repeat loop beyond its cap.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrTimeout reports that pool acquisition exceeded its wait budget.
	ErrTimeout = errors.New("timed out")
)
