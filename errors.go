package audiolink

import "errors"

// Error kinds for the receiver. Initialization failures surface wrapped in
// one of these so callers can classify them with errors.Is; steady-state
// conditions such as malformed packets or underruns are absorbed into
// Stats counters instead of surfacing as errors.
var (
	// ErrSocket marks a bind or unrecoverable socket failure.
	ErrSocket = errors.New("socket failure")

	// ErrDecode marks a codec construction or decode failure.
	ErrDecode = errors.New("decode failure")
)
