package mirror

import "errors"

var (
	// ErrRemoteUnavailable marks transient failures: transport errors,
	// timeouts, 5xx and 429 responses, or no configured remote at all.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrRemoteRejected marks a remote that answered but refused the
	// request (4xx other than 429).
	ErrRemoteRejected = errors.New("remote rejected")
)

// IsRejected reports whether err is a permanent remote rejection.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRemoteRejected)
}
