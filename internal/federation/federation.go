package federation

import (
	"errors"
	"net/http"

	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
)

var (
	// ErrUnsupported reports an activity or object type the engine does not
	// process. Receipt endpoints turn it into a client error so peers stop
	// retrying.
	ErrUnsupported = errors.New("unsupported type")

	// ErrVerification reports a cross-check failure: a WebFinger subject that
	// does not round-trip, a key document naming a different owner, or an
	// attribution that contradicts the acting actor.
	ErrVerification = errors.New("verification failed")

	// ErrMissingProperty reports a document lacking a property the engine
	// requires.
	ErrMissingProperty = errors.New("missing property")

	// ErrFatal marks a remote fetch failure that retrying will not fix, such
	// as a 404 or 410 from the peer.
	ErrFatal = errors.New("fatal fetch failure")

	// ErrTemporary marks a remote fetch failure worth retrying.
	ErrTemporary = errors.New("temporary fetch failure")
)

// StatusCode maps an ingestion error onto the HTTP status the receipt
// endpoint answers with. Verification, unsupported-type and malformed-note
// failures are the sender's fault; conflicts mean the work already happened.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrMissingProperty),
		errors.Is(err, domain.ErrEmptySummary):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrVerification):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound), errors.Is(err, ErrFatal):
		return http.StatusNotFound
	case errors.Is(err, db.ErrConflict):
		return http.StatusAccepted
	case errors.Is(err, db.ErrAborted), errors.Is(err, ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a queued delivery or fetch that failed with err
// should be attempted again.
func Retryable(err error) bool {
	return !errors.Is(err, ErrFatal) &&
		!errors.Is(err, ErrUnsupported) &&
		!errors.Is(err, ErrVerification) &&
		!errors.Is(err, ErrMissingProperty) &&
		!errors.Is(err, domain.ErrEmptySummary)
}
