package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("requested resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden access")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict") // e.g., contest key already exists
	ErrInternalServer = errors.New("internal server error")
	ErrValidation     = errors.New("validation failed")

	// Contest access taxonomy. Inaccessible renders as a generic "no such
	// contest"; PrivateContest is visible but the membership requirement is
	// unmet and renders as a denial with reason.
	ErrInaccessible   = errors.New("contest not accessible")
	ErrPrivateContest = errors.New("contest is private")

	// Join-time rejections. These are user-facing reasons, not exceptional
	// conditions; each maps to its own message.
	ErrNotOngoing             = errors.New("contest is not currently ongoing")
	ErrAlreadyInContest       = errors.New("already in another contest")
	ErrContestEnded           = errors.New("contest has ended")
	ErrOrganizationRestricted = errors.New("contest restricted to member organizations")
	ErrBanned                 = errors.New("banned from joining this contest")

	// ErrAccessCodeRequired signals "retry with an access code": the caller
	// re-prompts instead of treating it as a hard failure.
	ErrAccessCodeRequired = errors.New("access code required")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInaccessible) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrPrivateContest) ||
		errors.Is(err, ErrBanned) || errors.Is(err, ErrOrganizationRestricted) ||
		errors.Is(err, ErrAccessCodeRequired) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotOngoing) || errors.Is(err, ErrContestEnded) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyInContest) {
		return http.StatusConflict
	}

	// Racing joins can reach the unique constraint; surface as a retryable
	// conflict rather than a 500.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
