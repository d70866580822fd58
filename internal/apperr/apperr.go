// Package apperr defines the error taxonomy shared across the scheduling core.
//
// Errors are plain cockroachdb/errors values marked with a category sentinel,
// so callers branch with errors.Is / the IsX helpers instead of string
// matching, and wrapped causes keep their stack traces.
//
// Propagation policy:
//   - Validation / Conflict / NotFound surface to the caller of Bind.
//   - Provider errors are recovered per recipient inside the dispatcher and
//     folded into the aggregated result; they never abort a batch.
//   - Scheduling errors (a fired job's callback failing) are logged and
//     swallowed by the job scheduler's workers.
package apperr

import (
	"github.com/cockroachdb/errors"
)

// Category sentinels. Use the constructors below rather than wrapping these
// directly.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrProvider   = errors.New("provider failure")
	ErrScheduling = errors.New("scheduling failure")

	// ErrUnauthorizedRecipient refines ErrProvider: the primary provider
	// rejected the recipient as unauthorized/unverified. The email dispatcher
	// retries exactly this subset through the fallback provider.
	ErrUnauthorizedRecipient = errors.New("recipient unauthorized")
)

func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func Conflictf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func Providerf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrProvider)
}

// ProviderWrap wraps a transport-level cause as a provider failure.
func ProviderWrap(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrProvider)
}

// UnauthorizedRecipientf builds a provider failure that is additionally
// marked as an unauthorized-recipient rejection.
func UnauthorizedRecipientf(format string, args ...any) error {
	return errors.Mark(errors.Mark(errors.Newf(format, args...), ErrProvider), ErrUnauthorizedRecipient)
}

func Schedulingf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrScheduling)
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsProvider(err error) bool   { return errors.Is(err, ErrProvider) }

func IsUnauthorizedRecipient(err error) bool { return errors.Is(err, ErrUnauthorizedRecipient) }
