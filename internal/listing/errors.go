package listing

import "errors"

var (
	// ErrNotFound is returned when an operation targets an id that is not
	// in the store.
	ErrNotFound = errors.New("listing not found")

	// ErrForbidden is returned when the caller's device id does not match
	// the listing's owner.
	ErrForbidden = errors.New("caller does not own this listing")

	// ErrInvalidPin is returned when a listing is PIN-gated and the caller
	// supplied no PIN or a PIN whose digest does not match.
	ErrInvalidPin = errors.New("listing PIN missing or incorrect")

	// ErrGone is returned when engagement or a report targets a listing
	// that is currently hidden.
	ErrGone = errors.New("listing is hidden")

	// ErrDuplicateID is returned by Insert when the id is already present.
	ErrDuplicateID = errors.New("listing id already exists")
)

// ValidationError reports a missing or empty required field at creation.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "required field is missing or empty: " + e.Field
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
