package delivery

import "errors"

var (
	ErrPhotoRequired  = errors.New("please attach a delivery photo")
	ErrPhotoTooLarge  = errors.New("photo exceeds the size limit")
	ErrPhotoNotImage  = errors.New("photo must be an image file")
	ErrSenderRequired = errors.New("please enter the sender name")
	ErrInvalidDate    = errors.New("delivery date must be YYYY-MM-DD")
	ErrInvalidTime    = errors.New("delivery time must be HH:MM")

	ErrClosed       = errors.New("delivery confirmation is closed")
	ErrInProgress   = errors.New("delivery confirmation is already being submitted")
	ErrNoQRDispatch = errors.New("QR dispatch is not available")
)

// ValidationError is a local input problem. It is raised before any network
// call and is distinct from backend failures.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
