package usecase

import (
	"errors"

	"github.com/example/image-picker/internal/scaler"
)

var (
	// ErrAlreadyActive is returned when a request is already pending.
	ErrAlreadyActive = errors.New("image picker is already active")

	// ErrNoForegroundContext means no host is attached to show picker UI.
	ErrNoForegroundContext = errors.New("image picker requires a foreground host")

	// ErrInvalidSource is a caller contract violation.
	ErrInvalidSource = errors.New("invalid image source")

	// ErrInvalidState reports an image delivered with nothing pending.
	ErrInvalidState = errors.New("received images from picker that were not requested")

	// ErrPermissionDenied means the host refused at least one capability.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrPickFailed means the picker or the camera reported a failure.
	ErrPickFailed = errors.New("pick failed")

	// ErrIO covers reading the acquired image.
	ErrIO = errors.New("image i/o failed")
)

// Wire codes returned to callers.
const (
	CodeAlreadyActive    = "ALREADY_ACTIVE"
	CodeNoActivity       = "no_activity"
	CodePickError        = "PICK_ERROR"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeIOError          = "IO_ERROR"
	CodeInvalidSource    = "INVALID_SOURCE"
	CodeInvalidState     = "INVALID_STATE"
	CodeInternal         = "INTERNAL"
)

// CodeOf maps an error to its wire code.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyActive):
		return CodeAlreadyActive
	case errors.Is(err, ErrNoForegroundContext):
		return CodeNoActivity
	case errors.Is(err, ErrInvalidSource):
		return CodeInvalidSource
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrPickFailed):
		return CodePickError
	case errors.Is(err, ErrIO), errors.Is(err, scaler.ErrDecode), errors.Is(err, scaler.ErrEncode):
		return CodeIOError
	default:
		return CodeInternal
	}
}

// IsContractViolation reports errors that indicate a caller bug rather than
// a runtime condition.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrInvalidSource) || errors.Is(err, ErrInvalidState)
}
