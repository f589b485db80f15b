package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/image-picker/internal/scaler"
)

// Source selects where the image comes from. Values match the wire protocol.
type Source int

const (
	SourceAskUser Source = 0
	SourceCamera  Source = 1
	SourceGallery Source = 2
)

// Valid reports whether s is one of the three wire values.
func (s Source) Valid() bool {
	return s == SourceAskUser || s == SourceCamera || s == SourceGallery
}

func (s Source) String() string {
	switch s {
	case SourceAskUser:
		return "ask_user"
	case SourceCamera:
		return "camera"
	case SourceGallery:
		return "gallery"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingPermission
	StateAwaitingPickerResult
	StateAwaitingCameraResult
	// StateProcessing holds the request while the acquired image is read
	// and scaled off the callback goroutine.
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPermission:
		return "awaiting_permission"
	case StateAwaitingPickerResult:
		return "awaiting_picker_result"
	case StateAwaitingCameraResult:
		return "awaiting_camera_result"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AcquiredImage is produced by the picker or the camera. Bytes wins over Path
// when both are set.
type AcquiredImage struct {
	Path   string `json:"path,omitempty"`
	Bytes  []byte `json:"bytes,omitempty"`
	Name   string `json:"name"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// OutcomeKind is what the picker or camera reported.
type OutcomeKind int

const (
	OutcomePicked OutcomeKind = iota
	OutcomeCancelled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePicked:
		return "picked"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is one picker or camera callback. Only the first image is used.
type Outcome struct {
	Kind    OutcomeKind
	Images  []AcquiredImage
	Message string
}

// Picked is shorthand for a successful single-image outcome.
func Picked(img AcquiredImage) Outcome {
	return Outcome{Kind: OutcomePicked, Images: []AcquiredImage{img}}
}

// ScaledOutput is the payload delivered to the caller.
type ScaledOutput struct {
	Name  string `json:"name"`
	Bytes []byte `json:"bytes"`
}

// Result receives the terminal outcome of a request. Exactly one method is
// called, at most once; a cancelled request calls neither.
type Result interface {
	Success(out ScaledOutput)
	Failure(err error)
}

// ResultFunc adapts a function to Result. out is nil on failure.
type ResultFunc func(out *ScaledOutput, err error)

func (f ResultFunc) Success(out ScaledOutput) { f(&out, nil) }
func (f ResultFunc) Failure(err error)        { f(nil, err) }

type onceResult struct {
	once sync.Once
	r    Result
}

func (o *onceResult) Success(out ScaledOutput) {
	o.once.Do(func() {
		if o.r != nil {
			o.r.Success(out)
		}
	})
}

func (o *onceResult) Failure(err error) {
	o.once.Do(func() {
		if o.r != nil {
			o.r.Failure(err)
		}
	})
}

// PendingRequest is the single in-flight request.
type PendingRequest struct {
	ID          string
	Source      Source
	Constraints scaler.Constraints
	State       State
	StartedAt   time.Time

	result *onceResult
}

// Launcher starts the external picker and camera.
type Launcher interface {
	LaunchPicker(ctx context.Context, requestID string, showCamera bool) error
	LaunchCamera(ctx context.Context, requestID string) error
}

// Notifier is told when a request leaves the pending slot.
type Notifier interface {
	RequestFinished(ctx context.Context, requestID, outcome string) error
}

// ImageScaler is the scaling capability used for post-processing.
type ImageScaler interface {
	Scale(src []byte, c scaler.Constraints) ([]byte, error)
}
