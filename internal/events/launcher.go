package events

import (
	"context"
	"time"

	"github.com/example/image-picker/internal/permission"
)

// Launcher turns coordinator side effects into host events.
type Launcher struct {
	pub Publisher
	now func() time.Time
}

// NewLauncher publishes launcher side effects through pub.
func NewLauncher(pub Publisher) *Launcher {
	return &Launcher{pub: pub, now: func() time.Time { return time.Now().UTC() }}
}

// LaunchPicker asks the host to show the picker.
func (l *Launcher) LaunchPicker(ctx context.Context, requestID string, showCamera bool) error {
	return l.pub.Publish(ctx, Event{Type: LaunchPicker, RequestID: requestID, ShowCamera: showCamera, Time: l.now()})
}

// LaunchCamera asks the host to open the camera.
func (l *Launcher) LaunchCamera(ctx context.Context, requestID string) error {
	return l.pub.Publish(ctx, Event{Type: LaunchCamera, RequestID: requestID, Time: l.now()})
}

// RequestPermissions implements permission.Requester.
func (l *Launcher) RequestPermissions(ctx context.Context, caps []permission.Capability) error {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return l.pub.Publish(ctx, Event{Type: RequestPermissions, Permissions: names, Time: l.now()})
}

// RequestFinished tells the host a request left the pending slot.
func (l *Launcher) RequestFinished(ctx context.Context, requestID, outcome string) error {
	return l.pub.Publish(ctx, Event{Type: RequestFinished, RequestID: requestID, Outcome: outcome, Time: l.now()})
}
