package events

import (
	"context"
	"time"
)

// Type names a host-facing event.
type Type string

const (
	LaunchPicker       Type = "launch_picker"
	LaunchCamera       Type = "launch_camera"
	RequestPermissions Type = "request_permissions"
	RequestFinished    Type = "request_finished"
)

// Event is what the host receives. The host shows the picker, the camera
// or the permission dialog and reports back through the callback routes.
type Event struct {
	Type        Type      `json:"type"`
	RequestID   string    `json:"request_id,omitempty"`
	ShowCamera  bool      `json:"show_camera,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	Time        time.Time `json:"time"`
}

// Publisher delivers events to the host.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// ForegroundReporter reports whether a host is attached and able to show UI.
type ForegroundReporter interface {
	HasForeground() bool
}
