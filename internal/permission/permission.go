package permission

import (
	"context"
	"sync"
)

// Capability names a runtime-gated platform capability.
type Capability string

const (
	Camera              Capability = "CAMERA"
	ReadExternalStorage Capability = "READ_EXTERNAL_STORAGE"
)

// Gate answers whether a capability is authorized and can ask for it.
type Gate interface {
	IsGranted(c Capability) bool
	// Request asks for caps asynchronously. The outcome is reported back to
	// the coordinator through OnPermissionResult, never through the return value.
	Request(ctx context.Context, caps []Capability) error
}

// Static is a Gate for hosts without a runtime permission model.
// Everything is granted except capabilities listed in Denied.
type Static struct {
	Denied map[Capability]bool
}

// IsGranted is false only for capabilities listed in Denied.
func (s Static) IsGranted(c Capability) bool {
	return !s.Denied[c]
}

// Request does nothing; a static platform has no permission dialog.
func (s Static) Request(ctx context.Context, caps []Capability) error {
	return nil
}

// Requester delivers a permission request to whoever shows the dialog.
type Requester interface {
	RequestPermissions(ctx context.Context, caps []Capability) error
}

// Registry tracks grants reported by the host. When storage reads are not
// gated on the host platform, ReadExternalStorage is always granted.
type Registry struct {
	mu           sync.Mutex
	granted      map[Capability]bool
	requested    []Capability
	storageGated bool
	requester    Requester
}

// NewRegistry builds a Registry that forwards requests to requester.
func NewRegistry(requester Requester, storageGated bool) *Registry {
	return &Registry{
		granted:      make(map[Capability]bool),
		storageGated: storageGated,
		requester:    requester,
	}
}

// IsGranted reports whether the host has granted c.
func (r *Registry) IsGranted(c Capability) bool {
	if c == ReadExternalStorage && !r.storageGated {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.granted[c]
}

// Request remembers caps as the outstanding request and forwards it to the host.
func (r *Registry) Request(ctx context.Context, caps []Capability) error {
	r.mu.Lock()
	r.requested = append([]Capability(nil), caps...)
	r.mu.Unlock()
	return r.requester.RequestPermissions(ctx, caps)
}

// Complete records the host's answer to the outstanding request. A partial
// grant is reported as a denial and records nothing.
func (r *Registry) Complete(granted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if granted {
		for _, c := range r.requested {
			r.granted[c] = true
		}
	}
	r.requested = nil
	return granted
}

// Revoke drops a previously recorded grant.
func (r *Registry) Revoke(c Capability) {
	r.mu.Lock()
	delete(r.granted, c)
	r.mu.Unlock()
}

// Missing returns the subset of caps that are not granted, in order.
func Missing(g Gate, caps ...Capability) []Capability {
	var missing []Capability
	for _, c := range caps {
		if !g.IsGranted(c) {
			missing = append(missing, c)
		}
	}
	return missing
}
