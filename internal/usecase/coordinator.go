package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/example/image-picker/internal/logging"
	"github.com/example/image-picker/internal/permission"
	"github.com/example/image-picker/internal/repository"
	"github.com/example/image-picker/internal/scaler"
)

// Outcome labels used for status, audit and host notifications.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// RequestRepository persists finished requests.
type RequestRepository interface {
	SaveLog(ctx context.Context, log *repository.RequestLog) error
}

// Option configures optional collaborators of the coordinator.
type Option func(*RequestCoordinator)

// WithStatusCache publishes every transition to cache.
func WithStatusCache(cache *StatusCache) Option {
	return func(c *RequestCoordinator) { c.status = cache }
}

// WithRepository records every finished request.
func WithRepository(repo RequestRepository) Option {
	return func(c *RequestCoordinator) { c.repo = repo }
}

// WithNotifier announces finished requests to the host.
func WithNotifier(n Notifier) Option {
	return func(c *RequestCoordinator) { c.notifier = n }
}

// WithExecutor overrides how post-processing is scheduled. The default runs
// it on a new goroutine.
func WithExecutor(execute func(func())) Option {
	return func(c *RequestCoordinator) { c.execute = execute }
}

// WithFilesystem sets where acquired image paths are read from.
func WithFilesystem(fs afero.Fs) Option {
	return func(c *RequestCoordinator) { c.fs = fs }
}

// RequestCoordinator owns the single pending pick request and drives it
// through permission, picker and camera callbacks.
type RequestCoordinator struct {
	mu      sync.Mutex
	state   State
	pending *PendingRequest

	gate     permission.Gate
	launcher Launcher
	scaler   ImageScaler
	fs       afero.Fs
	status   *StatusCache
	repo     RequestRepository
	notifier Notifier
	execute  func(func())
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// NewRequestCoordinator constructs an idle coordinator.
func NewRequestCoordinator(gate permission.Gate, launcher Launcher, sc ImageScaler, logger *zap.Logger, opts ...Option) *RequestCoordinator {
	c := &RequestCoordinator{
		state:    StateIdle,
		gate:     gate,
		launcher: launcher,
		scaler:   sc,
		fs:       afero.NewOsFs(),
		execute:  func(f func()) { go f() },
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		logger:   logger.Named("request_coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *RequestCoordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns a copy of the pending request, if any.
func (c *RequestCoordinator) Pending() (PendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingRequest{}, false
	}
	p := *c.pending
	p.result = nil
	return p, true
}

// BeginRequest starts a pick. The returned error covers only failures that
// prevent the request from being registered; everything after that reaches
// result. A camera request missing permissions returns without resolving
// result until the host answers the permission request.
func (c *RequestCoordinator) BeginRequest(ctx context.Context, source Source, constraints scaler.Constraints, hasForeground bool, result Result) (string, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return "", ErrAlreadyActive
	}
	if !hasForeground {
		c.mu.Unlock()
		return "", ErrNoForegroundContext
	}
	if !source.Valid() {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %d", ErrInvalidSource, int(source))
	}

	req := &PendingRequest{
		ID:          c.newID(),
		Source:      source,
		Constraints: constraints.Clone(),
		StartedAt:   c.now(),
		result:      &onceResult{r: result},
	}

	var launch func() error
	switch source {
	case SourceAskUser, SourceGallery:
		showCamera := source == SourceAskUser
		launch = func() error { return c.launcher.LaunchPicker(ctx, req.ID, showCamera) }
		c.enterLocked(req, StateAwaitingPickerResult)
	case SourceCamera:
		missing := permission.Missing(c.gate, permission.Camera, permission.ReadExternalStorage)
		if len(missing) > 0 {
			launch = func() error { return c.gate.Request(ctx, missing) }
			c.enterLocked(req, StateAwaitingPermission)
		} else {
			launch = func() error { return c.launcher.LaunchCamera(ctx, req.ID) }
			c.enterLocked(req, StateAwaitingCameraResult)
		}
	}
	state := req.State
	c.mu.Unlock()

	opLogger := logging.WithRequest(c.logger, "usecase.begin_request", req.ID, source.String())
	opLogger.Info("pick request started", zap.String("state", state.String()))
	c.publishStatus(ctx, req, state, "", nil)

	if err := launch(); err != nil {
		wrapped := logging.NewOperationError("usecase.launch", req.ID, err)
		opLogger.Error("failed to launch external source", zap.Error(wrapped))
		if c.release(req) {
			c.record(ctx, req, outcomeError, nil, fmt.Errorf("%w: %w", ErrPickFailed, wrapped))
		}
		return "", fmt.Errorf("%w: %w", ErrPickFailed, wrapped)
	}
	return req.ID, nil
}

// OnPermissionResult completes a permission request. granted must be true
// only when every requested capability was granted.
func (c *RequestCoordinator) OnPermissionResult(ctx context.Context, granted bool) error {
	c.mu.Lock()
	if c.state != StateAwaitingPermission {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("ignoring permission result", zap.String("state", state.String()), zap.Bool("granted", granted))
		return nil
	}
	req := c.pending
	if !granted {
		c.clearLocked()
		c.mu.Unlock()
		c.finish(ctx, req, outcomeError, nil, ErrPermissionDenied)
		return nil
	}
	c.enterLocked(req, StateAwaitingCameraResult)
	c.mu.Unlock()

	c.publishStatus(ctx, req, StateAwaitingCameraResult, "", nil)
	if err := c.launcher.LaunchCamera(ctx, req.ID); err != nil {
		wrapped := logging.NewOperationError("usecase.launch_camera", req.ID, err)
		c.logger.Error("failed to launch camera", zap.Error(wrapped))
		if c.release(req) {
			c.finish(ctx, req, outcomeError, nil, fmt.Errorf("%w: %w", ErrPickFailed, wrapped))
		}
	}
	return nil
}

// OnPickerResult delivers the picker's outcome.
func (c *RequestCoordinator) OnPickerResult(ctx context.Context, outcome Outcome) error {
	return c.onSourceResult(ctx, StateAwaitingPickerResult, outcome, "error picking image")
}

// OnCameraResult delivers the camera's outcome.
func (c *RequestCoordinator) OnCameraResult(ctx context.Context, outcome Outcome) error {
	return c.onSourceResult(ctx, StateAwaitingCameraResult, outcome, "error taking photo")
}

func (c *RequestCoordinator) onSourceResult(ctx context.Context, want State, outcome Outcome, failure string) error {
	c.mu.Lock()
	if c.state != want {
		state := c.state
		c.mu.Unlock()
		if state == StateIdle && outcome.Kind == OutcomePicked {
			c.logger.Error("image delivered with no pending request", zap.String("expected_state", want.String()))
			return ErrInvalidState
		}
		c.logger.Warn("ignoring source result",
			zap.String("state", state.String()),
			zap.String("expected_state", want.String()),
			zap.String("outcome", outcome.Kind.String()),
		)
		return nil
	}
	req := c.pending

	switch outcome.Kind {
	case OutcomeCancelled:
		c.clearLocked()
		c.mu.Unlock()
		// The caller is deliberately left without a reply.
		logging.WithRequest(c.logger, "usecase.source_result", req.ID, req.Source.String()).
			Info("pick cancelled by user; caller is not resolved")
		c.finish(ctx, req, outcomeCancelled, nil, nil)
		return nil

	case OutcomePicked:
		if len(outcome.Images) == 0 {
			c.clearLocked()
			c.mu.Unlock()
			c.finish(ctx, req, outcomeError, nil, fmt.Errorf("%w: no image returned", ErrPickFailed))
			return nil
		}
		img := outcome.Images[0]
		c.enterLocked(req, StateProcessing)
		c.mu.Unlock()

		c.publishStatus(ctx, req, StateProcessing, "", nil)
		bg := context.WithoutCancel(ctx)
		c.execute(func() {
			out, err := c.postProcess(req, img)
			c.release(req)
			if err != nil {
				c.finish(bg, req, outcomeError, nil, err)
				return
			}
			c.finish(bg, req, outcomeSuccess, &out, nil)
		})
		return nil

	default:
		c.clearLocked()
		c.mu.Unlock()
		msg := failure
		if outcome.Message != "" {
			msg = failure + ": " + outcome.Message
		}
		c.finish(ctx, req, outcomeError, nil, fmt.Errorf("%w: %s", ErrPickFailed, msg))
		return nil
	}
}

// postProcess returns the bytes delivered to the caller: scaled when any
// constraint was given, verbatim otherwise.
func (c *RequestCoordinator) postProcess(req *PendingRequest, img AcquiredImage) (ScaledOutput, error) {
	opLogger := logging.WithRequest(c.logger, "usecase.post_process", req.ID, req.Source.String())

	src, err := c.readSource(img)
	if err != nil {
		opLogger.Error("failed to read acquired image", zap.Error(err), zap.String("path", img.Path))
		return ScaledOutput{}, err
	}

	data := src
	if req.Constraints.ShouldScale() {
		data, err = c.scaler.Scale(src, req.Constraints)
		if err != nil {
			opLogger.Error("failed to scale acquired image", zap.Error(err))
			return ScaledOutput{}, err
		}
	}

	name := img.Name
	if name == "" && img.Path != "" {
		name = filepath.Base(img.Path)
	}
	opLogger.Info("acquired image processed",
		zap.String("name", name),
		zap.Bool("scaled", req.Constraints.ShouldScale()),
		zap.Int("bytes", len(data)),
	)
	return ScaledOutput{Name: name, Bytes: data}, nil
}

func (c *RequestCoordinator) readSource(img AcquiredImage) ([]byte, error) {
	if img.Bytes != nil {
		return img.Bytes, nil
	}
	if img.Path == "" {
		return nil, fmt.Errorf("%w: acquired image has neither bytes nor path", ErrIO)
	}
	data, err := afero.ReadFile(c.fs, img.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}

func (c *RequestCoordinator) enterLocked(req *PendingRequest, state State) {
	req.State = state
	c.pending = req
	c.state = state
}

func (c *RequestCoordinator) clearLocked() {
	c.pending = nil
	c.state = StateIdle
}

// release clears the slot if req still owns it.
func (c *RequestCoordinator) release(req *PendingRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != req {
		return false
	}
	c.clearLocked()
	return true
}

// finish resolves the caller (unless cancelled) and records the outcome.
// The slot must already be released.
func (c *RequestCoordinator) finish(ctx context.Context, req *PendingRequest, outcome string, out *ScaledOutput, err error) {
	switch {
	case err != nil:
		req.result.Failure(err)
	case out != nil:
		req.result.Success(*out)
	}
	c.record(ctx, req, outcome, out, err)
}

func (c *RequestCoordinator) record(ctx context.Context, req *PendingRequest, outcome string, out *ScaledOutput, err error) {
	opLogger := logging.WithRequest(c.logger, "usecase.finish", req.ID, req.Source.String())
	finishedAt := c.now()
	if err != nil {
		opLogger.Warn("pick request failed", zap.Error(err), zap.String("code", CodeOf(err)))
	} else {
		opLogger.Info("pick request finished", zap.String("outcome", outcome))
	}

	c.publishStatus(ctx, req, StateIdle, outcome, err)

	if c.repo != nil {
		entry := &repository.RequestLog{
			RequestID:  req.ID,
			Source:     req.Source.String(),
			Outcome:    outcome,
			ErrorCode:  CodeOf(err),
			Scaled:     req.Constraints.ShouldScale(),
			DurationMs: finishedAt.Sub(req.StartedAt).Milliseconds(),
			StartedAt:  req.StartedAt,
			FinishedAt: finishedAt,
		}
		if out != nil {
			entry.ImageName = out.Name
			entry.OutputBytes = len(out.Bytes)
		}
		if saveErr := c.repo.SaveLog(ctx, entry); saveErr != nil {
			opLogger.Warn("failed to persist request log", zap.Error(saveErr))
		}
	}

	if c.notifier != nil {
		if notifyErr := c.notifier.RequestFinished(ctx, req.ID, outcome); notifyErr != nil {
			opLogger.Warn("failed to notify host", zap.Error(notifyErr))
		}
	}
}

func (c *RequestCoordinator) publishStatus(ctx context.Context, req *PendingRequest, state State, outcome string, err error) {
	if c.status == nil {
		return
	}
	st := RequestStatus{
		RequestID: req.ID,
		Source:    req.Source.String(),
		State:     state.String(),
		Outcome:   outcome,
		ErrorCode: CodeOf(err),
		UpdatedAt: c.now(),
	}
	if putErr := c.status.Put(ctx, st); putErr != nil {
		logging.WithOperation(c.logger, "usecase.publish_status", req.ID).Warn("failed to cache request status", zap.Error(putErr))
	}
}
