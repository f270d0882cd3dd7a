// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"go.uber.org/zap"
)

// State is the lifecycle position of a Context.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Layer is one nested resource. Close is only called if Open succeeded.
type Layer struct {
	Name  string
	Open  func(ctx context.Context) error
	Close func(ctx context.Context) error
}

// ErrLayerPanic marks a layer whose Open or Close panicked.
var ErrLayerPanic = errors.New("session layer panicked")

// defaultCloseTimeout bounds teardown of all layers together.
const defaultCloseTimeout = 10 * time.Second

// -- Structs and Constructors --

// Context owns the resources of one scenario or one concurrent actor.
// uninitialized --Acquire--> ready --Release--> closed. Closed is terminal.
type Context struct {
	id           string
	kind         Kind
	prov         Provisioner
	logger       *zap.Logger
	recorder     Recorder
	closeTimeout time.Duration

	mu      sync.Mutex
	state   State
	opened  []Layer
	surface Surface
}

// Option configures a Context.
type Option func(*Context)

// WithRecorder reports lifecycle events to r.
func WithRecorder(r Recorder) Option { return func(c *Context) { c.recorder = r } }

// WithCloseTimeout bounds Release.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.closeTimeout = d
		}
	}
}

// New creates an uninitialized Context backed by prov.
func New(prov Provisioner, logger *zap.Logger, opts ...Option) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	c := &Context{
		id:           id,
		kind:         prov.Kind(),
		prov:         prov,
		logger:       logger.Named("session").With(zap.String("session_id", id), zap.String("kind", string(prov.Kind()))),
		closeTimeout: defaultCloseTimeout,
		state:        StateUninitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) ID() string { return c.id }
func (c *Context) Kind() Kind { return c.kind }

// State reports the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// -- Lifecycle --

// Acquire opens every layer outermost first. If a layer fails or panics, the layers
// already open are closed in reverse and the Context ends up closed. A panic is
// returned as an error wrapping ErrLayerPanic.
func (c *Context) Acquire(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return c.lifecycleErr("acquire")
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		c.logger.Error("Session acquire panicked; unwinding.", zap.Any("panic", r))
		if unwindErr := c.unwindLocked(ctx); unwindErr != nil {
			c.logger.Warn("Unwind after panic left errors.", zap.Error(unwindErr))
		}
		c.record("acquire_failed")
		err = fmt.Errorf("%w during acquire: %v", ErrLayerPanic, r)
	}()

	c.logger.Debug("Acquiring session.")
	for _, layer := range c.prov.Layers() {
		if err := ctx.Err(); err != nil {
			c.unwindLocked(ctx)
			c.record("acquire_failed")
			return fmt.Errorf("session acquire interrupted before %s: %w", layer.Name, err)
		}
		if err := layer.Open(ctx); err != nil {
			c.logger.Warn("Session layer failed to open; unwinding.", zap.String("layer", layer.Name), zap.Error(err))
			c.unwindLocked(ctx)
			c.record("acquire_failed")
			return fmt.Errorf("failed to open %s: %w", layer.Name, err)
		}
		c.opened = append(c.opened, layer)
	}

	c.surface = c.prov.Surface()
	c.surface.Kind = c.kind
	c.surface.SessionID = c.id
	c.state = StateReady
	c.record("acquired")
	c.logger.Debug("Session ready.", zap.Int("layers", len(c.opened)))
	return nil
}

// Release closes the open layers in reverse order of acquisition. It is idempotent:
// only the first call tears anything down and later calls return nil. Teardown runs
// even if ctx is already cancelled. Close errors are joined and returned, but every
// layer is attempted.
func (c *Context) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}
	err := c.unwindLocked(ctx)
	c.record("released")
	if err != nil {
		c.logger.Warn("Session released with errors.", zap.Error(err))
	} else {
		c.logger.Debug("Session released.")
	}
	return err
}

// unwindLocked closes opened layers innermost first and marks the Context closed.
func (c *Context) unwindLocked(ctx context.Context) error {
	c.state = StateClosed
	c.surface = Surface{}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.closeTimeout)
	defer cancel()

	var errs []error
	for i := len(c.opened) - 1; i >= 0; i-- {
		layer := c.opened[i]
		if layer.Close == nil {
			continue
		}
		if err := closeLayer(closeCtx, layer); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", layer.Name, err))
		}
	}
	c.opened = nil
	return errors.Join(errs...)
}

// closeLayer runs layer.Close, reporting a panic as an error so later layers still close.
func closeLayer(ctx context.Context, layer Layer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLayerPanic, r)
		}
	}()
	return layer.Close(ctx)
}

// -- Surface Access --

// Surface returns the acquired surface. Any state other than ready is a LifecycleError.
func (c *Context) Surface() (Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return Surface{}, c.lifecycleErr("use surface")
	}
	return c.surface, nil
}

// Page returns the interactive surface.
func (c *Context) Page() (Page, error) {
	s, err := c.Surface()
	if err != nil {
		return nil, err
	}
	if s.Page == nil {
		return nil, &schemas.LifecycleError{SessionID: c.id, State: string(c.kind), Op: "use page surface"}
	}
	return s.Page, nil
}

// API returns the api surface. Interactive sessions carry a page-bound client as well.
func (c *Context) API() (APIClient, error) {
	s, err := c.Surface()
	if err != nil {
		return nil, err
	}
	if s.API == nil {
		return nil, &schemas.LifecycleError{SessionID: c.id, State: string(c.kind), Op: "use api surface"}
	}
	return s.API, nil
}

func (c *Context) lifecycleErr(op string) error {
	return &schemas.LifecycleError{SessionID: c.id, State: c.state.String(), Op: op}
}

func (c *Context) record(event string) {
	if c.recorder != nil {
		c.recorder.RecordSession(string(c.kind), event)
	}
}

// -- Scoped Use --

// Use acquires c, runs fn with the surface and releases c on every exit path,
// including panics raised by fn. A release error is joined to fn's error.
func Use(ctx context.Context, c *Context, fn func(ctx context.Context, s Surface) error) (err error) {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if relErr := c.Release(ctx); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}()

	s, err := c.Surface()
	if err != nil {
		return err
	}
	return fn(ctx, s)
}
