package gameboot

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSceneIndex is the scene a Loader falls back to when the configured one is out of range.
const DefaultSceneIndex = 1

// panicNilHost triggers when New is called without a Host.
const panicNilHost = "gameboot: New requires a non-nil Host"

// State is the lifecycle state of a Loader.
type State uint8

// Loader states. A Loader moves forward through them and never back; StateDestroyed can be entered from any state.
const (
	StateUninitialized State = iota
	StateActivating
	StateRunning
	StateCompleted
	StateDestroyed
)

var stateNames = [...]string{"uninitialized", "activating", "running", "completed", "destroyed"}

// String returns the name of the state.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Bootstrapper declares the work a Loader performs. Prepare runs while the Loader activates and is expected to enqueue
// units; Complete runs once every stage has completed.
type Bootstrapper interface {
	Prepare(ctx context.Context, l *Loader) error
	Complete(l *Loader)
}

// Host owns the process-wide state of the boot sequence: the live Loader, and the callbacks registered while no Loader
// is live. Construct one per process and pass it to anything that needs to register callbacks.
type Host struct {
	sync.Mutex // Protects everything below.

	live       *Loader
	pending    []Func
	sceneIndex int // Last valid scene index, used as the fallback.
	logger     *zap.Logger
}

// NewHost returns a Host with no live Loader.
func NewHost(opts ...Option) *Host {
	cfg := newSettings(opts)
	return &Host{
		sceneIndex: DefaultSceneIndex,
		logger:     cfg.logger,
	}
}

// CallOnComplete registers fn to run once the boot sequence has completed. It may be called at any time:
//   - with no live Loader, fn is buffered and runs as soon as a Loader activates;
//   - with a live Loader that hasn't completed, fn runs when it completes;
//   - after completion, fn runs immediately, before CallOnComplete returns.
func (h *Host) CallOnComplete(fn Func) {
	if fn == nil {
		return
	}

	h.Lock()
	live := h.live
	if live == nil {
		h.pending = append(h.pending, fn)
		h.Unlock()
		return
	}
	admitted := live.callbacks.enqueue(fn)
	if admitted == admitRejected {
		h.pending = append(h.pending, fn)
	}
	h.Unlock()

	if admitted == admitImmediate {
		live.callbacks.invoke(fn)
	}
}

// Live returns the live Loader, or nil if there is none.
func (h *Host) Live() *Loader {
	h.Lock()
	defer h.Unlock()

	return h.live
}

// Pending returns the number of callbacks buffered while no Loader is live.
func (h *Host) Pending() int {
	h.Lock()
	defer h.Unlock()

	return len(h.pending)
}

// SceneIndex returns the scene index a Loader falls back to when its own is invalid.
func (h *Host) SceneIndex() int {
	h.Lock()
	defer h.Unlock()

	return h.sceneIndex
}

// Release marks l as gone. If l was the live Loader, the Host no longer has one, and the next Loader to activate
// becomes live. Callbacks still queued on l are dropped so that they cannot fire for a different run.
func (h *Host) Release(l *Loader) {
	if l == nil {
		return
	}

	h.Lock()
	if h.live == l {
		h.live = nil
	}
	dropped := l.callbacks.discard()
	h.Unlock()

	l.setState(StateDestroyed)
	if len(dropped) > 0 {
		l.logger.Warn("loader released before completion, dropping callbacks", zap.Int("callbacks", len(dropped)))
	}
}

// claim makes l the live Loader unless another one already is. It returns the live Loader.
func (h *Host) claim(l *Loader) (*Loader, bool) {
	h.Lock()
	defer h.Unlock()

	if h.live != nil && h.live != l {
		return h.live, false
	}
	h.live = l
	return l, true
}

// flushPending runs every callback buffered while no Loader was live, in registration order, and empties the buffer.
// It returns the number of callbacks that ran.
func (h *Host) flushPending() int {
	h.Lock()
	pending := h.pending
	h.pending = nil
	h.Unlock()

	for _, fn := range pending {
		invoke(h.logger, fn)
	}
	return len(pending)
}

// resolveSceneIndex validates index against [0, count). A valid index becomes the new fallback; an invalid one is
// replaced by the current fallback and reported as an InvalidStageTargetError.
func (h *Host) resolveSceneIndex(index, count int) (int, error) {
	h.Lock()
	defer h.Unlock()

	if index < 0 || (count > 0 && index >= count) {
		return h.sceneIndex, InvalidStageTargetError{Index: index, Count: count, Default: h.sceneIndex}
	}
	h.sceneIndex = index
	return index, nil
}

// Loader is a single boot sequence. Only one Loader per Host can be live; a Loader that activates while another one is
// live destroys itself and does nothing further.
type Loader struct {
	sync.Mutex // Protects state, scope and sceneIndex.

	id         string
	name       string
	host       *Host
	state      State
	scheduler  *Scheduler
	callbacks  *callbacks
	scope      *Scope
	boot       Bootstrapper
	requested  int // Scene index as configured.
	sceneCount int
	sceneIndex int // Scene index after validation.
	logger     *zap.Logger
}

// New returns a new Loader for host. The Loader does nothing until it is activated.
func New(host *Host, opts ...Option) *Loader {
	if host == nil {
		panic(panicNilHost)
	}

	cfg := newSettings(opts)
	id := uuid.NewString()
	cfg.logger = cfg.logger.With(zap.String("loader", cfg.name), zap.String("loader_id", id))

	l := &Loader{
		id:         id,
		name:       cfg.name,
		host:       host,
		boot:       cfg.boot,
		requested:  cfg.sceneIndex,
		sceneCount: cfg.sceneCount,
		sceneIndex: cfg.sceneIndex,
		logger:     cfg.logger,
	}
	l.callbacks = newCallbacks(cfg.logger)
	l.scheduler = newScheduler(cfg)
	l.scheduler.complete = l.complete
	return l
}

// ID returns the unique id of the Loader.
func (l *Loader) ID() string {
	return l.id
}

// Name returns the name of the Loader.
func (l *Loader) Name() string {
	return l.name
}

// Logger returns the logger of the Loader, annotated with its name and id.
func (l *Loader) Logger() *zap.Logger {
	return l.logger
}

// State returns the current lifecycle state.
func (l *Loader) State() State {
	l.Lock()
	defer l.Unlock()

	return l.state
}

// Scope returns the scope subsystems attach to. It is nil until the Loader is live.
func (l *Loader) Scope() *Scope {
	l.Lock()
	defer l.Unlock()

	return l.scope
}

// SceneIndex returns the scene the application should show once the sequence completes.
func (l *Loader) SceneIndex() int {
	l.Lock()
	defer l.Unlock()

	return l.sceneIndex
}

// Stage returns the stage currently running.
func (l *Loader) Stage() int {
	return l.scheduler.Stage()
}

// String returns the stages still to run. See Scheduler.String.
func (l *Loader) String() string {
	return l.scheduler.String()
}

// Enqueue adds unit to the given stage of the Loader's sequence.
func (l *Loader) Enqueue(name string, unit Unit, stage int) error {
	return l.scheduler.Enqueue(name, unit, stage)
}

// CallOnComplete registers fn to run when this Loader completes, or right away if it already has. Callbacks registered
// on a Loader that isn't live yet, or no longer is, are handed to the Host instead.
func (l *Loader) CallOnComplete(fn Func) {
	if fn == nil {
		return
	}
	if state := l.State(); state == StateUninitialized || state == StateDestroyed {
		l.host.CallOnComplete(fn)
		return
	}

	switch l.callbacks.enqueue(fn) {
	case admitImmediate:
		l.callbacks.invoke(fn)
	case admitRejected:
		l.host.CallOnComplete(fn)
	}
}

// Activate makes the Loader the live instance of its Host and prepares its stages.
// If another Loader is already live, Activate destroys the receiver and returns false; this is not an error. Calling
// Activate on a Loader that is already live does nothing and returns true.
// On success the Loader validates its scene index, builds its Scope, lets its Bootstrapper enqueue units, and runs
// the callbacks that were registered before any Loader was live.
func (l *Loader) Activate(ctx context.Context) (bool, error) {
	l.Lock()
	if l.state != StateUninitialized {
		live := l.state != StateDestroyed
		l.Unlock()
		return live, nil
	}
	l.state = StateActivating
	l.Unlock()

	l.logger.Info("loader starting")

	if live, ok := l.host.claim(l); !ok {
		l.logger.Info("duplicate loader ignored, only one instance may be live", zap.String("live_id", live.ID()))
		l.setState(StateDestroyed)
		for _, fn := range l.callbacks.discard() {
			l.host.CallOnComplete(fn)
		}
		return false, nil
	}

	index, err := l.host.resolveSceneIndex(l.requested, l.sceneCount)
	if err != nil {
		l.logger.Warn("invalid scene index", zap.Error(err))
	} else {
		l.logger.Info("scene index to load", zap.Int("scene", index))
	}

	l.Lock()
	l.sceneIndex = index
	l.scope = newScope(ScopeName)
	l.Unlock()

	if l.boot != nil {
		if err := l.boot.Prepare(ctx, l); err != nil {
			l.host.Release(l)
			return false, errors.Wrapf(err, "prepare %s", l.name)
		}
	}

	if n := l.host.flushPending(); n > 0 {
		l.logger.Debug("ran callbacks registered before activation", zap.Int("callbacks", n))
	}

	if l.boot != nil {
		boot := l.boot
		l.CallOnComplete(func() {
			boot.Complete(l)
		})
	}
	return true, nil
}

// Run executes the Loader's stages on the calling goroutine and blocks until they complete. See Scheduler.Run.
// Run returns an InvalidStateError unless the Loader is live and hasn't been run before.
func (l *Loader) Run(ctx context.Context) error {
	l.Lock()
	msg := ""
	switch l.state {
	case StateActivating:
		l.state = StateRunning
	case StateUninitialized:
		msg = inactiveErrorMessage
	case StateRunning:
		msg = inProgressErrorMessage
	case StateCompleted:
		msg = doneErrorMessage
	case StateDestroyed:
		msg = destroyedErrorMessage
	}
	l.Unlock()

	if msg != "" {
		return InvalidStateError(msg)
	}
	return l.scheduler.Run(ctx)
}

// Boot activates the Loader and, if it became live, runs it. It returns false if another Loader was already live.
func (l *Loader) Boot(ctx context.Context) (bool, error) {
	live, err := l.Activate(ctx)
	if err != nil || !live {
		return live, err
	}
	return true, l.Run(ctx)
}

// Destroy releases the Loader from its Host. See Host.Release.
func (l *Loader) Destroy() {
	l.host.Release(l)
}

// complete is fired by the scheduler after the last stage.
func (l *Loader) complete() {
	l.Lock()
	if l.state != StateRunning {
		l.Unlock()
		return
	}
	l.state = StateCompleted
	l.Unlock()

	l.logger.Info("loader finished initializing")
	l.callbacks.dispatch()
}

func (l *Loader) setState(s State) {
	l.Lock()
	defer l.Unlock()

	l.state = s
}
