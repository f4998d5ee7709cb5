// Package scenes tracks the active scene and performs transitions between scenes. A transition is a gameboot.Unit, so
// it runs on a Scheduler tick by tick, reporting its progress on the loading overlay.
package scenes

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mkock/gameboot"
	"github.com/mkock/gameboot/internal/eventbus"
	"github.com/mkock/gameboot/internal/ui"
	"go.uber.org/zap"
)

// DefaultSteps is the number of ticks a transition spends loading.
const DefaultSteps = 4

// ErrUnknownScene is returned for a scene index outside the known scenes.
var ErrUnknownScene = errors.New("unknown scene")

// ErrNotInitialized is returned when loading a scene before Initialize.
var ErrNotInitialized = errors.New("scene loader not initialized")

// Loaded is the payload of eventbus.TopicSceneLoading and eventbus.TopicSceneLoaded.
type Loaded struct {
	Index int
	Name  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithSteps sets the number of ticks a transition spends loading.
func WithSteps(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.steps = n
		}
	}
}

// WithActive sets the scene that is active before any transition.
func WithActive(index int) Option {
	return func(m *Manager) {
		m.active = index
	}
}

// Manager owns the active scene.
type Manager struct {
	mu      sync.Mutex
	names   []string
	active  int
	loading bool
	steps   int
	overlay *ui.Overlay
	bus     *eventbus.Bus
	logger  *zap.Logger
}

// New returns a Manager for the named scenes. Scene indexes refer to positions in names. Scene 0 is active until a
// transition says otherwise.
func New(names []string, bus *eventbus.Bus, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		names:  append([]string(nil), names...),
		steps:  DefaultSteps,
		bus:    bus,
		logger: logger.Named("scenes"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Initialize hands the Manager the overlay it reports transitions on and returns the Manager.
func (m *Manager) Initialize(overlay *ui.Overlay) (*Manager, error) {
	if overlay == nil {
		return nil, errors.AssertionFailedf("scene loader requires an overlay")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.overlay = overlay
	m.logger.Debug("scene loader initialized", zap.Int("scenes", len(m.names)), zap.Int("active", m.active))
	return m, nil
}

// Count returns the number of known scenes.
func (m *Manager) Count() int {
	return len(m.names)
}

// Active returns the index of the active scene.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// Name returns the name of the scene at index.
func (m *Manager) Name(index int) string {
	if index < 0 || index >= len(m.names) {
		return fmt.Sprintf("scene-%d", index)
	}
	return m.names[index]
}

// Load returns a Unit that transitions to the scene at index. The Unit fails if the index is unknown, or if another
// transition is already in progress when it starts.
func (m *Manager) Load(index int) gameboot.Unit {
	var (
		step    int
		started bool
	)
	return gameboot.UnitFunc(func(ctx context.Context) (bool, error) {
		if !started {
			if err := m.begin(index); err != nil {
				return false, err
			}
			started = true
		}
		if err := ctx.Err(); err != nil {
			m.abort()
			return false, err
		}

		step++
		m.overlay.SetProgress(float64(step)/float64(m.steps), m.Name(index))
		if step < m.steps {
			return false, nil
		}
		m.finish(index)
		return true, nil
	})
}

func (m *Manager) begin(index int) error {
	m.mu.Lock()
	switch {
	case m.overlay == nil:
		m.mu.Unlock()
		return ErrNotInitialized
	case index < 0 || index >= len(m.names):
		m.mu.Unlock()
		return errors.Wrapf(ErrUnknownScene, "load scene %d of %d", index, len(m.names))
	case m.loading:
		m.mu.Unlock()
		return errors.Newf("load scene %d: another transition is in progress", index)
	}
	m.loading = true
	m.mu.Unlock()

	name := m.Name(index)
	m.logger.Info("starting scene load", zap.Int("scene", index), zap.String("name", name))
	m.overlay.Show("Loading " + name)
	m.publish(eventbus.TopicSceneLoading, Loaded{Index: index, Name: name})
	return nil
}

func (m *Manager) finish(index int) {
	m.mu.Lock()
	m.active = index
	m.loading = false
	m.mu.Unlock()

	m.overlay.Hide()
	m.logger.Info("scene loaded", zap.Int("scene", index))
	m.publish(eventbus.TopicSceneLoaded, Loaded{Index: index, Name: m.Name(index)})
}

func (m *Manager) abort() {
	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()

	m.overlay.Hide()
}

func (m *Manager) publish(topic string, payload Loaded) {
	if m.bus == nil {
		return
	}
	if _, err := m.bus.Publish(eventbus.Event{Topic: topic, Payload: payload}); err != nil {
		m.logger.Warn("could not publish scene event", zap.String("topic", topic), zap.Error(err))
	}
}
