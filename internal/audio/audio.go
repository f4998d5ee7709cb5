// Package audio loads sound banks and plays cues in response to events on the bus.
package audio

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mkock/gameboot/internal/eventbus"
	"github.com/mkock/gameboot/internal/resources"
	"github.com/mkock/gameboot/internal/scenes"
	"go.uber.org/zap"
)

// ErrBankNotLoaded is returned when playing a cue before any bank is loaded.
var ErrBankNotLoaded = errors.New("no sound bank loaded")

// Player plays named cues.
type Player interface {
	Play(cue string) error
	Played() []string
}

// Bank is a loaded sound bank.
type Bank struct {
	Name string
	Size int
}

// Manager owns the loaded banks and the cue history.
type Manager struct {
	mu     sync.Mutex
	res    *resources.Manager
	names  []string
	banks  []Bank
	played []string
	bus    *eventbus.Bus
	subs   []string
	logger *zap.Logger
}

// Verify that Manager satisfies the Player interface.
var _ Player = (*Manager)(nil)

// New returns a Manager that loads the named banks from res.
func New(res *resources.Manager, banks []string, bus *eventbus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		res:    res,
		names:  append([]string(nil), banks...),
		bus:    bus,
		logger: logger.Named("audio"),
	}
}

// Initialize loads every bank and subscribes to scene events, and returns the Manager. A Manager without banks is
// valid; it logs cues instead of playing them.
func (m *Manager) Initialize() (*Manager, error) {
	banks := make([]Bank, 0, len(m.names))
	for _, name := range m.names {
		if m.res == nil {
			return nil, errors.AssertionFailedf("audio bank %q requires a resource manager", name)
		}
		data, err := m.res.Load(name)
		if err != nil {
			return nil, errors.Wrapf(err, "load sound bank %q", name)
		}
		banks = append(banks, Bank{Name: name, Size: len(data)})
	}

	m.mu.Lock()
	m.banks = banks
	m.mu.Unlock()

	if m.bus != nil {
		id := m.bus.Subscribe(eventbus.TopicSceneLoaded, m.onSceneLoaded)
		m.mu.Lock()
		m.subs = append(m.subs, id)
		m.mu.Unlock()
	}
	m.logger.Debug("audio initialized", zap.Int("banks", len(banks)))
	return m, nil
}

// Banks returns the loaded banks.
func (m *Manager) Banks() []Bank {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Bank(nil), m.banks...)
}

// Play plays cue from the loaded banks.
func (m *Manager) Play(cue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.banks) == 0 {
		m.logger.Debug("cue skipped, no banks", zap.String("cue", cue))
		return errors.Wrapf(ErrBankNotLoaded, "play %q", cue)
	}
	m.played = append(m.played, cue)
	m.logger.Debug("cue played", zap.String("cue", cue))
	return nil
}

// Played returns the cues played so far.
func (m *Manager) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.played...)
}

// Close unsubscribes from the bus.
func (m *Manager) Close() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	var missing []string
	for _, id := range subs {
		if !m.bus.Unsubscribe(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return errors.Newf("audio subscriptions already removed: %v", missing)
	}
	return nil
}

// onSceneLoaded plays the music cue of the scene that was loaded.
func (m *Manager) onSceneLoaded(e eventbus.Event) {
	loaded, ok := e.Payload.(scenes.Loaded)
	if !ok {
		return
	}
	if err := m.Play("music/" + loaded.Name); err != nil && !errors.Is(err, ErrBankNotLoaded) {
		m.logger.Warn("could not play scene music", zap.String("scene", loaded.Name), zap.Error(err))
	}
}
