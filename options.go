package gameboot

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTickRate is the number of scheduler ticks per second, roughly one per rendered frame.
const DefaultTickRate rate.Limit = 60

// settings is shared by NewHost, NewScheduler and New. Each constructor reads the fields it needs.
type settings struct {
	name       string
	logger     *zap.Logger
	tickRate   rate.Limit
	observers  []Observer
	sceneIndex int
	sceneCount int
	boot       Bootstrapper
}

func newSettings(opts []Option) settings {
	s := settings{
		name:       "gameboot",
		logger:     zap.NewNop(),
		tickRate:   DefaultTickRate,
		sceneIndex: DefaultSceneIndex,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// Option configures a Host, Scheduler or Loader.
type Option func(*settings)

// WithName sets the name used in log lines and in String().
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the logger. The default logger discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTickRate limits the number of ticks per second. Use rate.Inf to poll as fast as possible.
func WithTickRate(r rate.Limit) Option {
	return func(s *settings) {
		if r > 0 {
			s.tickRate = r
		}
	}
}

// WithObserver registers an observer to receive scheduler events.
func WithObserver(obs Observer) Option {
	return func(s *settings) {
		if obs != nil {
			s.observers = append(s.observers, obs)
		}
	}
}

// WithSceneIndex sets the scene the application should show once the sequence completes.
func WithSceneIndex(index int) Option {
	return func(s *settings) {
		s.sceneIndex = index
	}
}

// WithSceneCount sets the number of known scenes; valid scene indexes are 0..count-1. When the count is unknown
// (zero), only negative indexes are rejected.
func WithSceneCount(count int) Option {
	return func(s *settings) {
		s.sceneCount = count
	}
}

// WithBootstrapper sets the Bootstrapper that fills the Loader's stages on activation.
func WithBootstrapper(b Bootstrapper) Option {
	return func(s *settings) {
		s.boot = b
	}
}
