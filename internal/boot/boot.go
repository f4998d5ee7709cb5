// Package boot is the bootstrap driver of the game. It starts the core systems in the first stage, optional modules
// in the second, and moves to the configured scene once both have completed.
package boot

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/mkock/gameboot"
	"github.com/mkock/gameboot/internal/audio"
	"github.com/mkock/gameboot/internal/eventbus"
	"github.com/mkock/gameboot/internal/resources"
	"github.com/mkock/gameboot/internal/savegame"
	"github.com/mkock/gameboot/internal/scenes"
	"github.com/mkock/gameboot/internal/services"
	"github.com/mkock/gameboot/internal/ui"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Stages of the boot sequence.
const (
	StageCore    = 1 // Systems the game can't run without.
	StageModules = 2 // Optional modules.
)

// Names the core systems are attached to the loader's scope under.
const (
	SaveSystemName  = "SaveLoadSystem"
	EventBusName    = "EventBusSystem"
	ResourcesName   = "ResourceManager"
	UIName          = "UIManager"
	SceneLoaderName = "SceneLoaderManager"
	AudioName       = "AudioManager"
)

// CutScene selects the cut scene played when a level starts.
type CutScene string

// LevelOne is the cut scene played unless a save says otherwise.
const LevelOne CutScene = "LevelOne"

// Module is an optional system loaded in StageModules.
type Module interface {
	Name() string
	Load(ctx context.Context) error
}

// Config describes the systems the Driver starts.
type Config struct {
	SavePath string
	SaveSlot string

	Fs                afero.Fs // Resource filesystem; defaults to the OS filesystem.
	ResourcesRoot     string
	ResourcesManifest string
	AudioBanks        []string

	SceneNames  []string
	ActiveScene int // Scene showing while the game boots.
	SceneSteps  int
	CutScene    CutScene
	TickRate    rate.Limit // Pace of the initial scene transition.

	Modules  []Module
	Registry *services.Registry
	Logger   *zap.Logger
}

// Driver implements gameboot.Bootstrapper.
type Driver struct {
	cfg      Config
	registry *services.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	cutScene CutScene
	save     *savegame.System
	bus      *eventbus.Bus
	res      *resources.Manager
	ui       *ui.Manager
	scenes   *scenes.Manager
	audio    *audio.Manager

	done      chan struct{}
	doneOnce  sync.Once
	sceneErr  error
	sceneLoad bool
}

// Verify that Driver satisfies the Bootstrapper interface.
var _ gameboot.Bootstrapper = (*Driver)(nil)

// New returns a Driver for cfg.
func New(cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.CutScene == "" {
		cfg.CutScene = LevelOne
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = gameboot.DefaultTickRate
	}
	registry := cfg.Registry
	if registry == nil {
		registry = services.New()
	}
	return &Driver{
		cfg:      cfg,
		registry: registry,
		ui:       ui.New(cfg.Logger),
		logger:   cfg.Logger.Named("boot"),
		cutScene: cfg.CutScene,
		done:     make(chan struct{}),
	}
}

// Registry returns the registry the core systems are registered in.
func (d *Driver) Registry() *services.Registry {
	return d.registry
}

// CutScene returns the cut scene to play when the level starts.
func (d *Driver) CutScene() CutScene {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cutScene
}

// SetCutScene changes the cut scene to play when the level starts.
func (d *Driver) SetCutScene(c CutScene) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cutScene = c
}

// UI returns the UI manager. It exists from the start so its overlay can be drawn while booting; the core stage
// initializes it.
func (d *Driver) UI() *ui.Manager {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.ui
}

// Scenes returns the scene loader, or nil before the core stage has run.
func (d *Driver) Scenes() *scenes.Manager {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.scenes
}

// Prepare implements gameboot.Bootstrapper. It enqueues the core systems and the modules.
func (d *Driver) Prepare(ctx context.Context, l *gameboot.Loader) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	if err := l.Enqueue("core systems", d.coreSystems(l), StageCore); err != nil {
		return errors.Wrap(err, "enqueue core systems")
	}
	if err := l.Enqueue("modules", d.modules(), StageModules); err != nil {
		return errors.Wrap(err, "enqueue modules")
	}
	return nil
}

// Complete implements gameboot.Bootstrapper. It announces the end of the boot and moves to the loader's scene if it
// isn't showing already. The transition runs on its own goroutine; use Wait to block until it's done.
func (d *Driver) Complete(l *gameboot.Loader) {
	d.mu.Lock()
	bus, mgr, ctx := d.bus, d.scenes, d.ctx
	d.mu.Unlock()

	if bus != nil {
		if _, err := bus.Publish(eventbus.Event{Topic: eventbus.TopicBootComplete, Payload: l.ID()}); err != nil {
			d.logger.Warn("could not announce boot completion", zap.Error(err))
		}
	}

	index := l.SceneIndex()
	if mgr == nil || index == mgr.Active() {
		d.logger.Info("skipping scene load, scene is already active", zap.Int("scene", index))
		d.finish(nil)
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	d.logger.Info("starting scene load", zap.Int("scene", index))
	d.mu.Lock()
	d.sceneLoad = true
	d.mu.Unlock()

	go func() {
		sched := gameboot.NewScheduler(
			gameboot.WithName("initial scene"),
			gameboot.WithLogger(d.logger),
			gameboot.WithTickRate(d.cfg.TickRate),
		)
		err := sched.Enqueue(mgr.Name(index), mgr.Load(index), 0)
		if err == nil {
			err = sched.Run(context.WithoutCancel(ctx))
		}
		if err != nil {
			d.logger.Error("initial scene load failed", zap.Int("scene", index), zap.Error(err))
		}
		d.finish(err)
	}()
}

// Wait blocks until the initial scene transition is done, or ctx is cancelled. It reports whether a transition was
// needed at all.
func (d *Driver) Wait(ctx context.Context) (bool, error) {
	select {
	case <-d.done:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.sceneLoad, d.sceneErr
}

// Close shuts down the systems that hold resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	save, aud := d.save, d.audio
	d.mu.Unlock()

	var result *multierror.Error
	if aud != nil {
		if err := aud.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close audio"))
		}
	}
	if save != nil {
		if err := save.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close savegame"))
		}
	}
	return result.ErrorOrNil()
}

func (d *Driver) finish(err error) {
	d.doneOnce.Do(func() {
		d.mu.Lock()
		d.sceneErr = err
		d.mu.Unlock()
		close(d.done)
	})
}

// attach adds a started system to the loader's scope.
func (d *Driver) attach(l *gameboot.Loader, name string, system any) {
	if scope := l.Scope(); scope != nil {
		scope.Attach(name, system)
	}
	d.logger.Debug("system started", zap.String("system", name))
}
