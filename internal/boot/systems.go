package boot

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mkock/gameboot"
	"github.com/mkock/gameboot/internal/audio"
	"github.com/mkock/gameboot/internal/eventbus"
	"github.com/mkock/gameboot/internal/resources"
	"github.com/mkock/gameboot/internal/savegame"
	"github.com/mkock/gameboot/internal/scenes"
	"github.com/mkock/gameboot/internal/services"
	"go.uber.org/zap"
)

// coreSystems starts the systems the game needs, in dependency order. Saves are read on a separate goroutine; the
// resources marked for preloading are read by a unit of their own that joins the running stage.
func (d *Driver) coreSystems(l *gameboot.Loader) gameboot.Unit {
	return gameboot.Sequence(
		gameboot.Step(func(context.Context) error {
			d.logger.Info("loading core systems")
			return nil
		}),
		gameboot.Go(d.startSaveSystem(l)),
		gameboot.Step(func(context.Context) error {
			bus, err := eventbus.New(d.cfg.Logger).Initialize()
			if err != nil {
				return errors.Wrap(err, "start event bus")
			}
			d.mu.Lock()
			d.bus = bus
			d.mu.Unlock()
			d.attach(l, EventBusName, bus)
			services.Register(d.registry, bus)
			return nil
		}),
		gameboot.Step(func(context.Context) error {
			res, err := resources.New(d.cfg.Fs, d.cfg.ResourcesRoot, d.cfg.ResourcesManifest, d.cfg.Logger).Initialize()
			if err != nil {
				return errors.Wrap(err, "start resource manager")
			}
			d.mu.Lock()
			d.res = res
			d.mu.Unlock()
			d.attach(l, ResourcesName, res)
			services.Register(d.registry, res)
			return l.Enqueue("preload resources", gameboot.Go(res.Preload), StageCore)
		}),
		gameboot.Step(func(context.Context) error {
			d.mu.Lock()
			mgr := d.ui.Initialize()
			d.mu.Unlock()
			d.attach(l, UIName, mgr)
			services.Register(d.registry, mgr)
			return nil
		}),
		gameboot.Step(func(context.Context) error {
			d.mu.Lock()
			bus, overlay := d.bus, d.ui.Overlay()
			d.mu.Unlock()

			opts := []scenes.Option{scenes.WithActive(d.cfg.ActiveScene), scenes.WithSteps(d.cfg.SceneSteps)}
			mgr, err := scenes.New(d.cfg.SceneNames, bus, d.cfg.Logger, opts...).Initialize(overlay)
			if err != nil {
				return errors.Wrap(err, "start scene loader")
			}
			d.mu.Lock()
			d.scenes = mgr
			d.mu.Unlock()
			d.attach(l, SceneLoaderName, mgr)
			services.Register(d.registry, mgr)
			return nil
		}),
		gameboot.Step(func(context.Context) error {
			d.mu.Lock()
			res, bus := d.res, d.bus
			d.mu.Unlock()

			mgr, err := audio.New(res, d.cfg.AudioBanks, bus, d.cfg.Logger).Initialize()
			if err != nil {
				return errors.Wrap(err, "start audio")
			}
			d.mu.Lock()
			d.audio = mgr
			d.mu.Unlock()
			d.attach(l, AudioName, mgr)
			services.Register[audio.Player](d.registry, mgr)
			return nil
		}),
		gameboot.Frames(1),
	)
}

// startSaveSystem opens the save database and loads the configured slot. A saved cut scene replaces the default one.
func (d *Driver) startSaveSystem(l *gameboot.Loader) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		save, err := savegame.New(d.cfg.SavePath, d.cfg.SaveSlot, d.cfg.Logger).Initialize(ctx)
		if err != nil {
			return errors.Wrap(err, "start save system")
		}
		state, err := save.Load(ctx)
		if err != nil {
			_ = save.Close()
			return errors.Wrap(err, "load save")
		}

		d.mu.Lock()
		d.save = save
		if state.CutScene != "" {
			d.cutScene = CutScene(state.CutScene)
		}
		d.mu.Unlock()

		d.attach(l, SaveSystemName, save)
		services.Register(d.registry, save)
		return nil
	}
}

// modules loads every optional module concurrently.
func (d *Driver) modules() gameboot.Unit {
	if len(d.cfg.Modules) == 0 {
		return gameboot.NoOp
	}

	fns := make([]func(ctx context.Context) error, len(d.cfg.Modules))
	for i, m := range d.cfg.Modules {
		fns[i] = func(ctx context.Context) error {
			if err := m.Load(ctx); err != nil {
				return errors.Wrapf(err, "load module %s", m.Name())
			}
			d.logger.Debug("module loaded", zap.String("module", m.Name()))
			return nil
		}
	}
	return gameboot.Sequence(
		gameboot.Step(func(context.Context) error {
			d.logger.Info("loading modular systems", zap.Int("modules", len(fns)))
			return nil
		}),
		gameboot.Parallel(fns...),
	)
}
