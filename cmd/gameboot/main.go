// Command gameboot boots the game: it starts the core systems, loads the optional modules and moves to the
// configured scene, showing a loading screen while it works.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/mkock/gameboot"
	"github.com/mkock/gameboot/internal/boot"
	"github.com/mkock/gameboot/internal/config"
	"github.com/mkock/gameboot/internal/logger"
	"github.com/mkock/gameboot/internal/telemetry"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// flagKeys maps command line flags to the configuration keys they override.
var flagKeys = map[string]string{
	"scene":        config.KeySceneIndex,
	"cutscene":     config.KeyCutScene,
	"tick-rate":    config.KeyTickRate,
	"save-path":    config.KeySavePath,
	"save-slot":    config.KeySaveSlot,
	"assets":       config.KeyResourcesRoot,
	"manifest":     config.KeyResourcesManifest,
	"audio-banks":  config.KeyAudioBanks,
	"log-level":    config.KeyLogLevel,
	"log-encoding": config.KeyLogEncoding,
	"log-file":     config.KeyLogFile,
	"telemetry":    config.KeyTelemetryEnabled,
	"tui":          config.KeyTUI,
}

// shutdownSignals cancel the boot.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "gameboot",
		Short:         "Boot the game and load the first scene",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.WithProjectConfig(configPath))
			if err != nil {
				return err
			}
			cfg.ApplyOverrides(overrides(cmd.Flags()))
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path to a config file (default: discover .gameboot/config.yaml)")
	flags.Int("scene", gameboot.DefaultSceneIndex, "Index of the scene to load once booted")
	flags.String("cutscene", string(boot.LevelOne), "Cut scene to play when the level starts")
	flags.Float64("tick-rate", config.DefaultTickRate, "Boot ticks per second")
	flags.String("save-path", "", "Path to the save database")
	flags.String("save-slot", "", "Save slot to load")
	flags.String("assets", "", "Directory holding the game assets")
	flags.String("manifest", "", "Asset manifest file, relative to the assets directory")
	flags.StringSlice("audio-banks", nil, "Sound banks to load")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-encoding", "", "Log encoding (console, json)")
	flags.String("log-file", "", "Write logs to this file")
	flags.Bool("telemetry", false, "Write boot traces to stderr")
	flags.Bool("tui", true, "Show the loading screen")
	return cmd
}

// overrides returns the configuration values of the flags that were set on the command line.
func overrides(flags *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			out[key] = sv.GetSlice()
			return
		}
		out[key] = f.Value.String()
	})
	return out
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	tui := cfg.GetBool(config.KeyTUI)
	log, err := logger.New(logger.Config{
		Level:    cfg.GetString(config.KeyLogLevel),
		Encoding: cfg.GetString(config.KeyLogEncoding),
		File:     cfg.GetString(config.KeyLogFile),
		Quiet:    tui,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	tracing, err := telemetry.Init("gameboot", cfg.GetBool(config.KeyTelemetryEnabled), os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("could not flush traces", zap.Error(err))
		}
	}()

	tickRate := rate.Limit(cfg.GetFloat64(config.KeyTickRate))
	names := cfg.GetStringSlice(config.KeySceneNames)
	driver := boot.New(boot.Config{
		SavePath:          cfg.GetString(config.KeySavePath),
		SaveSlot:          cfg.GetString(config.KeySaveSlot),
		Fs:                afero.NewOsFs(),
		ResourcesRoot:     cfg.GetString(config.KeyResourcesRoot),
		ResourcesManifest: cfg.GetString(config.KeyResourcesManifest),
		AudioBanks:        cfg.GetStringSlice(config.KeyAudioBanks),
		SceneNames:        names,
		CutScene:          boot.CutScene(cfg.GetString(config.KeyCutScene)),
		TickRate:          tickRate,
		Logger:            log,
	})
	defer func() {
		if err := driver.Close(); err != nil {
			log.Warn("could not shut down cleanly", zap.Error(err))
		}
	}()

	var display gameboot.Observer = textObserver{w: out}
	stopDisplay := func() {}
	if tui {
		d := NewLoadingDisplay(out, driver.UI())
		defer d.Stop()
		display, stopDisplay = d, d.Stop
	}

	host := gameboot.NewHost(gameboot.WithLogger(log))
	loader := gameboot.New(host,
		gameboot.WithName("gameboot"),
		gameboot.WithLogger(log),
		gameboot.WithTickRate(tickRate),
		gameboot.WithSceneIndex(cfg.GetInt(config.KeySceneIndex)),
		gameboot.WithSceneCount(len(names)),
		gameboot.WithBootstrapper(driver),
		gameboot.WithObserver(display),
		gameboot.WithObserver(driver.UI().Observer("Booting")),
		gameboot.WithObserver(tracing.Observer(ctx, "gameboot")),
	)

	if _, err := loader.Boot(ctx); err != nil {
		return errors.Wrap(err, "boot")
	}
	_, err = driver.Wait(ctx)
	stopDisplay()
	if err != nil {
		return errors.Wrap(err, "load initial scene")
	}

	scenes := driver.Scenes()
	fmt.Fprintf(out, "ready: scene %q, cut scene %s\n", scenes.Name(scenes.Active()), driver.CutScene())
	return nil
}
