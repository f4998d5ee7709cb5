// Package config loads gameboot settings. Values are layered with the precedence:
// defaults < user config < project config < environment variables < overrides.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	KeySceneIndex = "scene.index"
	KeySceneNames = "scene.names"
	KeyCutScene   = "scene.cutscene"
	KeyTickRate   = "tick.rate"

	KeySavePath = "save.path"
	KeySaveSlot = "save.slot"

	KeyResourcesRoot     = "resources.root"
	KeyResourcesManifest = "resources.manifest"
	KeyAudioBanks        = "audio.banks"

	KeyLogLevel    = "log.level"
	KeyLogEncoding = "log.encoding"
	KeyLogFile     = "log.file"

	KeyTelemetryEnabled = "telemetry.enabled"
	KeyTUI              = "ui.tui"
)

const (
	// DefaultTickRate is the default number of boot ticks per second.
	DefaultTickRate = 60
	envPrefix       = "GAMEBOOT"
	configDir       = ".gameboot"
	configFile      = "config.yaml"
)

// DefaultSceneNames are the scenes known when none are configured.
var DefaultSceneNames = []string{"boot", "menu", "level-one"}

type initSettings struct {
	fs                afero.Fs
	workingDir        string
	projectConfigPath string
	userConfigPath    string
}

// Option configures Load. Useful for tests to override paths.
type Option func(*initSettings)

// WithFs reads config files from fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(cfg *initSettings) {
		cfg.fs = fs
	}
}

// WithWorkingDir overrides the directory used for project config discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

// Config holds the loaded settings.
type Config struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// Load reads the configuration.
func Load(opts ...Option) (*Config, error) {
	settings := initSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.fs == nil {
		settings.fs = afero.NewOsFs()
	}

	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "determine working directory")
		}
		workingDir = wd
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return nil, err
		}
		userConfigPath = path
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(settings.fs, workingDir)
		if err != nil {
			return nil, err
		}
		projectConfigPath = path
	}

	v := viper.New()
	v.SetFs(settings.fs)
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(settings.fs, v, userConfigPath); err != nil {
		return nil, errors.Wrap(err, "load user config")
	}
	if err := mergeConfigFile(settings.fs, v, projectConfigPath); err != nil {
		return nil, errors.Wrap(err, "load project config")
	}
	return &Config{v: v}, nil
}

// ApplyOverrides injects values typically coming from CLI flags.
func (c *Config) ApplyOverrides(overrides map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range overrides {
		c.v.Set(k, v)
	}
}

// GetString fetches a string configuration value.
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

// GetBool fetches a bool configuration value.
func (c *Config) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetBool(key)
}

// GetInt fetches an integer configuration value.
func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetInt(key)
}

// GetFloat64 fetches a float configuration value.
func (c *Config) GetFloat64(key string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetFloat64(key)
}

// GetStringSlice fetches a list configuration value. Environment variables are split on commas.
func (c *Config) GetStringSlice(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := c.v.GetStringSlice(key)
	var out []string
	for _, s := range strings.Split(strings.Join(values, ","), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mergeConfigFile(fs afero.Fs, v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	if info.IsDir() {
		return errors.Newf("config path %s is a directory", path)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "determine user home")
	}
	return filepath.Join(home, configDir, configFile), nil
}

func findProjectConfig(fs afero.Fs, startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, configDir, configFile)
		info, err := fs.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", errors.Newf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", errors.Wrapf(err, "stat %s", candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySceneIndex, 1)
	v.SetDefault(KeySceneNames, DefaultSceneNames)
	v.SetDefault(KeyCutScene, "LevelOne")
	v.SetDefault(KeyTickRate, DefaultTickRate)
	v.SetDefault(KeySavePath, filepath.Join(configDir, "saves.db"))
	v.SetDefault(KeySaveSlot, "auto")
	v.SetDefault(KeyResourcesRoot, "assets")
	v.SetDefault(KeyResourcesManifest, "manifest.yaml")
	v.SetDefault(KeyAudioBanks, []string{})
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogEncoding, "console")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyTelemetryEnabled, false)
	v.SetDefault(KeyTUI, true)
}
