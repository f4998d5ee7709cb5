// Package resources loads game assets from a filesystem. A YAML manifest at the root names the assets and marks the
// ones to preload during boot.
package resources

import (
	"context"
	"path"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DefaultManifest is the manifest file name used when none is configured.
const DefaultManifest = "manifest.yaml"

// ErrUnknownAsset is returned when loading an asset the manifest doesn't name.
var ErrUnknownAsset = errors.New("unknown asset")

// Asset is a manifest entry.
type Asset struct {
	Name    string `yaml:"name" validate:"required"`
	Path    string `yaml:"path" validate:"required"`
	Preload bool   `yaml:"preload"`
}

// Manifest lists the assets available to the game.
type Manifest struct {
	Assets []Asset `yaml:"assets" validate:"dive"`
}

// Manager reads assets and caches them by name.
type Manager struct {
	mu       sync.RWMutex
	fs       afero.Fs
	root     string
	manifest string
	assets   map[string]Asset
	order    []string
	cache    map[string][]byte
	logger   *zap.Logger
}

// New returns a Manager reading from root on fs.
func New(fs afero.Fs, root, manifest string, logger *zap.Logger) *Manager {
	if manifest == "" {
		manifest = DefaultManifest
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		fs:       fs,
		root:     root,
		manifest: manifest,
		assets:   make(map[string]Asset),
		cache:    make(map[string][]byte),
		logger:   logger.Named("resources"),
	}
}

// Initialize reads the manifest and returns the Manager. A missing manifest leaves the Manager empty.
func (m *Manager) Initialize() (*Manager, error) {
	p := path.Join(m.root, m.manifest)
	data, err := afero.ReadFile(m.fs, p)
	if err != nil {
		exists, statErr := afero.Exists(m.fs, p)
		if statErr == nil && !exists {
			m.logger.Info("no resource manifest found", zap.String("path", p))
			return m, nil
		}
		return nil, errors.Wrapf(err, "read manifest %s", p)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrapf(err, "parse manifest %s", p)
	}

	if err := validator.New().Struct(manifest); err != nil {
		return nil, errors.WithHint(errors.Wrapf(err, "invalid manifest %s", p), "every asset needs a name and a path")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range manifest.Assets {
		if _, dup := m.assets[a.Name]; dup {
			return nil, errors.Newf("manifest %s: asset %q is listed twice", p, a.Name)
		}
		m.assets[a.Name] = a
		m.order = append(m.order, a.Name)
	}
	m.logger.Debug("resource manifest loaded", zap.String("path", p), zap.Int("assets", len(m.order)))
	return m, nil
}

// Names returns the names of every asset, in manifest order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.order...)
}

// Preloads returns the names of the assets marked for preloading, in manifest order.
func (m *Manager) Preloads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, name := range m.order {
		if m.assets[name].Preload {
			names = append(names, name)
		}
	}
	return names
}

// Load returns the contents of the named asset, reading it on first use.
func (m *Manager) Load(name string) ([]byte, error) {
	m.mu.RLock()
	data, cached := m.cache[name]
	asset, known := m.assets[name]
	m.mu.RUnlock()

	if cached {
		return data, nil
	}
	if !known {
		return nil, errors.Wrapf(ErrUnknownAsset, "load %q", name)
	}

	data, err := afero.ReadFile(m.fs, path.Join(m.root, asset.Path))
	if err != nil {
		return nil, errors.Wrapf(err, "load %q", name)
	}

	m.mu.Lock()
	m.cache[name] = data
	m.mu.Unlock()
	return data, nil
}

// Cached reports whether the named asset has been read.
func (m *Manager) Cached(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.cache[name]
	return ok
}

// Preload reads every asset marked for preloading, concurrently.
func (m *Manager) Preload(ctx context.Context) error {
	grp, grpCtx := errgroup.WithContext(ctx)
	for _, name := range m.Preloads() {
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}
			_, err := m.Load(name)
			return err
		})
	}
	if err := grp.Wait(); err != nil {
		return errors.Wrap(err, "preload resources")
	}
	m.logger.Debug("resources preloaded", zap.Int("assets", len(m.Preloads())))
	return nil
}
