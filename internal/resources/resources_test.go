package resources

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const manifest = `
assets:
  - name: logo
    path: ui/logo.txt
    preload: true
  - name: theme
    path: audio/theme.ogg
  - name: font
    path: ui/font.ttf
    preload: true
`

func newFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func TestInitializeReadsManifest(t *testing.T) {
	t.Parallel()

	fs := newFS(t, map[string]string{"assets/manifest.yaml": manifest})
	m, err := New(fs, "assets", "", nil).Initialize()
	require.NoError(t, err)
	require.Equal(t, []string{"logo", "theme", "font"}, m.Names())
	require.Equal(t, []string{"logo", "font"}, m.Preloads())
}

func TestInitializeWithoutManifest(t *testing.T) {
	t.Parallel()

	m, err := New(afero.NewMemMapFs(), "assets", "", nil).Initialize()
	require.NoError(t, err)
	require.Empty(t, m.Names())
	require.NoError(t, m.Preload(context.Background()))
}

func TestInitializeRejectsBadManifests(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"invalid yaml":   "assets: [",
		"missing path":   "assets:\n  - name: logo\n",
		"duplicate name": "assets:\n  - {name: logo, path: a}\n  - {name: logo, path: b}\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fs := newFS(t, map[string]string{"manifest.yaml": content})
			_, err := New(fs, "", "", nil).Initialize()
			require.Error(t, err)
		})
	}
}

func TestInitializeHintsAtMissingFields(t *testing.T) {
	t.Parallel()

	fs := newFS(t, map[string]string{"manifest.yaml": "assets:\n  - path: ui/logo.txt\n"})
	_, err := New(fs, "", "", nil).Initialize()
	require.Error(t, err)
	require.Contains(t, errors.FlattenHints(err), "name and a path")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	fs := newFS(t, map[string]string{
		"assets/manifest.yaml": manifest,
		"assets/ui/logo.txt":   "GAMEBOOT",
	})
	m, err := New(fs, "assets", "", nil).Initialize()
	require.NoError(t, err)

	data, err := m.Load("logo")
	require.NoError(t, err)
	require.Equal(t, "GAMEBOOT", string(data))
	require.True(t, m.Cached("logo"))

	_, err = m.Load("missing")
	require.ErrorIs(t, err, ErrUnknownAsset)

	_, err = m.Load("theme")
	require.Error(t, err)
	require.False(t, m.Cached("theme"))
}

func TestPreload(t *testing.T) {
	t.Parallel()

	fs := newFS(t, map[string]string{
		"assets/manifest.yaml": manifest,
		"assets/ui/logo.txt":   "GAMEBOOT",
		"assets/ui/font.ttf":   "font",
	})
	m, err := New(fs, "assets", "", nil).Initialize()
	require.NoError(t, err)

	require.NoError(t, m.Preload(context.Background()))
	require.True(t, m.Cached("logo"))
	require.True(t, m.Cached("font"))
	require.False(t, m.Cached("theme"))
}

func TestPreloadFailsOnMissingFile(t *testing.T) {
	t.Parallel()

	fs := newFS(t, map[string]string{
		"assets/manifest.yaml": manifest,
		"assets/ui/logo.txt":   "GAMEBOOT",
	})
	m, err := New(fs, "assets", "", nil).Initialize()
	require.NoError(t, err)
	require.Error(t, m.Preload(context.Background()))
}
