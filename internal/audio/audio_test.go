package audio

import (
	"testing"

	"github.com/mkock/gameboot/internal/eventbus"
	"github.com/mkock/gameboot/internal/resources"
	"github.com/mkock/gameboot/internal/scenes"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newResources(t *testing.T) *resources.Manager {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "manifest.yaml", []byte(`
assets:
  - name: music
    path: banks/music.bnk
  - name: sfx
    path: banks/sfx.bnk
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "banks/music.bnk", []byte("0123456789"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "banks/sfx.bnk", []byte("abc"), 0o644))

	res, err := resources.New(fs, "", "", nil).Initialize()
	require.NoError(t, err)
	return res
}

func TestInitializeLoadsBanks(t *testing.T) {
	t.Parallel()

	m, err := New(newResources(t), []string{"music", "sfx"}, nil, nil).Initialize()
	require.NoError(t, err)
	require.Equal(t, []Bank{{Name: "music", Size: 10}, {Name: "sfx", Size: 3}}, m.Banks())

	require.NoError(t, m.Play("click"))
	require.Equal(t, []string{"click"}, m.Played())
}

func TestInitializeFailsOnUnknownBank(t *testing.T) {
	t.Parallel()

	_, err := New(newResources(t), []string{"voice"}, nil, nil).Initialize()
	require.ErrorIs(t, err, resources.ErrUnknownAsset)

	_, err = New(nil, []string{"music"}, nil, nil).Initialize()
	require.Error(t, err)
}

func TestPlayWithoutBanks(t *testing.T) {
	t.Parallel()

	m, err := New(nil, nil, nil, nil).Initialize()
	require.NoError(t, err)
	require.ErrorIs(t, m.Play("click"), ErrBankNotLoaded)
	require.Empty(t, m.Played())
}

func TestSceneMusic(t *testing.T) {
	t.Parallel()

	bus, err := eventbus.New(nil).Initialize()
	require.NoError(t, err)
	m, err := New(newResources(t), []string{"music"}, bus, nil).Initialize()
	require.NoError(t, err)

	_, err = bus.Publish(eventbus.Event{Topic: eventbus.TopicSceneLoaded, Payload: scenes.Loaded{Index: 1, Name: "menu"}})
	require.NoError(t, err)
	_, err = bus.Publish(eventbus.Event{Topic: eventbus.TopicSceneLoaded, Payload: "not a scene"})
	require.NoError(t, err)
	require.Equal(t, []string{"music/menu"}, m.Played())

	require.NoError(t, m.Close())
	_, err = bus.Publish(eventbus.Event{Topic: eventbus.TopicSceneLoaded, Payload: scenes.Loaded{Index: 2, Name: "level-one"}})
	require.NoError(t, err)
	require.Equal(t, []string{"music/menu"}, m.Played())
}
