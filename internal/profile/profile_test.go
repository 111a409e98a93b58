package profile_test

import (
	"path/filepath"
	"testing"

	"github.com/hidbridge/padlink/internal/engine"
	"github.com/hidbridge/padlink/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMissingFileCreatesDefaultProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	name, mappings, cfg, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, profile.DefaultProfileName, name)
	assert.Equal(t, engine.DefaultMapping(), mappings)
	assert.Equal(t, engine.DefaultEngineConfig(), cfg)
}

func TestSaveAndLoadProfileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	mappings := engine.DefaultMapping()
	cfg := engine.DefaultEngineConfig()
	cfg.RGB = engine.RGB{R: 10, G: 20, B: 30, Brightness: 200}

	require.NoError(t, store.SaveProfile("Racing", mappings, cfg))

	// Re-open from disk to confirm the save was persisted, not just cached.
	reopened, err := profile.Open(path)
	require.NoError(t, err)

	name, loadedMappings, loadedCfg, err := reopened.Current()
	require.NoError(t, err)
	assert.Equal(t, "Racing", name)
	assert.Equal(t, mappings, loadedMappings)
	assert.Equal(t, cfg, loadedCfg)
}

func TestLoadProfileMakesItCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	require.NoError(t, store.SaveProfile("Racing", engine.DefaultMapping(), engine.DefaultEngineConfig()))
	require.NoError(t, store.SaveProfile("Shooter", engine.DefaultMapping(), engine.DefaultEngineConfig()))

	_, _, err = store.LoadProfile("Racing")
	require.NoError(t, err)

	name, _, _, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, "Racing", name)
}

func TestLoadProfileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	_, _, err = store.LoadProfile("DoesNotExist")
	assert.Error(t, err)
}

func TestSaveProfileRejectsDefaultName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	cfg := engine.DefaultEngineConfig()
	cfg.RGB = engine.RGB{R: 9, G: 9, B: 9, Brightness: 255}
	err = store.SaveProfile(profile.DefaultProfileName, engine.DefaultMapping(), cfg)
	assert.Error(t, err)

	name, _, loadedCfg, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, profile.DefaultProfileName, name)
	assert.Equal(t, engine.DefaultEngineConfig(), loadedCfg)
}

func TestDeleteProfileRejectsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	err = store.DeleteProfile(profile.DefaultProfileName)
	assert.Error(t, err)
}

func TestDeleteProfileFallsBackToDefaultWhenCurrentIsDeleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	require.NoError(t, store.SaveProfile("Racing", engine.DefaultMapping(), engine.DefaultEngineConfig()))
	require.NoError(t, store.DeleteProfile("Racing"))

	name, _, _, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, profile.DefaultProfileName, name)
}

func TestSaveProfileRejectsEmptyName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	err = store.SaveProfile("", engine.DefaultMapping(), engine.DefaultEngineConfig())
	assert.Error(t, err)
}

func TestListIncludesDefaultAndSavedProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	store, err := profile.Open(path)
	require.NoError(t, err)

	require.NoError(t, store.SaveProfile("Racing", engine.DefaultMapping(), engine.DefaultEngineConfig()))

	names := store.List()
	assert.ElementsMatch(t, []string{profile.DefaultProfileName, "Racing"}, names)
}

func TestOpenAcceptsJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	store, err := profile.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveProfile("Racing", engine.DefaultMapping(), engine.DefaultEngineConfig()))

	reopened, err := profile.Open(path)
	require.NoError(t, err)
	name, _, _, err := reopened.Current()
	require.NoError(t, err)
	assert.Equal(t, "Racing", name)
}
