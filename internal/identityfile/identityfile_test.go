package identityfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticenet/livewire/internal/session"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadMissingFileIsSignedOut(t *testing.T) {
	id, err := Load(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, err)
	assert.False(t, id.Valid())
}

func TestLoadParsesIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	writeFile(t, path, "user_id: u-42\nauthenticated: true\n")

	id, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, session.Identity{UserID: "u-42", Authenticated: true}, id)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	writeFile(t, path, "{not yaml::\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNewSeedsStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	writeFile(t, path, "user_id: u-42\nauthenticated: true\n")

	store := session.NewStore(session.Identity{})
	w, err := New(path, store, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "u-42", store.Current().UserID)
	assert.True(t, store.Current().Valid())
}

func TestWatcherFollowsFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")

	store := session.NewStore(session.Identity{})
	w, err := New(path, store, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()
	w.Start()

	assert.False(t, store.Current().Valid(), "no file means signed out")

	// Sign-in: file appears.
	writeFile(t, path, "user_id: u-42\nauthenticated: true\n")
	require.Eventually(t, func() bool { return store.Current().UserID == "u-42" },
		3*time.Second, 20*time.Millisecond, "sign-in not picked up")

	// Account switch via atomic rename.
	tmp := filepath.Join(dir, "session.yaml.tmp")
	writeFile(t, tmp, "user_id: u-99\nauthenticated: true\n")
	require.NoError(t, os.Rename(tmp, path))
	require.Eventually(t, func() bool { return store.Current().UserID == "u-99" },
		3*time.Second, 20*time.Millisecond, "rename not picked up")

	// Sign-out: file removed.
	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return !store.Current().Valid() },
		3*time.Second, 20*time.Millisecond, "sign-out not picked up")
}

func TestReloadKeepsPreviousOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	writeFile(t, path, "user_id: u-42\nauthenticated: true\n")

	store := session.NewStore(session.Identity{})
	w, err := New(path, store, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, path, "user_id: [broken\n")
	w.Reload()

	assert.Equal(t, "u-42", store.Current().UserID, "torn write must not sign out")
}
