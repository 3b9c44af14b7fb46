package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateport/internal/config"
	"gateport/internal/session"
	"gateport/internal/store"
)

func snapshot(code string, port int, created time.Time) session.Snapshot {
	return session.Snapshot{
		Code:      code,
		Port:      port,
		Status:    session.StatusPending,
		UserInfo:  map[string]string{"name": "steve"},
		CreatedAt: created,
		ExpiresAt: created.Add(time.Hour),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	want := snapshot("A1B2C3D4", 30000, time.Now().Truncate(time.Second))
	st.Save(want)

	got, ok := st.Get("A1B2C3D4")
	require.True(t, ok)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.Port, got.Port)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.UserInfo, got.UserInfo)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
}

func TestFileStoreWritesOneFilePerCode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := store.NewFile(dir)
	require.NoError(t, err)
	defer st.Close()

	st.Save(snapshot("AAAA1111", 30000, time.Now()))
	st.Save(snapshot("BBBB2222", 30001, time.Now()))

	_, err = os.Stat(filepath.Join(dir, "AAAA1111.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "BBBB2222.json"))
	require.NoError(t, err)
}

func TestFileStoreSaveReplacesRecord(t *testing.T) {
	t.Parallel()

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	snap := snapshot("A1B2C3D4", 30000, time.Now())
	st.Save(snap)

	snap.Status = session.StatusActive
	st.Save(snap)

	got, ok := st.Get("A1B2C3D4")
	require.True(t, ok)
	assert.Equal(t, session.StatusActive, got.Status)
}

func TestFileStoreListSortedByCreation(t *testing.T) {
	t.Parallel()

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	base := time.Now()
	st.Save(snapshot("CCCC3333", 30002, base.Add(2*time.Minute)))
	st.Save(snapshot("AAAA1111", 30000, base))
	st.Save(snapshot("BBBB2222", 30001, base.Add(time.Minute)))

	list := st.List()
	require.Len(t, list, 3)
	assert.Equal(t, "AAAA1111", list[0].Code)
	assert.Equal(t, "BBBB2222", list[1].Code)
	assert.Equal(t, "CCCC3333", list[2].Code)
}

func TestFileStoreDelete(t *testing.T) {
	t.Parallel()

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	st.Save(snapshot("A1B2C3D4", 30000, time.Now()))
	st.Delete("A1B2C3D4")

	_, ok := st.Get("A1B2C3D4")
	assert.False(t, ok)

	// Deleting a missing record is not an event worth failing over.
	st.Delete("A1B2C3D4")
}

func TestFileStoreGetUnknownCode(t *testing.T) {
	t.Parallel()

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	_, ok := st.Get("DEADBEEF")
	assert.False(t, ok)
}

func TestDisabledStore(t *testing.T) {
	t.Parallel()

	var st store.Store = store.Disabled{}

	st.Save(snapshot("A1B2C3D4", 30000, time.Now()))
	_, ok := st.Get("A1B2C3D4")
	assert.False(t, ok)
	assert.Empty(t, st.List())
	st.Delete("A1B2C3D4")
	assert.NoError(t, st.Close())
}

func TestFactorySelectsConfiguredStore(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	cfg.Store = config.StoreNone
	st, err := store.New(cfg)
	require.NoError(t, err)
	assert.IsType(t, store.Disabled{}, st)

	cfg.Store = config.StoreFile
	st, err = store.New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, st)
	assert.NoError(t, st.Close())
}
