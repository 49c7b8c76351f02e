package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charvault/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestSweep_RemovesStaleOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// One referenced snapshot plus one orphan from an update.
	stored, err := env.svc.StoreCharacter(ctx, CharacterData{Name: "Keeper"})
	require.NoError(t, err)
	desc := "updated"
	_, err = env.svc.UpdateCharacter(ctx, stored.ID, CharacterPatch{Description: &desc})
	require.NoError(t, err)
	require.Len(t, archiveFiles(t, env.archive), 2)

	// Age every file past the threshold.
	for _, name := range archiveFiles(t, env.archive) {
		backdate(t, filepath.Join(env.archive.Dir(), name), 48*time.Hour)
	}

	sw := NewSweeper(env.svc.db, env.archive, 24*time.Hour, nop())
	removed, err := sw.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The surviving file is the one the row references.
	files := archiveFiles(t, env.archive)
	require.Len(t, files, 1)
	got, err := env.svc.GetCharacterByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
}

func TestSweep_SparesYoungOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stored, err := env.svc.StoreCharacter(ctx, CharacterData{Name: "Fresh"})
	require.NoError(t, err)
	desc := "v2"
	_, err = env.svc.UpdateCharacter(ctx, stored.ID, CharacterPatch{Description: &desc})
	require.NoError(t, err)

	// Files are brand new: nothing is old enough to sweep.
	sw := NewSweeper(env.svc.db, env.archive, 24*time.Hour, nop())
	removed, err := sw.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Len(t, archiveFiles(t, env.archive), 2)
}

func TestSweep_IgnoresNonJSON(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, os.MkdirAll(env.archive.Dir(), 0o755))
	note := filepath.Join(env.archive.Dir(), "README.txt")
	require.NoError(t, os.WriteFile(note, []byte("keep"), 0o644))
	backdate(t, note, 48*time.Hour)

	sw := NewSweeper(env.svc.db, env.archive, 24*time.Hour, nop())
	removed, err := sw.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.FileExists(t, note)
}

func TestSweep_MissingDir(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sw := NewSweeper(db, NewArchive(filepath.Join(t.TempDir(), "never_created")), time.Hour, nop())
	removed, err := sw.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
