package secrets

import (
	"context"
	"testing"

	"github.com/charvault/server/model"
	"github.com/charvault/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "unit-test-vault-key"

func TestNewVault_RequiresKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, err := NewVault(db, "")
	assert.Error(t, err)
}

func TestVault_PutGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	v, err := NewVault(db, testKey)
	require.NoError(t, err)

	ctx := context.Background()
	phrase := "abandon ability able about above absent absorb abstract absurd abuse access accident account accuse achieve acid acoustic acquire across act action actor actress invest"
	require.NoError(t, v.Put(ctx, 1, phrase))

	got, err := v.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, phrase, got)
}

func TestVault_SealedAtRest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	v, err := NewVault(db, testKey)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, v.Put(ctx, 7, "top secret phrase"))

	var row model.CharacterSecret
	require.NoError(t, db.Where("character_id = ?", 7).First(&row).Error)
	assert.NotContains(t, row.Sealed, "top secret phrase", "plaintext must not appear in the DB")
	assert.NotEmpty(t, row.Sealed)
}

func TestVault_PutReplaces(t *testing.T) {
	db := testutil.SetupTestDB(t)
	v, err := NewVault(db, testKey)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, v.Put(ctx, 3, "first"))
	require.NoError(t, v.Put(ctx, 3, "second"))

	got, err := v.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	var count int64
	db.Model(&model.CharacterSecret{}).Where("character_id = ?", 3).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestVault_GetMissing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	v, err := NewVault(db, testKey)
	require.NoError(t, err)

	_, err = v.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVault_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	v, err := NewVault(db, testKey)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, v.Put(ctx, 5, "gone soon"))
	require.NoError(t, v.Delete(ctx, 5))

	_, err = v.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, v.Delete(ctx, 5))
}

func TestVault_WrongKeyCannotOpen(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	v1, err := NewVault(db, testKey)
	require.NoError(t, err)
	require.NoError(t, v1.Put(ctx, 9, "sealed under key one"))

	v2, err := NewVault(db, "a-different-key")
	require.NoError(t, err)
	_, err = v2.Get(ctx, 9)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
