package model_test

import (
	"encoding/json"
	"testing"

	"github.com/charvault/server/model"
	"github.com/charvault/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Character
	char := &model.Character{
		Name:            "Hero",
		Description:     "a test character",
		Type:            model.DefaultCharacterType,
		IPFSHash:        "QmHash",
		IPFSURL:         "https://gateway.pinata.cloud/ipfs/QmHash",
		AlgorandAddress: "ADDR",
		LocalFilePath:   "/tmp/hero.json",
	}
	require.NoError(t, db.Create(char).Error)
	assert.Greater(t, char.ID, int64(0))

	var found model.Character
	require.NoError(t, db.First(&found, char.ID).Error)
	assert.Equal(t, "Hero", found.Name)
	assert.False(t, found.CreatedAt.IsZero())

	// CharacterSecret
	sec := &model.CharacterSecret{CharacterID: char.ID, Sealed: "c2VhbGVk"}
	require.NoError(t, db.Create(sec).Error)

	// AuditLog
	al := &model.AuditLog{TraceID: "trace-001", Action: "create_character"}
	require.NoError(t, db.Create(al).Error)
}

func TestCharacter_NameUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)

	require.NoError(t, db.Create(&model.Character{Name: "Solo"}).Error)
	err := db.Create(&model.Character{Name: "Solo"}).Error
	assert.Error(t, err, "name carries a unique index")
}

func TestCharacter_JSONExcludesInternals(t *testing.T) {
	char := &model.Character{
		Name:          "Hidden",
		LocalFilePath: "/var/lib/charvault/hidden.json",
	}
	raw, err := json.Marshal(char)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotContains(t, out, "local_file_path")
	assert.NotContains(t, out, "LocalFilePath")
}

func TestCharacterSecret_JSONExcludesSealed(t *testing.T) {
	sec := &model.CharacterSecret{CharacterID: 1, Sealed: "secret-bytes"}
	raw, err := json.Marshal(sec)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-bytes")
}
