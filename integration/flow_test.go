package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/charvault/server/api/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharacterLifecycleOverHTTP(t *testing.T) {
	ts := NewTestServer(t)

	// Listen for lifecycle events the way the SSE stream does.
	events, cancel, err := ts.PubSub.Subscribe(context.Background(), sse.EventChannel)
	require.NoError(t, err)
	defer cancel()

	// Create.
	code, created := ts.DoJSON(t, http.MethodPost, "/api/characters", map[string]interface{}{
		"name":        "Nova",
		"description": "A rogue AI",
		"type":        "ai_character",
		"mood":        "curious",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, created["ipfs_hash"])
	assert.Len(t, created["algorand_address"], 58)
	assert.Equal(t, "curious", created["mood"])
	assert.EqualValues(t, 1, ts.PinCount.Load())

	// The stored hook published an event.
	select {
	case msg := <-events:
		var evt map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, "character_stored", evt["event"])
	case <-time.After(time.Second):
		t.Fatal("no character_stored event published")
	}

	// One snapshot landed in the archive.
	entries, err := os.ReadDir(ts.Archive.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Read back by name.
	code, got := ts.DoJSON(t, http.MethodGet, "/api/characters/Nova", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, created["algorand_address"], got["algorand_address"])
	assert.Equal(t, "curious", got["mood"])

	// Sparse update re-pins and keeps untouched fields.
	code, updated := ts.DoJSON(t, http.MethodPut, "/api/characters/Nova", map[string]interface{}{
		"description": "A reformed AI",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "A reformed AI", updated["description"])
	assert.Equal(t, created["algorand_address"], updated["algorand_address"])
	assert.NotEqual(t, created["ipfs_hash"], updated["ipfs_hash"])
	assert.EqualValues(t, 2, ts.PinCount.Load())

	// List reflects the update (cache invalidated by the mutation).
	code, list := ts.DoJSON(t, http.MethodGet, "/api/characters", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, list["count"])

	// Wallet endpoint serves the address without an algod node.
	code, wallet := ts.DoJSON(t, http.MethodGet, "/api/characters/Nova/wallet", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, created["algorand_address"], wallet["address"])

	// Delete is idempotent.
	code, del := ts.DoJSON(t, http.MethodDelete, "/api/characters/Nova", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, del["success"])

	code, _ = ts.DoJSON(t, http.MethodGet, "/api/characters/Nova", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, del = ts.DoJSON(t, http.MethodDelete, "/api/characters/Nova", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, del["success"])
}

func TestDuplicateNameRejectedOverHTTP(t *testing.T) {
	ts := NewTestServer(t)

	code, _ := ts.DoJSON(t, http.MethodPost, "/api/characters", map[string]interface{}{"name": "Echo"})
	require.Equal(t, http.StatusCreated, code)

	code, body := ts.DoJSON(t, http.MethodPost, "/api/characters", map[string]interface{}{"name": "Echo"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "taken")
}

func TestAdminFlowOverHTTP(t *testing.T) {
	ts := NewTestServer(t)

	code, _ := ts.DoJSON(t, http.MethodPost, "/api/characters", map[string]interface{}{"name": "Iris"})
	require.Equal(t, http.StatusCreated, code)

	// No token: rejected.
	code, _ = ts.DoJSON(t, http.MethodGet, "/api/admin/metrics", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, login := ts.DoJSON(t, http.MethodPost, "/api/admin/login", map[string]interface{}{
		"admin_key": adminKey,
	})
	require.Equal(t, http.StatusOK, code)
	token, _ := login["token"].(string)
	require.NotEmpty(t, token)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metrics map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metrics))
	assert.EqualValues(t, 1, metrics["characters"])
	assert.EqualValues(t, 1, metrics["archive_files"])
}
