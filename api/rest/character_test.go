package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charvault/server/cache"
	"github.com/charvault/server/storage"
	"github.com/charvault/server/templates"
	"github.com/charvault/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

type charTestEnv struct {
	router  *gin.Engine
	pinner  *testutil.FakePinner
	cache   cache.Cache
	svc     *storage.Service
	secrets *testutil.MemorySecretStore
}

func newCharTestEnv(t *testing.T) *charTestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	pinner := &testutil.FakePinner{}
	secretStore := testutil.NewMemorySecretStore()
	archive := storage.NewArchive(filepath.Join(t.TempDir(), "generated"))

	svc, err := storage.NewService(db, pinner, &testutil.FakeAccountSource{}, secretStore, archive, nil, nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	tpl := templates.NewLoader("")
	require.NoError(t, tpl.Load())

	c, _ := testutil.SetupTestCache(t)

	h := NewCharacterHandler(svc, tpl, c, 30*time.Second, nil, nop())
	r := gin.New()
	api := r.Group("/api")
	chars := api.Group("/characters")
	chars.GET("", h.List)
	chars.POST("", h.Create)
	chars.GET("/:key", h.Get)
	chars.PUT("/:key", h.Update)
	chars.DELETE("/:key", h.Delete)
	api.GET("/templates", h.ListTemplates)

	return &charTestEnv{router: r, pinner: pinner, cache: c, svc: svc, secrets: secretStore}
}

func (e *charTestEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func TestCreateCharacter(t *testing.T) {
	env := newCharTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/characters", `{
		"name": "Nova",
		"description": "A rogue AI",
		"type": "ai_character",
		"backstory": "born in a datacenter"
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, "Nova", out["name"])
	assert.NotEmpty(t, out["ipfs_hash"])
	assert.NotEmpty(t, out["algorand_address"])
	assert.Equal(t, "born in a datacenter", out["backstory"])
	assert.NotContains(t, out, "mnemonic")
	assert.NotContains(t, out, "local_file_path")
}

func TestCreateCharacter_MissingName(t *testing.T) {
	env := newCharTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/characters", `{"description": "anonymous"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCharacter_UnknownType(t *testing.T) {
	env := newCharTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/characters", `{"name": "X", "type": "dragon"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCharacter_DuplicateName(t *testing.T) {
	env := newCharTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/characters", `{"name": "Echo"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/characters", `{"name": "Echo"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateCharacter_PinFailure(t *testing.T) {
	env := newCharTestEnv(t)
	env.pinner.FailNext = true

	w := env.do(t, http.MethodPost, "/api/characters", `{"name": "Ghost"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	// Nothing was stored.
	w = env.do(t, http.MethodGet, "/api/characters/Ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCharacter_ByNameAndID(t *testing.T) {
	env := newCharTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/characters", `{"name": "Iris"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(decode(t, w)["id"].(float64))

	w = env.do(t, http.MethodGet, "/api/characters/Iris", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Iris", decode(t, w)["name"])

	w = env.do(t, http.MethodGet, "/api/characters/"+strconv.FormatInt(id, 10), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Iris", decode(t, w)["name"])
}

func TestGetCharacter_NotFound(t *testing.T) {
	env := newCharTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/characters/nobody", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/characters/99999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCharacters(t *testing.T) {
	env := newCharTestEnv(t)

	for _, name := range []string{"A", "B"} {
		w := env.do(t, http.MethodPost, "/api/characters", `{"name": "`+name+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.EqualValues(t, 2, out["count"])
	assert.Len(t, out["characters"], 2)
}

func TestListCharacters_CacheInvalidatedOnCreate(t *testing.T) {
	env := newCharTestEnv(t)

	// Prime the cache with an empty list.
	w := env.do(t, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["count"])

	w = env.do(t, http.MethodPost, "/api/characters", `{"name": "Fresh"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// A mutation must invalidate the cached list.
	w = env.do(t, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestListCharacters_ServesFromCache(t *testing.T) {
	env := newCharTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, w.Code)

	// Tamper with the cached body to prove the second read hits the cache.
	require.NoError(t, env.cache.Set(context.Background(), ListCacheKey, `{"characters":[],"count":42}`, time.Minute))
	w = env.do(t, http.MethodGet, "/api/characters", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 42, decode(t, w)["count"])
}

func TestUpdateCharacter(t *testing.T) {
	env := newCharTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/characters", `{"name": "Patch", "description": "before", "theme": "noir"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)

	w = env.do(t, http.MethodPut, "/api/characters/Patch", `{"description": "after"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "after", out["description"])
	assert.Equal(t, "noir", out["theme"])
	assert.Equal(t, created["algorand_address"], out["algorand_address"])
	assert.NotEqual(t, created["ipfs_hash"], out["ipfs_hash"])
}

func TestUpdateCharacter_NotFound(t *testing.T) {
	env := newCharTestEnv(t)
	w := env.do(t, http.MethodPut, "/api/characters/ghost", `{"description": "x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCharacter(t *testing.T) {
	env := newCharTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/characters", `{"name": "Doomed"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(decode(t, w)["id"].(float64))

	w = env.do(t, http.MethodDelete, "/api/characters/"+strconv.FormatInt(id, 10), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	// Gone.
	w = env.do(t, http.MethodGet, "/api/characters/Doomed", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Idempotent: repeating the delete still succeeds.
	w = env.do(t, http.MethodDelete, "/api/characters/"+strconv.FormatInt(id, 10), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestDeleteCharacter_ByMissingName(t *testing.T) {
	env := newCharTestEnv(t)
	w := env.do(t, http.MethodDelete, "/api/characters/never_existed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestListTemplates(t *testing.T) {
	env := newCharTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Len(t, out["templates"], 4)
}
