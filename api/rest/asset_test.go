package rest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAssetTestEnv wires the asset routes next to the character routes,
// with no algod node configured.
func newAssetTestEnv(t *testing.T) *charTestEnv {
	t.Helper()
	env := newCharTestEnv(t)

	h := NewAssetHandler(env.svc, nil, env.secrets, nop())
	api := env.router.Group("/api")
	chars := api.Group("/characters")
	chars.GET("/:key/wallet", h.Wallet)
	chars.POST("/:key/asset", h.CreateAsset)
	chars.POST("/:key/asset/transfer", h.Transfer)
	chars.POST("/:key/asset/optin", h.OptIn)
	api.GET("/assets/:id", h.AssetInfo)
	return env
}

func TestAssetEndpoints_UnavailableWithoutChain(t *testing.T) {
	env := newAssetTestEnv(t)

	cases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/characters/Nova/asset", `{"name": "Token", "unit_name": "TKN"}`},
		{http.MethodPost, "/api/characters/Nova/asset/transfer", `{"to": "X", "asset_id": 1, "amount": 1}`},
		{http.MethodPost, "/api/characters/Nova/asset/optin", `{"asset_id": 1}`},
		{http.MethodGet, "/api/assets/123", ""},
	}
	for _, tc := range cases {
		w := env.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestWallet_AddressWithoutChain(t *testing.T) {
	env := newAssetTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/characters", `{"name": "Nova"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	address := decode(t, w)["algorand_address"]
	require.NotEmpty(t, address)

	w = env.do(t, http.MethodGet, "/api/characters/Nova/wallet", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, address, out["address"])
	// No node configured: no on-chain balance in the response.
	assert.NotContains(t, out, "balance")
}

func TestWallet_CharacterNotFound(t *testing.T) {
	env := newAssetTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/characters/ghost/wallet", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
