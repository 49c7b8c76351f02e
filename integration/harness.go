package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	walletgen "github.com/charvault/server/algorand"
	apirest "github.com/charvault/server/api/rest"
	"github.com/charvault/server/api/sse"
	"github.com/charvault/server/cache"
	"github.com/charvault/server/config"
	"github.com/charvault/server/hook"
	mw "github.com/charvault/server/middleware"
	"github.com/charvault/server/pinning"
	"github.com/charvault/server/scheduler"
	"github.com/charvault/server/secrets"
	"github.com/charvault/server/storage"
	"github.com/charvault/server/templates"
	"github.com/charvault/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const adminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired
// together the way main.go does it, backed by a fake Pinata endpoint.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Archive  *storage.Archive
	Server   *httptest.Server
	Pinata   *httptest.Server
	PinCount *atomic.Int64
	URL      string
}

// NewTestServer creates a fully wired charvault server for integration
// testing. It mirrors the dependency wiring in main.go; pins land on an
// in-process fake Pinata.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		VaultKey:       "integration-vault-key",
	}

	// ---- Fake Pinata ----
	var pinCount atomic.Int64
	pinata := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := pinCount.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"IpfsHash":"QmIntegration%06d","PinSize":128,"Timestamp":"2026-01-01T00:00:00Z"}`, n)
	}))
	t.Cleanup(pinata.Close)

	pinner := pinning.NewClient(config.PinataConfig{
		Endpoint: pinata.URL,
		Gateway:  "https://gateway.pinata.cloud",
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	}, logger)

	// ---- Storage stack ----
	archive := storage.NewArchive(filepath.Join(t.TempDir(), "generated"))
	vault, err := secrets.NewVault(db, sec.VaultKey)
	require.NoError(t, err)

	tpl := templates.NewLoader("")
	require.NoError(t, tpl.Load())

	sseH := sse.NewHandler(pubsub, logger)

	hooks := hook.NewCenter()
	for _, event := range []string{
		hook.EventCharacterStored,
		hook.EventCharacterUpdated,
		hook.EventCharacterDeleted,
	} {
		event := event
		hooks.Register(event, 10, "sse_publish", func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
			payload, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
			if err != nil {
				return nil, err
			}
			return nil, sseH.Publish(ctx, string(payload))
		})
		hooks.Register(event, 20, "list_cache_invalidate", func(ctx context.Context, _ string, _ interface{}) (interface{}, error) {
			return nil, c.Del(ctx, apirest.ListCacheKey)
		})
	}

	svc, err := storage.NewService(db, pinner, walletgen.AccountGenerator{}, vault, archive, hooks, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	sweeper := storage.NewSweeper(db, archive, 24*time.Hour, logger)

	// ---- Router (mirrors main.go) ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	charH := apirest.NewCharacterHandler(svc, tpl, c, 30*time.Second, nil, logger)
	assetH := apirest.NewAssetHandler(svc, nil, vault, logger)
	adminH := apirest.NewAdminHandler(db, c, sec, adminKey, sweeper, sched, archive, logger)

	api := r.Group("/api")
	{
		charsG := api.Group("/characters")
		charsG.GET("", charH.List)
		charsG.POST("", charH.Create)
		charsG.GET("/:key", charH.Get)
		charsG.PUT("/:key", charH.Update)
		charsG.DELETE("/:key", charH.Delete)

		charsG.GET("/:key/wallet", assetH.Wallet)
		charsG.POST("/:key/asset", assetH.CreateAsset)

		api.GET("/assets/:id", assetH.AssetInfo)
		api.GET("/templates", charH.ListTemplates)
		api.GET("/events", sseH.ServeSSE)

		adminG := api.Group("/admin")
		adminG.POST("/login", adminH.Login)
		protected := adminG.Group("")
		protected.Use(mw.Auth(sec, c))
		protected.POST("/logout", adminH.Logout)
		protected.GET("/metrics", adminH.Metrics)
		protected.POST("/sweep", adminH.Sweep)
		protected.GET("/audit", adminH.ListAudit)
	}

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		Archive:  archive,
		Server:   server,
		Pinata:   pinata,
		PinCount: &pinCount,
		URL:      server.URL,
	}
}

// DoJSON issues a request with an optional JSON body and decodes the
// JSON response.
func (ts *TestServer) DoJSON(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}
