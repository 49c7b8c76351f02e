package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charvault/server/audit"
	"github.com/charvault/server/cache"
	mw "github.com/charvault/server/middleware"
	"github.com/charvault/server/storage"
	"github.com/charvault/server/templates"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListCacheKey holds the cached GET /api/characters response body.
const ListCacheKey = "characters:list"

// CharacterHandler handles character REST endpoints.
type CharacterHandler struct {
	svc     *storage.Service
	tpl     *templates.Loader
	cache   cache.Cache
	listTTL time.Duration
	audit   *audit.Service
	logger  *zap.Logger
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(svc *storage.Service, tpl *templates.Loader, c cache.Cache, listTTL time.Duration, auditSvc *audit.Service, logger *zap.Logger) *CharacterHandler {
	return &CharacterHandler{svc: svc, tpl: tpl, cache: c, listTTL: listTTL, audit: auditSvc, logger: logger}
}

// List handles GET /api/characters. The response is cached briefly;
// every mutation invalidates the cache.
func (h *CharacterHandler) List(c *gin.Context) {
	cacheCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if cached, err := h.cache.Get(cacheCtx, ListCacheKey); err == nil && cached != "" {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	chars, err := h.svc.ListCharacters(c.Request.Context())
	if err != nil {
		h.logger.Error("list characters failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body, err := json.Marshal(gin.H{"characters": chars, "count": len(chars)})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if h.listTTL > 0 {
		_ = h.cache.Set(cacheCtx, ListCacheKey, string(body), h.listTTL)
	}
	c.Data(http.StatusOK, "application/json", body)
}

// Create handles POST /api/characters.
func (h *CharacterHandler) Create(c *gin.Context) {
	start := time.Now()

	var data storage.CharacterData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if data.Type != "" && !h.tpl.Valid(data.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown character type"})
		return
	}

	stored, err := h.svc.StoreCharacter(c.Request.Context(), data)
	if err != nil {
		h.logAudit(c, "create_character", nil, data.Name, data, nil, err, start)
		switch {
		case errors.Is(err, storage.ErrNameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "character name already taken"})
		case errors.Is(err, storage.ErrUpload):
			c.JSON(http.StatusBadGateway, gin.H{"error": "upload to pinning service failed"})
		case errors.Is(err, storage.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage closed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	h.invalidateList(c)
	h.logAudit(c, "create_character", &stored.ID, stored.Name, data, gin.H{"id": stored.ID, "ipfs_hash": stored.IPFSHash}, nil, start)
	c.JSON(http.StatusCreated, stored)
}

// Get handles GET /api/characters/:key. A numeric key is treated as an
// ID, anything else as a character name.
func (h *CharacterHandler) Get(c *gin.Context) {
	stored, err := h.lookup(c)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// Update handles PUT /api/characters/:key.
func (h *CharacterHandler) Update(c *gin.Context) {
	start := time.Now()

	existing, err := h.lookup(c)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	var patch storage.CharacterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := h.svc.UpdateCharacter(c.Request.Context(), existing.ID, patch)
	if err != nil {
		h.logAudit(c, "update_character", &existing.ID, existing.Name, patch, nil, err, start)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		case errors.Is(err, storage.ErrUpload):
			c.JSON(http.StatusBadGateway, gin.H{"error": "upload to pinning service failed"})
		case errors.Is(err, storage.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage closed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	h.invalidateList(c)
	h.logAudit(c, "update_character", &stored.ID, stored.Name, patch, gin.H{"ipfs_hash": stored.IPFSHash}, nil, start)
	c.JSON(http.StatusOK, stored)
}

// Delete handles DELETE /api/characters/:key. Deleting an absent
// character succeeds: the desired end state already holds.
func (h *CharacterHandler) Delete(c *gin.Context) {
	start := time.Now()

	id, name, err := h.resolveID(c)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		h.respondLookupError(c, err)
		return
	}

	if err := h.svc.DeleteCharacter(c.Request.Context(), id); err != nil {
		h.logAudit(c, "delete_character", &id, name, gin.H{"id": id}, nil, err, start)
		if errors.Is(err, storage.ErrClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage closed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.invalidateList(c)
	h.logAudit(c, "delete_character", &id, name, gin.H{"id": id}, gin.H{"success": true}, nil, start)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListTemplates handles GET /api/templates.
func (h *CharacterHandler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": h.tpl.All()})
}

// lookup resolves :key to a stored character.
func (h *CharacterHandler) lookup(c *gin.Context) (*storage.StoredCharacter, error) {
	key := c.Param("key")
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return h.svc.GetCharacterByID(c.Request.Context(), id)
	}
	return h.svc.GetCharacterByName(c.Request.Context(), key)
}

// resolveID resolves :key to a character ID without requiring the full
// merged view.
func (h *CharacterHandler) resolveID(c *gin.Context) (int64, string, error) {
	key := c.Param("key")
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return id, "", nil
	}
	stored, err := h.svc.GetCharacterByName(c.Request.Context(), key)
	if err != nil {
		return 0, "", err
	}
	return stored.ID, stored.Name, nil
}

func (h *CharacterHandler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
	case errors.Is(err, storage.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage closed"})
	default:
		h.logger.Error("character lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *CharacterHandler) invalidateList(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.cache.Del(ctx, ListCacheKey); err != nil {
		h.logger.Warn("list cache invalidation failed", zap.Error(err))
	}
}

func (h *CharacterHandler) logAudit(c *gin.Context, action string, id *int64, name string, req, resp interface{}, opErr error, start time.Time) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:       mw.GetTraceID(c),
		CharacterID:   id,
		CharacterName: name,
		Action:        action,
		Request:       req,
		Response:      resp,
		IP:            c.ClientIP(),
		DurationMs:    int(time.Since(start).Milliseconds()),
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	h.audit.Log(entry)
}
