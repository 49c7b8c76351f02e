package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charvault/server/cache"
	"github.com/charvault/server/config"
	mw "github.com/charvault/server/middleware"
	"github.com/charvault/server/model"
	"github.com/charvault/server/scheduler"
	"github.com/charvault/server/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints. Everything except
// Login sits behind the Auth middleware.
type AdminHandler struct {
	db      *gorm.DB
	cache   cache.Cache
	sec     config.SecurityConfig
	sweeper *storage.Sweeper
	sched   *scheduler.Scheduler
	archive *storage.Archive
	logger  *zap.Logger

	adminKey string
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	c cache.Cache,
	sec config.SecurityConfig,
	adminKey string,
	sweeper *storage.Sweeper,
	sched *scheduler.Scheduler,
	archive *storage.Archive,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		db: db, cache: c, sec: sec, adminKey: adminKey,
		sweeper: sweeper, sched: sched, archive: archive, logger: logger,
	}
}

type adminLoginRequest struct {
	AdminKey string `json:"admin_key" binding:"required"`
}

// Login handles POST /api/admin/login. Exchanges the configured admin
// key for a session JWT. If no admin key is configured the admin
// surface is disabled entirely.
func (h *AdminHandler) Login(c *gin.Context) {
	if h.adminKey == "" {
		c.JSON(http.StatusServiceUnavailable,
			gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
		return
	}

	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(h.adminKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, err := mw.GenerateToken("admin", "admin", h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Set(ctx, "session:"+token, "admin", h.sec.JWTTTLH)

	h.logger.Info("admin login", zap.String("ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Logout handles POST /api/admin/logout.
func (h *AdminHandler) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, "session:"+tokenStr)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Metrics returns storage health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var characters int64
	if err := h.db.Model(&model.Character{}).Count(&characters).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	archiveFiles := 0
	if entries, err := os.ReadDir(h.archive.Dir()); err == nil {
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
				archiveFiles++
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"characters":      characters,
		"archive_files":   archiveFiles,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// Sweep triggers an immediate orphaned-snapshot sweep.
// POST /api/admin/sweep
func (h *AdminHandler) Sweep(c *gin.Context) {
	removed, err := h.sweeper.Sweep()
	if err != nil {
		h.logger.Error("manual sweep failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ListAudit returns recent audit log entries, newest first.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	var logs []model.AuditLog
	if err := h.db.Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}
