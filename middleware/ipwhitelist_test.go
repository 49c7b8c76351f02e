package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newWhitelistRouter(entries []string) *gin.Engine {
	r := gin.New()
	r.Use(IPWhitelist(entries))
	r.GET("/admin", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func whitelistRequest(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIPWhitelist_EmptyAllowsAll(t *testing.T) {
	r := newWhitelistRouter(nil)
	w := whitelistRequest(r, "203.0.113.7:12345")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPWhitelist_AllowsListedIP(t *testing.T) {
	r := newWhitelistRouter([]string{"203.0.113.7"})
	w := whitelistRequest(r, "203.0.113.7:12345")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPWhitelist_BlocksUnlistedIP(t *testing.T) {
	r := newWhitelistRouter([]string{"203.0.113.7"})
	w := whitelistRequest(r, "198.51.100.1:12345")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIPWhitelist_AllowsCIDRRange(t *testing.T) {
	r := newWhitelistRouter([]string{"10.1.0.0/16"})

	w := whitelistRequest(r, "10.1.42.9:12345")
	assert.Equal(t, http.StatusOK, w.Code)

	w = whitelistRequest(r, "10.2.0.1:12345")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIPWhitelist_MixedEntries(t *testing.T) {
	r := newWhitelistRouter([]string{"203.0.113.7", "192.168.0.0/24"})

	w := whitelistRequest(r, "203.0.113.7:1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = whitelistRequest(r, "192.168.0.200:1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = whitelistRequest(r, "192.168.1.1:1")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
