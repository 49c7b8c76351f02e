package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTraceRouter() (*gin.Engine, *string) {
	var seen string
	r := gin.New()
	r.Use(TraceID())
	r.GET("/ping", func(c *gin.Context) {
		seen = GetTraceID(c)
		c.String(http.StatusOK, "pong")
	})
	return r, &seen
}

func TestTraceID_Generated(t *testing.T) {
	r, seen := newTraceRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	header := w.Header().Get(TraceIDHeader)
	require.NotEmpty(t, header)
	_, err := uuid.Parse(header)
	assert.NoError(t, err)
	assert.Equal(t, header, *seen)
}

func TestTraceID_InboundUUIDHonored(t *testing.T) {
	r, seen := newTraceRouter()

	inbound := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, inbound)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, inbound, w.Header().Get(TraceIDHeader))
	assert.Equal(t, inbound, *seen)
}

func TestTraceID_InboundGarbageReplaced(t *testing.T) {
	r, seen := newTraceRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "<script>alert(1)</script>")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	header := w.Header().Get(TraceIDHeader)
	_, err := uuid.Parse(header)
	assert.NoError(t, err)
	assert.Equal(t, header, *seen)
}

func TestGetTraceID_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
}
