package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	ObserveStage("embed", time.Now(), errors.New("boom"))
	AddIngestedChunks("manual", 3)
	ObserveSearch("search", 2)

	body := scrape(t, r)
	require.Contains(t, body, `mrag_http_requests_total{route="/ping",status="200"} 1`)
	require.Contains(t, body, `mrag_stage_failures_total{stage="embed"} 1`)
	require.Contains(t, body, `mrag_ingested_chunks_total{source="manual"} 3`)
	require.Contains(t, body, `mrag_search_results_count{mode="search"} 1`)
}
