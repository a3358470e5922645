package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-fulfillment/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:     config.BackendMemory,
		DefaultCurrency:  "USD",
		OperationTimeout: 5 * time.Second,
		LockTTL:          30 * time.Second,
		IdempotencyTTL:   time.Hour,
	}
}

func TestSetupRouter_HealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hcfg, err := buildHandlerConfig(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	r := setupRouter(hcfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fulfillment_http_requests_total")
}

func TestSetupRouter_MemoryBackendServesDrafts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hcfg, err := buildHandlerConfig(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	r := setupRouter(hcfg)

	body := `{"items":[{"product_id":"p1","variant_id":"v1","quantity":1,"unit_price":"5.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/stores/0f8fad5b-d9cb-469f-a165-70867728950e/drafts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
