package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "InsufficientInventory", Outcome(&fulfillment.Error{Kind: fulfillment.KindInsufficientInventory}))
	assert.Equal(t, "Unknown", Outcome(errors.New("boom")))
}

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(operationsTotal.WithLabelValues("convert_to_order", "NotFound"))
	RecordOperation("convert_to_order", &fulfillment.Error{Kind: fulfillment.KindNotFound})
	after := testutil.ToFloat64(operationsTotal.WithLabelValues("convert_to_order", "NotFound"))
	assert.Equal(t, before+1, after)
}

func TestPrometheusMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/stores/:storeId/orders/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stores/s1/orders/o1", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/stores/:storeId/orders/:id", "204")
	assert.GreaterOrEqual(t, testutil.ToFloat64(counter), 1.0)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "fulfillment_http_requests_total"))
}
