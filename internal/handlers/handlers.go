// Package handlers maps the HTTP surface onto fulfillment.Service.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/idempotency"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/metrics"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/validation"
	"go.uber.org/zap"
)

// IdempotencyStore is satisfied by idempotency.Store and idempotency.MemoryStore.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, requestHash string) (*idempotency.Record, bool, error)
	MarkDone(ctx context.Context, key, entityID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the fulfillment routes.
type HandlerConfig struct {
	Service *fulfillment.Service
	// Idempotency is optional; without it Idempotency-Key headers are ignored.
	Idempotency IdempotencyStore
	Logger      *zap.Logger
}

type handler struct {
	svc    *fulfillment.Service
	idem   IdempotencyStore
	v      *validatorv10.Validate
	logger *zap.Logger
}

// RegisterRoutes registers every route under /stores/:storeId.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		svc:    cfg.Service,
		idem:   cfg.Idempotency,
		v:      validation.New(),
		logger: logger,
	}

	s := r.Group("/stores/:storeId")

	s.POST("/drafts", h.createDraft)
	s.GET("/drafts/:id", h.getDraft)
	s.PATCH("/drafts/:id", h.updateDraft)
	s.POST("/drafts/:id/archive", h.archiveDraft)
	s.POST("/drafts/:id/cancel", h.cancelDraft)
	s.POST("/drafts/:id/convert", h.idempotent("convert_to_order", h.convertDraft))

	s.GET("/orders", h.listOrders)
	s.GET("/orders/:id", h.getOrder)
	s.POST("/orders/:id/close", h.closeOrder)
	s.POST("/orders/:id/cancel", h.cancelOrder)
	s.DELETE("/orders/:id", h.deleteOrder)

	s.GET("/inventory/:variantId", h.getInventory)
	s.POST("/inventory/:variantId/reserve", h.adjustInventory("reserve_inventory", h.svc.ReserveInventory))
	s.POST("/inventory/:variantId/release", h.adjustInventory("release_inventory", h.svc.ReleaseInventory))
	s.POST("/inventory/:variantId/add", h.adjustInventory("add_inventory", h.svc.AddInventory))
	s.POST("/inventory/:variantId/remove", h.adjustInventory("remove_inventory", h.svc.RemoveInventory))

	s.POST("/bills", h.createBill)
	s.GET("/bills", h.listBills)
	s.GET("/bills/:id", h.getBill)
	s.GET("/bills/:id/payments", h.listPayments)
	s.POST("/bills/:id/payments", h.idempotent("add_payment", h.addPayment))
	s.POST("/bills/:id/payments/:paymentId/reverse", h.reversePayment)
}

// statusFor maps a fulfillment error kind onto an HTTP status.
func statusFor(err error) int {
	switch fulfillment.KindOf(err) {
	case fulfillment.KindInvalidStore,
		fulfillment.KindInvalidOrder,
		fulfillment.KindOperationNotPermitted,
		fulfillment.KindInsufficientInventory:
		return http.StatusConflict
	case fulfillment.KindNotFound:
		return http.StatusNotFound
	case fulfillment.KindMissingArguments:
		return http.StatusUnprocessableEntity
	case fulfillment.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorBody(err error) gin.H {
	return gin.H{
		"error":     fulfillment.KindOf(err).String(),
		"msg":       err.Error(),
		"retryable": fulfillment.IsRetryable(err),
	}
}

// respond records the operation and writes either body or the mapped error.
func (h *handler) respond(c *gin.Context, op string, status int, body any, err error) {
	metrics.RecordOperation(op, err)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("request failed", zap.String("op", op), zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.JSON(code, errorBody(err))
		return
	}
	if body == nil {
		c.Status(status)
		return
	}
	c.JSON(status, body)
}

// storeID binds the tenancy parameter, writing a 400 on failure.
func (h *handler) storeID(c *gin.Context) (string, bool) {
	id, err := validation.BindStore(c, h.v)
	return id, err == nil
}
