package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/validation"
)

type stockOp func(ctx context.Context, storeID, variantID string, qty int64) (*fulfillment.InventoryRecord, error)

func (h *handler) getInventory(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	rec, err := h.svc.GetInventory(c.Request.Context(), storeID, c.Param("variantId"))
	h.respond(c, "get_inventory", http.StatusOK, rec, err)
}

func (h *handler) adjustInventory(op string, fn stockOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID, ok := h.storeID(c)
		if !ok {
			return
		}
		var req validation.QuantityRequest
		if err := validation.BindAndValidate(c, &req, h.v); err != nil {
			return
		}
		rec, err := fn(c.Request.Context(), storeID, c.Param("variantId"), req.Quantity)
		h.respond(c, op, http.StatusOK, rec, err)
	}
}
