package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/fulfillment"
)

func (h *handler) listOrders(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	status := fulfillment.OrderStatus(c.Query("status"))
	orders, err := h.svc.GetOrders(c.Request.Context(), storeID, status)
	h.respond(c, "get_orders", http.StatusOK, gin.H{"orders": orders}, err)
}

func (h *handler) getOrder(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "get_order", http.StatusOK, order, err)
}

func (h *handler) closeOrder(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	order, err := h.svc.CloseOrder(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "close_order", http.StatusOK, order, err)
}

func (h *handler) cancelOrder(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	order, err := h.svc.CancelOrder(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "cancel_order", http.StatusOK, order, err)
}

func (h *handler) deleteOrder(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	err := h.svc.DeleteOrder(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "delete_order", http.StatusNoContent, nil, err)
}
