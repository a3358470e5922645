package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/validation"
)

func (h *handler) createBill(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req validation.CreateBillRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	params, err := req.ToParams()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	bill, err := h.svc.CreateBill(c.Request.Context(), storeID, params)
	if err == nil {
		c.Header("Location", fmt.Sprintf("/stores/%s/bills/%s", storeID, bill.ID))
	}
	h.respond(c, "create_bill", http.StatusCreated, bill, err)
}

func (h *handler) listBills(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	bills, err := h.svc.GetBills(c.Request.Context(), storeID)
	h.respond(c, "get_bills", http.StatusOK, gin.H{"bills": bills}, err)
}

func (h *handler) getBill(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	bill, err := h.svc.GetBill(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "get_bill", http.StatusOK, bill, err)
}

func (h *handler) listPayments(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	payments, err := h.svc.GetPayments(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "get_payments", http.StatusOK, gin.H{"payments": payments}, err)
}

func (h *handler) addPayment(c *gin.Context, storeID string) (result, error) {
	var req validation.AddPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return result{}, nil
	}
	params, err := req.ToParams()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return result{}, nil
	}

	payment, err := h.svc.AddPayment(c.Request.Context(), storeID, c.Param("id"), params)
	if err != nil {
		return result{}, err
	}
	return result{status: http.StatusCreated, body: payment, entityID: payment.ID}, nil
}

func (h *handler) reversePayment(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req validation.ReversePaymentRequest
	if err := validation.BindOptionalAndValidate(c, &req, h.v); err != nil {
		return
	}
	payment, err := h.svc.ReversePayment(c.Request.Context(), storeID, c.Param("id"), c.Param("paymentId"), req.Notes)
	h.respond(c, "reverse_payment", http.StatusCreated, payment, err)
}
