package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/validation"
)

func (h *handler) createDraft(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req validation.CreateDraftRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}
	params, err := req.ToParams(storeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	draft, err := h.svc.CreateDraft(c.Request.Context(), params)
	if err == nil {
		c.Header("Location", fmt.Sprintf("/stores/%s/drafts/%s", storeID, draft.ID))
	}
	h.respond(c, "create_draft", http.StatusCreated, draft, err)
}

func (h *handler) getDraft(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	draft, err := h.svc.GetDraft(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "get_draft", http.StatusOK, draft, err)
}

func (h *handler) updateDraft(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req validation.UpdateDraftRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	draft, err := h.svc.UpdateDraft(c.Request.Context(), storeID, c.Param("id"), patch)
	h.respond(c, "update_draft", http.StatusOK, draft, err)
}

func (h *handler) archiveDraft(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	draft, err := h.svc.ArchiveDraft(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "archive_draft", http.StatusOK, draft, err)
}

func (h *handler) cancelDraft(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	draft, err := h.svc.CancelDraft(c.Request.Context(), storeID, c.Param("id"))
	h.respond(c, "cancel_draft", http.StatusOK, draft, err)
}

func (h *handler) convertDraft(c *gin.Context, storeID string) (result, error) {
	order, err := h.svc.ConvertToOrder(c.Request.Context(), storeID, c.Param("id"))
	if err != nil {
		return result{}, err
	}
	c.Header("Location", fmt.Sprintf("/stores/%s/orders/%s", storeID, order.ID))
	return result{status: http.StatusCreated, body: order, entityID: order.ID}, nil
}
