package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-storefront-fulfillment/internal/idempotency"
	"go.uber.org/zap"
)

// IdempotencyHeader carries the client's retry key.
const IdempotencyHeader = "Idempotency-Key"

// result is what an idempotent action produced.
type result struct {
	status   int
	body     any
	entityID string
}

type action func(c *gin.Context, storeID string) (result, error)

// idempotent wraps a non-idempotent POST. With an Idempotency-Key header the
// first outcome is stored and replayed to retries carrying the same key and
// body. Retryable failures are not stored, so the retry runs again.
func (h *handler) idempotent(op string, fn action) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID, ok := h.storeID(c)
		if !ok {
			return
		}

		clientKey := c.GetHeader(IdempotencyHeader)
		if clientKey == "" || h.idem == nil {
			res, err := fn(c, storeID)
			if c.IsAborted() {
				return
			}
			h.respond(c, op, res.status, res.body, err)
			return
		}

		ctx := c.Request.Context()
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))

		key := storeID + "#" + clientKey
		hash := requestHash(c.Request.Method, c.Request.URL.Path, raw)

		rec, created, err := h.idem.Begin(ctx, key, hash)
		if err != nil {
			h.logger.Error("idempotency check failed", zap.String("op", op), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency_check_failed", "retryable": true})
			return
		}
		if !created {
			h.replay(c, rec, hash)
			return
		}

		res, err := fn(c, storeID)
		if c.IsAborted() {
			// rejected before reaching the service; let a corrected retry reuse the key
			h.markFailed(c, key, "request rejected by validation")
			return
		}
		if err != nil && statusFor(err) >= http.StatusInternalServerError {
			h.markFailed(c, key, fmt.Sprintf("%s failed: %v", op, err))
			h.respond(c, op, res.status, res.body, err)
			return
		}

		status, body := res.status, res.body
		if err != nil {
			status, body = statusFor(err), errorBody(err)
		}
		payload, merr := json.Marshal(body)
		if merr != nil {
			h.markFailed(c, key, "marshal response: "+merr.Error())
		} else if derr := h.idem.MarkDone(ctx, key, res.entityID, string(payload), status); derr != nil {
			// the action committed; a retry will see IN_PROGRESS until the TTL passes
			h.logger.Error("mark idempotency done failed", zap.String("op", op), zap.Error(derr))
		}
		h.respond(c, op, status, body, err)
	}
}

func (h *handler) replay(c *gin.Context, rec *idempotency.Record, hash string) {
	if rec.RequestHash != hash {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused", "msg": "key was used with a different request"})
		return
	}
	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func (h *handler) markFailed(c *gin.Context, key, note string) {
	if err := h.idem.MarkFailed(c.Request.Context(), key, note); err != nil {
		h.logger.Warn("mark idempotency failed", zap.String("key", key), zap.Error(err))
	}
}

func requestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method + " " + path + "\n"))
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
