package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"checkout-service/internal/auth"
	"checkout-service/internal/checkout"
	"checkout-service/pkg/ctxmanage"
	"checkout-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Checkout(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userId := claims.Subject

	var request struct {
		ShippingAddress string `json:"shipping_address"`
		PaymentMethod   string `json:"payment_method"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.orchestrator.Checkout(c.Request.Context(), userId, checkout.Request{
		ShippingAddress: request.ShippingAddress,
		PaymentMethod:   request.PaymentMethod,
	})
	if err != nil {
		var oos *checkout.OutOfStockError
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Cart is empty"})
		case errors.Is(err, checkout.ErrMissingShippingInfo):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Shipping address is required"})
		case errors.As(err, &oos):
			slog.Error("checkout rejected for insufficient stock", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.UserID, userId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":     "Insufficient stock available",
				"shortages": oos.Shortages,
			})
		default:
			slog.Error("checkout failed", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.UserID, userId), slog.String(logkey.State, string(result.State)),
				slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Checkout failed"})
		}
		return
	}

	slog.Info("checkout committed", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.UserID, userId), slog.String(logkey.OrderID, result.OrderID),
		slog.Int64("total", result.Total))
	c.JSON(http.StatusOK, gin.H{"order_id": result.OrderID, "total": result.Total})
}
