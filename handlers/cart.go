package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"checkout-service/internal/auth"
	"checkout-service/internal/cart"
	"checkout-service/internal/products"
	"checkout-service/pkg/ctxmanage"
	"checkout-service/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func (h *Handler) AddItem(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userId := claims.Subject

	var request struct {
		ProductID string `json:"product_id" validate:"required"`
		Quantity  int    `json:"quantity" validate:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := validator.New().Struct(request); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Product ID and quantity must be valid"})
		return
	}

	line, err := h.carts.AddItem(c.Request.Context(), userId, request.ProductID, request.Quantity)
	if err != nil {
		h.cartError(c, traceId, err)
		return
	}

	slog.Info("product added to cart", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.UserID, userId), slog.String(logkey.ProductID, request.ProductID),
		slog.Int(logkey.Quantity, line.Quantity))
	c.JSON(http.StatusOK, gin.H{"line_id": line.ID, "quantity": line.Quantity})
}

func (h *Handler) UpdateItem(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userId := claims.Subject

	lineID, err := strconv.ParseInt(c.Param("lineID"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid line id"})
		return
	}

	var request struct {
		Quantity int `json:"quantity" validate:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Error("invalid request body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := validator.New().Struct(request); err != nil {
		slog.Error("validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Quantity must be at least 1"})
		return
	}

	line, err := h.carts.UpdateItem(c.Request.Context(), userId, lineID, request.Quantity)
	if err != nil {
		h.cartError(c, traceId, err)
		return
	}

	slog.Info("cart line updated", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.UserID, userId), slog.Int64(logkey.LineID, line.ID),
		slog.Int(logkey.Quantity, line.Quantity))
	c.JSON(http.StatusOK, gin.H{"line_id": line.ID, "quantity": line.Quantity})
}

func (h *Handler) RemoveItem(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userId := claims.Subject

	lineID, err := strconv.ParseInt(c.Param("lineID"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid line id"})
		return
	}

	if err := h.carts.RemoveItem(c.Request.Context(), userId, lineID); err != nil {
		h.cartError(c, traceId, err)
		return
	}

	slog.Info("cart line removed", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.UserID, userId), slog.Int64(logkey.LineID, lineID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) GetCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	cartResponse, err := h.carts.GetCart(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("error fetching cart", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()), slog.String(logkey.UserID, claims.Subject))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cart"})
		return
	}

	c.JSON(http.StatusOK, cartResponse)
}

// cartError maps cart store failures to HTTP replies.
func (h *Handler) cartError(c *gin.Context, traceId string, err error) {
	var oos *cart.OutOfStockError
	switch {
	case errors.As(err, &oos):
		slog.Error("insufficient stock", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ProductID, oos.ProductID),
			slog.Int(logkey.Quantity, oos.Requested), slog.Int(logkey.Available, oos.Available))
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":      "Insufficient stock available",
			"product_id": oos.ProductID,
			"requested":  oos.Requested,
			"available":  oos.Available,
		})
	case errors.Is(err, cart.ErrLineNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Cart line not found"})
	case errors.Is(err, products.ErrProductNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	default:
		slog.Error("cart operation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Cart operation failed"})
	}
}
