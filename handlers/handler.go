package handlers

import (
	"context"
	"net/http"
	"os"

	"checkout-service/internal/auth"
	"checkout-service/internal/cart"
	"checkout-service/internal/checkout"
	"checkout-service/internal/orders"
	"checkout-service/internal/products"
	"checkout-service/middleware"
	"checkout-service/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// OrderEvents is the optional post-commit notification sink for order
// lifecycle changes. A nil sink disables events.
type OrderEvents interface {
	OrderCancelled(ctx context.Context, orderID string) error
}

type Handler struct {
	carts        *cart.Conf
	products     *products.Conf
	orders       *orders.Conf
	orchestrator *checkout.Orchestrator
	events       OrderEvents
}

func NewHandler(carts *cart.Conf, p *products.Conf, o *orders.Conf, orch *checkout.Orchestrator,
	events OrderEvents) *Handler {
	return &Handler{
		carts:        carts,
		products:     p,
		orders:       o,
		orchestrator: orch,
		events:       events,
	}
}

func API(endpointPrefix string, a *auth.Keys, carts *cart.Conf, p *products.Conf,
	o *orders.Conf, orch *checkout.Orchestrator, events OrderEvents) *gin.Engine {

	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	m := middleware.NewMid(a)
	h := NewHandler(carts, p, o, orch, events)

	r.Use(middleware.Logger(), gin.Recovery())
	r.GET("/ping", healthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group(endpointPrefix)
	{
		v1.GET("/products/list", h.ListProducts)
		v1.GET("/products/view/:id", h.GetProduct)

		v1.Use(m.Authentication())
		v1.POST("/cart/items", m.Authorize(h.AddItem, auth.RoleUser))
		v1.PUT("/cart/items/:lineID", m.Authorize(h.UpdateItem, auth.RoleUser))
		v1.DELETE("/cart/items/:lineID", m.Authorize(h.RemoveItem, auth.RoleUser))
		v1.GET("/cart/items", m.Authorize(h.GetCart, auth.RoleUser))

		v1.POST("/checkout", m.Authorize(h.Checkout, auth.RoleUser))
		v1.GET("/orders", m.Authorize(h.GetOrders, auth.RoleUser))
		v1.PATCH("/orders/:orderID/status", m.Authorize(h.UpdateOrderStatus, auth.RoleAdmin))
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
