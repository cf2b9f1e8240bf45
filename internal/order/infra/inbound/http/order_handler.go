package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/order/application"
	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	"github.com/damian-zhang-1027/order-service/pkg/utils"
)

// OrderCreator y OrderBrowser son lo que el handler necesita de la capa de aplicación.
type OrderCreator interface {
	CreateOrder(ctx context.Context, buyerUserID int64, items []application.ItemRequest) (*orderDomain.Order, error)
}

type OrderBrowser interface {
	ListMyOrders(ctx context.Context, buyerUserID int64, page, size int) (*application.OrderPage, error)
	GetMyOrder(ctx context.Context, buyerUserID, orderID int64) (*orderDomain.Order, error)
}

// OrderHandler encapsula los endpoints HTTP de órdenes.
type OrderHandler struct {
	creator OrderCreator
	browser OrderBrowser
	log     *zap.Logger
}

func NewOrderHandler(creator OrderCreator, browser OrderBrowser, log *zap.Logger) *OrderHandler {
	return &OrderHandler{creator: creator, browser: browser, log: log}
}

type createOrderRequest struct {
	Items []application.ItemRequest `json:"items" binding:"required"`
}

// CreateOrder endpoint POST /api/v1/orders. 202: la saga sigue en segundo plano.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	buyerID, ok := BuyerID(c)
	if !ok {
		utils.SendUnauthorized(c, "unauthenticated")
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.creator.CreateOrder(c.Request.Context(), buyerID, req.Items)
	if err != nil {
		h.sendDomainError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusAccepted, order)
}

// ListMyOrders endpoint GET /api/v1/orders?page=0&size=10
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	buyerID, ok := BuyerID(c)
	if !ok {
		utils.SendUnauthorized(c, "unauthenticated")
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		utils.SendBadRequest(c, "invalid page")
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(application.DefaultPageSize)))
	if err != nil || size <= 0 {
		utils.SendBadRequest(c, "invalid size")
		return
	}

	result, err := h.browser.ListMyOrders(c.Request.Context(), buyerID, page, size)
	if err != nil {
		h.sendDomainError(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, http.StatusOK, result.Items, gin.H{
		"page":       result.Page,
		"size":       result.Size,
		"total":      result.Total,
		"totalPages": result.TotalPages,
	})
}

// GetMyOrder endpoint GET /api/v1/orders/:orderId
func (h *OrderHandler) GetMyOrder(c *gin.Context) {
	buyerID, ok := BuyerID(c)
	if !ok {
		utils.SendUnauthorized(c, "unauthenticated")
		return
	}

	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil || orderID <= 0 {
		utils.SendBadRequest(c, "invalid order id")
		return
	}

	order, err := h.browser.GetMyOrder(c.Request.Context(), buyerID, orderID)
	if err != nil {
		h.sendDomainError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, order)
}

// sendDomainError traduce errores de dominio a códigos HTTP.
func (h *OrderHandler) sendDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orderDomain.ErrInvalidOrderRequest),
		errors.Is(err, orderDomain.ErrSelfPurchaseForbidden),
		errors.Is(err, orderDomain.ErrInsufficientStock):
		utils.SendBadRequest(c, err.Error())
	case errors.Is(err, orderDomain.ErrProductUnavailable):
		utils.SendServiceUnavailable(c, err.Error())
	case errors.Is(err, orderDomain.ErrOrderNotFound):
		utils.SendNotFound(c, "order not found")
	case errors.Is(err, orderDomain.ErrOrderAccessDenied):
		utils.SendForbidden(c, "order belongs to another buyer")
	default:
		h.log.Error("❌ Unhandled order error", zap.String("path", c.FullPath()), zap.Error(err))
		utils.SendInternalServerError(c, "internal error")
	}
}
