package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/repository"
	"marketplace/internal/service/order"
	"marketplace/internal/session"
	"marketplace/pkg/utils"
)

// OrderHandler checkout, payment return and order management
type OrderHandler struct {
	orderService order.OrderService
	actions      actionTable
}

// NewOrderHandler creates an order handler
func NewOrderHandler(orderService order.OrderService) *OrderHandler {
	h := &OrderHandler{orderService: orderService}
	h.actions = actionTable{
		"refund_order":  h.refund,
		"update_status": h.updateStatus,
	}
	return h
}

func orderFilter(c *gin.Context) (repository.OrderFilter, error) {
	p, err := pagination(c)
	if err != nil {
		return repository.OrderFilter{}, err
	}
	from, to, err := utils.ParseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		return repository.OrderFilter{}, err
	}
	return repository.OrderFilter{
		OrderStatus:   c.Query("status"),
		PaymentStatus: c.Query("payment_status"),
		OrderNo:       c.Query("q"),
		From:          from,
		To:            to,
		Pagination:    p,
	}, nil
}

// Checkout creates an order awaiting payment
func (h *OrderHandler) Checkout(c *gin.Context) {
	rc := session.From(c)

	var req order.CreateOrderRequest
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}
	if len(req.Items) == 0 && !req.FromCart {
		fail(c, rc, utils.NewError(utils.CodeInvalidParam, "order has no items"))
		return
	}

	o, err := h.orderService.CreateOrder(c.Request.Context(), rc.UserID(), &req)
	if err != nil {
		fail(c, rc, err)
		return
	}
	rc.Success("Order " + o.OrderNo + " placed, awaiting payment")
	respond(c, o)
}

// ListMine lists the customer's orders
func (h *OrderHandler) ListMine(c *gin.Context) {
	rc := session.From(c)
	filter, err := orderFilter(c)
	if err != nil {
		fail(c, rc, err)
		return
	}

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), rc.UserID(), filter)
	if err != nil {
		fail(c, rc, err)
		return
	}
	page(c, orders, total, filter.Pagination)
}

// ListShop lists orders containing the trader's products
func (h *OrderHandler) ListShop(c *gin.Context) {
	rc := session.From(c)
	filter, err := orderFilter(c)
	if err != nil {
		fail(c, rc, err)
		return
	}

	orders, total, err := h.orderService.ListShopOrders(c.Request.Context(), rc.UserID(), filter)
	if err != nil {
		fail(c, rc, err)
		return
	}
	page(c, orders, total, filter.Pagination)
}

// ListAll lists every order
func (h *OrderHandler) ListAll(c *gin.Context) {
	rc := session.From(c)
	filter, err := orderFilter(c)
	if err != nil {
		fail(c, rc, err)
		return
	}
	if filter.UserID, err = queryID(c, "user_id"); err != nil {
		fail(c, rc, err)
		return
	}
	if filter.ShopID, err = queryID(c, "shop_id"); err != nil {
		fail(c, rc, err)
		return
	}

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), filter)
	if err != nil {
		fail(c, rc, err)
		return
	}
	page(c, orders, total, filter.Pagination)
}

// GetOrder shows an order visible to the caller
func (h *OrderHandler) GetOrder(c *gin.Context) {
	rc := session.From(c)
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, rc, err)
		return
	}

	o, err := h.orderService.GetOrder(c.Request.Context(), rc.Identity, id)
	if err != nil {
		fail(c, rc, err)
		return
	}
	respond(c, o)
}

// PaymentReturn completes payment when the customer comes back from the gateway
func (h *OrderHandler) PaymentReturn(c *gin.Context) {
	rc := session.From(c)
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, rc, err)
		return
	}

	var req struct {
		TransactionRef string `json:"transaction_ref" binding:"required,max=64"`
	}
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}

	if _, err := h.orderService.GetOrder(c.Request.Context(), rc.Identity, id); err != nil {
		fail(c, rc, err)
		return
	}
	o, err := h.orderService.CompletePayment(c.Request.Context(), id, req.TransactionRef)
	if err != nil {
		fail(c, rc, err)
		return
	}
	rc.Success("Payment received, thank you")
	respond(c, o)
}

// PaymentCancel abandons an order awaiting payment and returns its items to the cart
func (h *OrderHandler) PaymentCancel(c *gin.Context) {
	rc := session.From(c)
	id, err := paramID(c, "id")
	if err != nil {
		fail(c, rc, err)
		return
	}

	if _, err := h.orderService.GetOrder(c.Request.Context(), rc.Identity, id); err != nil {
		fail(c, rc, err)
		return
	}
	if err := h.orderService.CancelPendingPayment(c.Request.Context(), id); err != nil {
		fail(c, rc, err)
		return
	}
	rc.Success("Payment cancelled, your items are back in the cart")
	respond(c, nil)
}

// Action dispatches refund_order (admin) and update_status (admin, trader)
func (h *OrderHandler) Action(c *gin.Context) {
	h.actions.dispatch(c)
}

func (h *OrderHandler) refund(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	if !rc.Identity.Is(session.CapabilityAdmin) {
		return nil, "", utils.ErrForbidden
	}

	var req struct {
		OrderID uint64 `json:"order_id" binding:"required"`
		Reason  string `json:"reason" binding:"required,max=500"`
	}
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	o, err := h.orderService.AdminRefund(c.Request.Context(), req.OrderID, req.Reason)
	if err != nil {
		return nil, "", err
	}
	return o, "Order " + o.OrderNo + " refunded", nil
}

func (h *OrderHandler) updateStatus(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req struct {
		OrderID uint64 `json:"order_id" binding:"required"`
		Status  string `json:"status" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	o, err := h.orderService.UpdateStatus(c.Request.Context(), rc.Identity, req.OrderID, req.Status)
	if err != nil {
		return nil, "", err
	}
	return o, "Order " + o.OrderNo + " is now " + o.OrderStatus, nil
}
