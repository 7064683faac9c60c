package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"marketplace/internal/repository"
	"marketplace/internal/service/promo"
	"marketplace/internal/session"
	"marketplace/pkg/utils"
)

// PromoHandler promo preview for customers and code management for admins
type PromoHandler struct {
	promoService promo.PromoService
	actions      actionTable
}

// NewPromoHandler creates a promo handler
func NewPromoHandler(promoService promo.PromoService) *PromoHandler {
	h := &PromoHandler{promoService: promoService}
	h.actions = actionTable{
		"create_promo": h.create,
		"toggle_promo": h.toggle,
		"delete_promo": h.delete,
	}
	return h
}

// Validate previews a code against a subtotal without reserving it
func (h *PromoHandler) Validate(c *gin.Context) {
	rc := session.From(c)

	var req struct {
		Code     string          `json:"code" binding:"required"`
		Subtotal decimal.Decimal `json:"subtotal" binding:"nonnegative"`
	}
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}

	result, err := h.promoService.Validate(c.Request.Context(), rc.UserID(), req.Code, req.Subtotal, time.Now().UTC())
	if err != nil {
		fail(c, rc, err)
		return
	}
	respond(c, result)
}

// List lists promo codes, filtered by active flag and code search
func (h *PromoHandler) List(c *gin.Context) {
	p, err := pagination(c)
	if err != nil {
		failRequest(c, err)
		return
	}
	filter := repository.PromoFilter{Search: c.Query("q"), Pagination: p}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			failRequest(c, utils.NewError(utils.CodeInvalidParam, "active must be true or false"))
			return
		}
		filter.Active = &active
	}

	promos, total, err := h.promoService.List(c.Request.Context(), filter)
	if err != nil {
		failRequest(c, err)
		return
	}
	page(c, promos, total, p)
}

// Get shows one promo code
func (h *PromoHandler) Get(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		failRequest(c, err)
		return
	}
	code, err := h.promoService.Get(c.Request.Context(), id)
	if err != nil {
		failRequest(c, err)
		return
	}
	respond(c, code)
}

// Action dispatches create_promo, toggle_promo and delete_promo
func (h *PromoHandler) Action(c *gin.Context) {
	h.actions.dispatch(c)
}

func (h *PromoHandler) create(c *gin.Context, _ *session.RequestContext) (interface{}, string, error) {
	var req promo.CreateRequest
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}
	code, err := h.promoService.Create(c.Request.Context(), &req)
	if err != nil {
		return nil, "", err
	}
	return code, "Promo code " + code.Code + " created", nil
}

func (h *PromoHandler) toggle(c *gin.Context, _ *session.RequestContext) (interface{}, string, error) {
	var req struct {
		PromoID uint64 `json:"promo_id" binding:"required"`
		Active  *bool  `json:"active" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}
	if err := h.promoService.SetActive(c.Request.Context(), req.PromoID, *req.Active); err != nil {
		return nil, "", err
	}
	if *req.Active {
		return nil, "Promo code activated", nil
	}
	return nil, "Promo code deactivated", nil
}

func (h *PromoHandler) delete(c *gin.Context, _ *session.RequestContext) (interface{}, string, error) {
	var req struct {
		PromoID uint64 `json:"promo_id" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}
	if err := h.promoService.Delete(c.Request.Context(), req.PromoID); err != nil {
		return nil, "", err
	}
	return nil, "Promo code deleted", nil
}
