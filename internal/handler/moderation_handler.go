package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/internal/service/moderation"
	"marketplace/internal/session"
	"marketplace/pkg/utils"
)

// ModerationHandler admin moderation console
type ModerationHandler struct {
	moderationService moderation.ModerationService
	actions           actionTable
}

// NewModerationHandler creates a moderation handler
func NewModerationHandler(moderationService moderation.ModerationService) *ModerationHandler {
	h := &ModerationHandler{moderationService: moderationService}
	h.actions = actionTable{
		"disable_product":  h.disableProduct,
		"record_violation": h.recordViolation,
		"resolve":          h.resolve,
		"dismiss":          h.dismiss,
		"reset_violations": h.resetViolations,
		"enable_account":   h.enableAccount,
		"approve_trader":   h.approveTrader,
		"reject_trader":    h.rejectTrader,
	}
	return h
}

// ListViolations lists violations by trader, status, severity and date
func (h *ModerationHandler) ListViolations(c *gin.Context) {
	p, err := pagination(c)
	if err != nil {
		failRequest(c, err)
		return
	}
	from, to, err := utils.ParseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		failRequest(c, err)
		return
	}
	traderID, err := queryID(c, "trader_id")
	if err != nil {
		failRequest(c, err)
		return
	}

	filter := repository.ViolationFilter{
		ReportedUserID: traderID,
		Status:         c.Query("status"),
		Severity:       c.Query("severity"),
		From:           from,
		To:             to,
		Pagination:     p,
	}
	violations, total, err := h.moderationService.ListViolations(c.Request.Context(), filter)
	if err != nil {
		failRequest(c, err)
		return
	}
	page(c, violations, total, p)
}

// GetViolation shows one violation
func (h *ModerationHandler) GetViolation(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		failRequest(c, err)
		return
	}
	v, err := h.moderationService.GetViolation(c.Request.Context(), id)
	if err != nil {
		failRequest(c, err)
		return
	}
	respond(c, v)
}

// ListUsers lists accounts by role, status and search text
func (h *ModerationHandler) ListUsers(c *gin.Context) {
	p, err := pagination(c)
	if err != nil {
		failRequest(c, err)
		return
	}
	filter := repository.UserFilter{
		Role:       c.Query("role"),
		Status:     c.Query("status"),
		Search:     c.Query("q"),
		Pagination: p,
	}
	users, total, err := h.moderationService.ListUsers(c.Request.Context(), filter)
	if err != nil {
		failRequest(c, err)
		return
	}
	page(c, users, total, p)
}

// Action dispatches moderation actions
func (h *ModerationHandler) Action(c *gin.Context) {
	h.actions.dispatch(c)
}

type userAction struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

type violationAction struct {
	ViolationID uint64 `json:"violation_id" binding:"required"`
	Notes       string `json:"notes" binding:"max=2000"`
}

func (h *ModerationHandler) disableProduct(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req moderation.DisableRequest
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	result, err := h.moderationService.DisableProductForViolation(c.Request.Context(), rc.Identity, &req)
	if err != nil {
		return nil, "", err
	}
	msg := fmt.Sprintf("Product disabled, trader now has %d violation(s)", result.ViolationCount)
	if result.Escalated {
		msg = fmt.Sprintf("Product disabled, trader reached %d violations and the account was disabled", result.ViolationCount)
	}
	return result, msg, nil
}

func (h *ModerationHandler) recordViolation(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req moderation.RecordRequest
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	v, err := h.moderationService.RecordViolation(c.Request.Context(), rc.Identity, &req)
	if err != nil {
		return nil, "", err
	}
	return v, "Violation recorded", nil
}

func (h *ModerationHandler) resolve(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req struct {
		violationAction
		ActionTaken string `json:"action_taken" binding:"required,oneof=warning account_disabled dismissed"`
	}
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	v, err := h.moderationService.ResolveViolation(c.Request.Context(), rc.Identity, req.ViolationID, req.ActionTaken, req.Notes)
	if err != nil {
		return nil, "", err
	}
	if req.ActionTaken == model.ActionAccountDisabled {
		return v, "Violation resolved and account disabled", nil
	}
	return v, "Violation resolved", nil
}

func (h *ModerationHandler) dismiss(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req violationAction
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}

	v, err := h.moderationService.DismissViolation(c.Request.Context(), rc.Identity, req.ViolationID, req.Notes)
	if err != nil {
		return nil, "", err
	}
	return v, "Violation dismissed", nil
}

func (h *ModerationHandler) resetViolations(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req userAction
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}
	if err := h.moderationService.ResetViolations(c.Request.Context(), rc.Identity, req.UserID); err != nil {
		return nil, "", err
	}
	return nil, "Violation count reset", nil
}

func (h *ModerationHandler) enableAccount(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req userAction
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}
	if err := h.moderationService.EnableAccount(c.Request.Context(), rc.Identity, req.UserID); err != nil {
		return nil, "", err
	}
	return nil, "Account enabled", nil
}

func (h *ModerationHandler) approveTrader(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req userAction
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}
	shop, err := h.moderationService.ApproveTrader(c.Request.Context(), rc.Identity, req.UserID)
	if err != nil {
		return nil, "", err
	}
	return shop, "Trader approved", nil
}

func (h *ModerationHandler) rejectTrader(c *gin.Context, rc *session.RequestContext) (interface{}, string, error) {
	var req userAction
	if err := bind(c, &req); err != nil {
		return nil, "", err
	}
	if err := h.moderationService.RejectTrader(c.Request.Context(), rc.Identity, req.UserID); err != nil {
		return nil, "", err
	}
	return nil, "Trader application rejected", nil
}
