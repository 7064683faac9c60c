package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"marketplace/internal/model"
	"marketplace/internal/service/auth"
	"marketplace/internal/session"
)

// AuthHandler authentication handler
type AuthHandler struct {
	authService auth.AuthService
}

// NewAuthHandler creates an authentication handler
func NewAuthHandler(authService auth.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register user registration. Traders start pending until an admin approves the shop.
func (h *AuthHandler) Register(c *gin.Context) {
	rc := session.From(c)

	var req auth.RegisterRequest
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		fail(c, rc, err)
		return
	}

	if user.Status == model.UserStatusPending {
		rc.Success("Registration received, your shop is awaiting approval")
	} else {
		rc.Success("Registration successful")
	}
	respond(c, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"status":   user.Status,
	})
}

// Login user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := bind(c, &req); err != nil {
		failRequest(c, err)
		return
	}

	tokenResp, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		rc := session.From(c)
		var inactive *auth.InactiveAccountError
		if errors.As(err, &inactive) {
			rc.Deliver(inactive.Notices...)
		}
		fail(c, rc, err)
		return
	}

	respond(c, tokenResp)
}

// Logout revokes the current access token
func (h *AuthHandler) Logout(c *gin.Context) {
	rc := session.From(c)
	if err := h.authService.Logout(c.Request.Context(), rc.Identity); err != nil {
		fail(c, rc, err)
		return
	}

	rc.Success("Signed out")
	respond(c, nil)
}

// RefreshToken refreshes token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		failRequest(c, err)
		return
	}

	tokenResp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		failRequest(c, err)
		return
	}

	respond(c, tokenResp)
}

// ChangePassword changes password and ends the current session
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	rc := session.From(c)

	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=6,max=40"`
	}
	if err := bind(c, &req); err != nil {
		fail(c, rc, err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), rc.UserID(), req.OldPassword, req.NewPassword); err != nil {
		fail(c, rc, err)
		return
	}

	rc.Success("Password changed, please sign in again")
	respond(c, nil)
}

// Me describes the caller
func (h *AuthHandler) Me(c *gin.Context) {
	id := session.From(c).Identity
	respond(c, gin.H{
		"user_id":  id.UserID,
		"username": id.Username,
		"role":     id.Capability.String(),
	})
}
