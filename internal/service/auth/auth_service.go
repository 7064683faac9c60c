package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"marketplace/internal/model"
	"marketplace/internal/monitor"
	"marketplace/internal/repository"
	"marketplace/internal/session"
	"marketplace/internal/utils"
	"marketplace/pkg/log"
	apperr "marketplace/pkg/utils"
)

const (
	maxLoginAttempts = 5
	loginLockout     = 30 * time.Minute

	// bcrypt reads at most 72 bytes and the salt takes 32 of them
	minPasswordLen = 6
	maxPasswordLen = 40
)

// RegisterRequest register request. Traders apply with a shop name and wait
// for admin approval.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=40"`
	Role     string `json:"role" binding:"omitempty,oneof=customer trader"`
	ShopName string `json:"shop_name" binding:"omitempty,max=100"`
}

// LoginRequest login request
type LoginRequest struct {
	Account  string `json:"account" binding:"required"` // username or email
	Password string `json:"password" binding:"required"`
}

// TokenResponse token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Role         string `json:"role"`
}

// AuthService authentication service interface
type AuthService interface {
	// Register user
	Register(ctx context.Context, req *RegisterRequest) (*model.User, error)

	// Login user
	Login(ctx context.Context, req *LoginRequest, ip string) (*TokenResponse, error)

	// Logout revokes the caller's access token
	Logout(ctx context.Context, identity *session.Identity) error

	// Authenticate resolves an access token to the caller, re-reading the
	// account so role and status changes apply immediately
	Authenticate(ctx context.Context, token string) (*session.Identity, error)

	// Refresh token
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// Change password
	ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error
}

// InactiveAccountError is returned by Login when the credentials are valid
// but the account is pending or disabled. Notices holds the flash messages
// that were waiting for the account.
type InactiveAccountError struct {
	*apperr.AppError
	Notices []apperr.FlashMessage
}

func (e *InactiveAccountError) Unwrap() error {
	return e.AppError
}

// authService authentication service implementation
type authService struct {
	repos      *repository.Repositories
	jwtManager *utils.JWTManager
	redis      redis.Cmdable
	flash      session.FlashStore
	metrics    *monitor.MetricsCollector
}

// NewAuthService creates an authentication service. flash may be nil.
func NewAuthService(
	repos *repository.Repositories,
	jwtManager *utils.JWTManager,
	redis redis.Cmdable,
	flash session.FlashStore,
	metrics *monitor.MetricsCollector,
) AuthService {
	return &authService{
		repos:      repos,
		jwtManager: jwtManager,
		redis:      redis,
		flash:      flash,
		metrics:    metrics,
	}
}

func tokenKey(userID uint64) string {
	return fmt.Sprintf("auth:token:%d", userID)
}

func blacklistKey(tokenID string) string {
	return fmt.Sprintf("auth:blacklist:%s", tokenID)
}

func attemptsKey(userID uint64) string {
	return fmt.Sprintf("auth:login_attempts:%d", userID)
}

// Register registers a user
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := req.Role
	if role == "" {
		role = model.RoleCustomer
	}
	if role != model.RoleCustomer && role != model.RoleTrader {
		return nil, apperr.NewError(apperr.CodeInvalidParam, "role must be customer or trader")
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"username": username,
		"role":     role,
	}).Info("user register")

	// 1. Check uniqueness
	exists, err := s.repos.Users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, apperr.DatabaseError(err)
	}
	if exists {
		return nil, apperr.NewError(apperr.CodeConflict, "username already exists")
	}
	exists, err = s.repos.Users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, apperr.DatabaseError(err)
	}
	if exists {
		return nil, apperr.NewError(apperr.CodeConflict, "email already registered")
	}

	// 2. Salt and hash
	salt, err := generateSalt()
	if err != nil {
		return nil, apperr.NewErrorWithErr(apperr.CodeInternalError, "system error", err)
	}
	passwordHash, err := hashPassword(req.Password + salt)
	if err != nil {
		return nil, apperr.NewErrorWithErr(apperr.CodeInternalError, "system error", err)
	}

	// 3. Create the account, and the shop application for traders
	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Salt:         salt,
		Role:         role,
		Status:       model.UserStatusActive,
	}
	if role == model.RoleTrader {
		user.Status = model.UserStatusPending
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		if role != model.RoleTrader {
			return nil
		}
		shopName := strings.TrimSpace(req.ShopName)
		if shopName == "" {
			shopName = username + "'s shop"
		}
		return tx.Shops.Create(ctx, &model.Shop{TraderID: user.ID, Name: shopName})
	})
	if err != nil {
		return nil, apperr.DatabaseError(err)
	}

	log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id": user.ID,
		"status":  user.Status,
	}).Info("user register success")
	return user, nil
}

// Login logs in a user
func (s *authService) Login(ctx context.Context, req *LoginRequest, ip string) (*TokenResponse, error) {
	logger := log.WithContext(ctx).WithFields(map[string]interface{}{
		"account": req.Account,
		"ip":      ip,
	})

	// 1. Find user by username or email
	user, err := s.findUserByAccount(ctx, strings.TrimSpace(req.Account))
	if err != nil {
		s.metrics.RecordUserLogin("failed")
		logger.Warn("login for unknown account")
		return nil, apperr.NewError(apperr.CodeUnauthorized, "username or password incorrect")
	}

	// 2. Check login attempts
	if err := s.checkLoginAttempts(ctx, user.ID); err != nil {
		s.metrics.RecordUserLogin("locked")
		return nil, err
	}

	// 3. Verify password
	if !verifyPassword(req.Password+user.Salt, user.PasswordHash) {
		s.recordLoginFailure(ctx, user.ID)
		s.metrics.RecordUserLogin("failed")
		logger.Warn("login password mismatch")
		return nil, apperr.NewError(apperr.CodeUnauthorized, "username or password incorrect")
	}

	// 4. Check account status
	switch user.Status {
	case model.UserStatusActive:
	case model.UserStatusPending:
		s.metrics.RecordUserLogin("pending")
		return nil, s.inactive(ctx, user.ID, apperr.NewError(apperr.CodeAccountDisabled, "account is awaiting approval"))
	default:
		s.metrics.RecordUserLogin("disabled")
		return nil, s.inactive(ctx, user.ID, apperr.ErrAccountDisabled)
	}

	// 5. Issue tokens
	resp, err := s.issue(ctx, user, "")
	if err != nil {
		return nil, err
	}

	// 6. Update last login info
	if err := s.repos.Users.UpdateLastLogin(ctx, user.ID, ip); err != nil {
		logger.WithField("error", err.Error()).Warn("failed to update last login")
	}

	// 7. Clear login failures
	s.redis.Del(ctx, attemptsKey(user.ID))

	s.metrics.RecordUserLogin("success")
	logger.WithField("user_id", user.ID).Info("user login success")
	return resp, nil
}

// inactive hands the account's queued notices to the rejected login, since
// an inactive account never passes the auth middleware that drains them
func (s *authService) inactive(ctx context.Context, userID uint64, appErr *apperr.AppError) error {
	err := &InactiveAccountError{AppError: appErr}
	if s.flash == nil {
		return err
	}
	notices, drainErr := s.flash.Drain(ctx, userID)
	if drainErr != nil {
		log.WithContext(ctx).WithFields(map[string]interface{}{
			"user_id": userID,
			"error":   drainErr.Error(),
		}).Warn("failed to drain flash messages")
	}
	err.Notices = notices
	return err
}

// Logout logs out a user
func (s *authService) Logout(ctx context.Context, identity *session.Identity) error {
	// 1. Forget the active token
	if err := s.redis.Del(ctx, tokenKey(identity.UserID)).Err(); err != nil {
		return apperr.NewErrorWithErr(apperr.CodeRedisError, "logout failed", err)
	}

	// 2. Blacklist it until it would have expired anyway
	ttl := time.Until(identity.ExpiresAt)
	if identity.TokenID != "" && ttl > 0 {
		if err := s.redis.Set(ctx, blacklistKey(identity.TokenID), "1", ttl).Err(); err != nil {
			return apperr.NewErrorWithErr(apperr.CodeRedisError, "logout failed", err)
		}
	}

	log.WithContext(ctx).WithField("user_id", identity.UserID).Info("user logout")
	return nil
}

// Authenticate validates an access token
func (s *authService) Authenticate(ctx context.Context, token string) (*session.Identity, error) {
	// 1. Validate signature, expiry and kind
	claims, err := s.jwtManager.ValidateToken(token, utils.TokenAccess)
	if err != nil {
		return nil, apperr.NewError(apperr.CodeUnauthorized, "token invalid")
	}

	// 2. Check the blacklist and the active token
	revoked, err := s.redis.Exists(ctx, blacklistKey(claims.ID)).Result()
	if err != nil {
		return nil, apperr.NewErrorWithErr(apperr.CodeRedisError, "session store unavailable", err)
	}
	if revoked > 0 {
		return nil, apperr.NewError(apperr.CodeUnauthorized, "token revoked")
	}
	active, err := s.redis.Get(ctx, tokenKey(claims.UserID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, apperr.NewErrorWithErr(apperr.CodeRedisError, "session store unavailable", err)
	}
	if active != claims.ID {
		return nil, apperr.NewError(apperr.CodeUnauthorized, "session expired")
	}

	// 3. Re-read the account
	user, err := s.repos.Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NewError(apperr.CodeUnauthorized, "account no longer exists")
	}
	if err != nil {
		return nil, apperr.DatabaseError(err)
	}
	if !user.IsActive() {
		return nil, apperr.ErrAccountDisabled
	}
	capability, ok := session.CapabilityFromRole(user.Role)
	if !ok {
		return nil, apperr.ErrForbidden
	}

	identity := &session.Identity{
		UserID:     user.ID,
		Username:   user.Username,
		Capability: capability,
		TokenID:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// RefreshToken refreshes a token
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	// 1. Validate refresh token
	claims, err := s.jwtManager.ValidateToken(refreshToken, utils.TokenRefresh)
	if err != nil {
		return nil, apperr.NewError(apperr.CodeUnauthorized, "refresh token invalid")
	}

	// 2. The role is taken from the account, not the old token
	user, err := s.repos.Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NewError(apperr.CodeUnauthorized, "account no longer exists")
	}
	if err != nil {
		return nil, apperr.DatabaseError(err)
	}
	if !user.IsActive() {
		return nil, apperr.ErrAccountDisabled
	}

	return s.issue(ctx, user, refreshToken)
}

// ChangePassword changes user password and ends the current session
func (s *authService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	// 1. Get user
	user, err := s.repos.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrUserNotFound
	}
	if err != nil {
		return apperr.DatabaseError(err)
	}

	// 2. Verify old password
	if !verifyPassword(oldPassword+user.Salt, user.PasswordHash) {
		return apperr.NewError(apperr.CodeInvalidParam, "old password incorrect")
	}

	// 3. New salt and hash
	salt, err := generateSalt()
	if err != nil {
		return apperr.NewErrorWithErr(apperr.CodeInternalError, "system error", err)
	}
	hash, err := hashPassword(newPassword + salt)
	if err != nil {
		return apperr.NewErrorWithErr(apperr.CodeInternalError, "system error", err)
	}

	if err := s.repos.Users.UpdatePassword(ctx, userID, hash, salt); err != nil {
		return apperr.DatabaseError(err)
	}
	s.redis.Del(ctx, tokenKey(userID))

	log.WithContext(ctx).WithField("user_id", userID).Info("user changed password")
	return nil
}

// issue signs a new access token, and a refresh token unless one is being
// reused, and records the access token as the user's active session
func (s *authService) issue(ctx context.Context, user *model.User, refreshToken string) (*TokenResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, apperr.NewErrorWithErr(apperr.CodeInternalError, "generate token failed", err)
	}
	if refreshToken == "" {
		if refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username); err != nil {
			return nil, apperr.NewErrorWithErr(apperr.CodeInternalError, "generate token failed", err)
		}
	}

	claims, err := s.jwtManager.ValidateToken(accessToken, utils.TokenAccess)
	if err != nil {
		return nil, apperr.NewErrorWithErr(apperr.CodeInternalError, "generate token failed", err)
	}

	ttl := s.jwtManager.AccessExpire()
	if err := s.redis.Set(ctx, tokenKey(user.ID), claims.ID, ttl).Err(); err != nil {
		return nil, apperr.NewErrorWithErr(apperr.CodeRedisError, "session store unavailable", err)
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(ttl.Seconds()),
		TokenType:    "Bearer",
		Role:         user.Role,
	}, nil
}

// findUserByAccount finds a user by username or email
func (s *authService) findUserByAccount(ctx context.Context, account string) (*model.User, error) {
	if strings.Contains(account, "@") {
		return s.repos.Users.GetByEmail(ctx, strings.ToLower(account))
	}
	return s.repos.Users.GetByUsername(ctx, account)
}

// checkLoginAttempts checks login attempts
func (s *authService) checkLoginAttempts(ctx context.Context, userID uint64) error {
	attempts, err := s.redis.Get(ctx, attemptsKey(userID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.WithContext(ctx).WithField("error", err.Error()).Warn("login attempt counter unavailable")
		return nil
	}
	if attempts >= maxLoginAttempts {
		return apperr.NewError(apperr.CodeRateLimit, "login failed too many times, please try again in 30 minutes")
	}
	return nil
}

// recordLoginFailure records a login failure
func (s *authService) recordLoginFailure(ctx context.Context, userID uint64) {
	key := attemptsKey(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, loginLockout)
		return nil
	})
	if err != nil {
		log.WithContext(ctx).WithField("error", err.Error()).Warn("failed to record login failure")
	}
}

func checkPassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return apperr.NewError(apperr.CodeInvalidParam,
			fmt.Sprintf("password must be %d to %d characters", minPasswordLen, maxPasswordLen))
	}
	return nil
}

// generateSalt generates a salt
func generateSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
