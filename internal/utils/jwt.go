package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var (
	// ErrInvalidToken signature, expiry or claims check failed
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenKind a refresh token was presented as an access token or the reverse
	ErrWrongTokenKind = errors.New("wrong token kind")
)

// JWTClaims JWT claims
type JWTClaims struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// JWTManager JWT manager
type JWTManager struct {
	secretKey     []byte
	issuer        string
	accessExpire  time.Duration
	refreshExpire time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey, issuer string, accessExpire, refreshExpire time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		issuer:        issuer,
		accessExpire:  accessExpire,
		refreshExpire: refreshExpire,
	}
}

// AccessExpire returns the access token lifetime
func (m *JWTManager) AccessExpire() time.Duration {
	return m.accessExpire
}

// GenerateAccessToken generates an access token
func (m *JWTManager) GenerateAccessToken(userID uint64, username, role string) (string, error) {
	return m.sign(userID, username, role, TokenAccess, m.accessExpire)
}

// GenerateRefreshToken generates a refresh token. It carries no role; the
// role is re-read from the account when the token is exchanged.
func (m *JWTManager) GenerateRefreshToken(userID uint64, username string) (string, error) {
	return m.sign(userID, username, "", TokenRefresh, m.refreshExpire)
}

func (m *JWTManager) sign(userID uint64, username, role, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// ValidateToken validates a token of the given kind
func (m *JWTManager) ValidateToken(tokenString, kind string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}
