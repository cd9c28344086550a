package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is used when JWTConfig.TTL is unset.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidToken wraps every token that fails parsing or verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSecret is returned when signing is attempted without a key.
	ErrNoSecret = errors.New("jwt secret is empty")
)

// Claims is the payload of a session token. The user id doubles as subject.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// JWTConfig holds the HMAC key and the registered claims tokens carry.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (c *JWTConfig) ttl() time.Duration {
	if c.TTL == 0 {
		return DefaultTokenTTL
	}
	return c.TTL
}

func (c *JWTConfig) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.Audience))
	}
	return opts
}

// GenerateToken signs an HS256 session token for the user.
func GenerateToken(cfg *JWTConfig, userID, username, email string) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.ttl())),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, expiry, issuer and audience and returns
// the claims. All failures wrap ErrInvalidToken.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return cfg.Secret, nil
	}, cfg.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return &claims, nil
}
