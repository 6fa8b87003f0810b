// Package auth provides token-based authentication for the craterd API.
// Callers exchange a configured access token for a short-lived JWT and
// present it on subsequent requests.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/craterbuild/crater/src/common/errors"
)

// Role names carried in token claims
const (
	RoleAdmin     = "admin"
	RoleSubmitter = "submitter"
)

// SettingsStore persists the signing secret across restarts
type SettingsStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Config holds JWT service configuration
type Config struct {
	Issuer        string
	TokenDuration time.Duration

	// AdminToken and SubmitterToken are the configured access tokens
	// exchanged for JWTs. An empty token disables that role.
	AdminToken     string
	SubmitterToken string
}

// DefaultConfig returns default JWT configuration
func DefaultConfig() Config {
	return Config{
		Issuer:        "craterd",
		TokenDuration: 24 * time.Hour,
	}
}

// Service handles JWT token generation and validation
type Service struct {
	secretKey []byte
	config    Config
}

// generateSecretKey generates a random 256-bit secret key
func generateSecretKey() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "craterd-default-secret-key-change-me"
	}
	return hex.EncodeToString(bytes)
}

// NewService creates a JWT service with a secret key persisted in settings,
// so issued tokens survive a daemon restart
func NewService(cfg Config, settings SettingsStore) *Service {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultConfig().Issuer
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = DefaultConfig().TokenDuration
	}

	secretKey, err := settings.GetSetting("jwt_secret")
	if err != nil || secretKey == "" {
		secretKey = generateSecretKey()
		settings.SetSetting("jwt_secret", secretKey)
	}

	return &Service{
		secretKey: []byte(secretKey),
		config:    cfg,
	}
}

// Claims are the validated contents of a presented token
type Claims struct {
	Subject string
	Role    string
	TokenID string
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Exchange validates an access token and issues a JWT for the matching
// role. Comparison is constant time.
func (s *Service) Exchange(accessToken, subject string) (string, error) {
	role, ok := s.roleFor(accessToken)
	if !ok {
		return "", errors.ErrInvalidCredentials
	}
	return s.generate(subject, role)
}

func (s *Service) roleFor(accessToken string) (string, bool) {
	if s.config.AdminToken != "" &&
		subtle.ConstantTimeCompare([]byte(accessToken), []byte(s.config.AdminToken)) == 1 {
		return RoleAdmin, true
	}
	if s.config.SubmitterToken != "" &&
		subtle.ConstantTimeCompare([]byte(accessToken), []byte(s.config.SubmitterToken)) == 1 {
		return RoleSubmitter, true
	}
	return "", false
}

// generate signs a new JWT for the subject and role
func (s *Service) generate(subject, role string) (string, error) {
	now := time.Now().UTC()

	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Validate checks a presented JWT and returns its claims
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenInvalid.WithMessage("token has expired")
		}
		return nil, errors.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, errors.ErrTokenInvalid
	}

	return &Claims{
		Subject: claims.Subject,
		Role:    claims.Role,
		TokenID: claims.ID,
	}, nil
}
