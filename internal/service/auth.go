package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrAdminDisabled      = errors.New("admin access is not configured")
)

// AuthConfig configures the single admin account that may trigger
// ingestion over HTTP.
type AuthConfig struct {
	Username string
	// PasswordHash is a bcrypt hash. When empty, Password is hashed at
	// startup; when both are empty admin access is disabled.
	PasswordHash string
	Password     string
	JWTSecret    string
	TokenTTL     time.Duration
}

// AdminClaims are the claims carried by an admin token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type AuthService struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
	ttl          time.Duration
}

func NewAuthService(cfg AuthConfig) (*AuthService, error) {
	s := &AuthService{
		username:  cfg.Username,
		jwtSecret: []byte(cfg.JWTSecret),
		ttl:       cfg.TokenTTL,
	}
	if s.username == "" {
		s.username = "admin"
	}
	if s.ttl <= 0 {
		s.ttl = time.Hour
	}

	switch {
	case cfg.PasswordHash != "":
		s.passwordHash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash admin password: %w", err)
		}
		s.passwordHash = hash
	}
	if len(s.passwordHash) > 0 && len(s.jwtSecret) == 0 {
		return nil, errors.New("JWT secret is required when admin access is enabled")
	}
	return s, nil
}

// Enabled reports whether an admin password is configured.
func (s *AuthService) Enabled() bool {
	return len(s.passwordHash) > 0
}

// Login checks the admin credentials and returns a signed token with its
// expiry.
func (s *AuthService) Login(username, password string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrAdminDisabled
	}
	if username != s.username {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.generateToken(time.Now())
}

func (s *AuthService) generateToken(now time.Time) (string, time.Time, error) {
	expires := now.Add(s.ttl)
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: "admin",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken parses and verifies an admin token.
func (s *AuthService) ValidateToken(tokenString string) (*AdminClaims, error) {
	if !s.Enabled() {
		return nil, ErrAdminDisabled
	}
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Role != "admin" || claims.Subject != s.username {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
