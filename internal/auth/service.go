// Package auth provides authentication for operators, node daemons and
// console sessions.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/secrets"
)

// Common errors returned by the auth service.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingClaims    = errors.New("missing required claims")
)

// NodeCredentialPrefix marks daemon credentials so leaked values are
// recognizable in logs and scanners.
const NodeCredentialPrefix = "ssk_"

// ConsoleTokenExpiry bounds the lifetime of a console token. Tokens are
// minted per view; a stale one only costs the viewer a re-request.
const ConsoleTokenExpiry = 10 * time.Minute

// Claims are the validated contents of an operator token.
type Claims struct {
	UserID string
	Admin  bool
	Exp    time.Time
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
}

// Service issues and validates operator tokens, mints node daemon
// credentials, and countersigns console tokens with a node's decrypted
// credential so the daemon can verify them without calling home.
type Service struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	box         *secrets.Box
	logger      *slog.Logger
}

// NewService creates an auth service. The box opens sealed node
// credentials for console-token signing and daemon request checks.
func NewService(cfg *Config, box *secrets.Box, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jwtSecret:   cfg.JWTSecret,
		tokenExpiry: cfg.TokenExpiry,
		box:         box,
		logger:      logger,
	}
}

// GenerateToken creates an operator JWT for the given user.
func (s *Service) GenerateToken(user *models.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", ErrMissingClaims
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.ID,
		"adm": user.IsAdmin,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(s.tokenExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates an operator JWT and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, ok := mapClaims["sub"].(string)
	if !ok || userID == "" {
		return nil, ErrMissingClaims
	}
	admin, _ := mapClaims["adm"].(bool)
	expFloat, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrMissingClaims
	}

	return &Claims{
		UserID: userID,
		Admin:  admin,
		Exp:    time.Unix(int64(expFloat), 0),
	}, nil
}

// GenerateNodeCredential mints a fresh daemon bearer credential. The
// raw value is shown once at issue time and stored only sealed.
func GenerateNodeCredential() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return NodeCredentialPrefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// VerifyNodeCredential checks a presented daemon credential against the
// sealed stored one in constant time.
func (s *Service) VerifyNodeCredential(presented, sealed string) (bool, error) {
	credential, err := s.box.Open(sealed)
	if err != nil {
		return false, fmt.Errorf("opening node credential: %w", err)
	}
	return SecureCompare(presented, credential), nil
}

// IssueConsoleToken mints a short-lived token for one server's console
// channel, signed with the node's decrypted daemon credential. The
// daemon validates it locally against the same shared secret.
func (s *Service) IssueConsoleToken(server *models.Server, sealedCredential, userID string) (string, error) {
	if server == nil || !server.Provisioned() {
		return "", ErrMissingClaims
	}
	credential, err := s.box.Open(sealedCredential)
	if err != nil {
		return "", fmt.Errorf("opening node credential: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":          server.ID,
		"container_id": *server.RemoteID,
		"user_id":      userID,
		"iat":          now.Unix(),
		"nbf":          now.Unix(),
		"exp":          now.Add(ConsoleTokenExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(credential))
	if err != nil {
		return "", fmt.Errorf("signing console token: %w", err)
	}
	return signed, nil
}

// ExtractBearerToken extracts the token from a Bearer authorization
// header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SecureCompare performs a constant-time comparison of two strings.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
