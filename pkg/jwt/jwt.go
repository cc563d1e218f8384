package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const tokenTypeAccess = "access"

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Type     string `json:"type"`
}

// Config holds token settings.
type Config struct {
	Issuer         string        `mapstructure:"issuer"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
}

// Manager signs and validates RS256 access tokens.
type Manager struct {
	privateKey *rsa.PrivateKey // nil when only validating
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	issuer     string
}

// NewManager builds a manager from PEM key files. With no key paths an
// ephemeral key pair is generated, which only suits development.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{accessTTL: cfg.AccessTTL, issuer: cfg.Issuer}
	if m.accessTTL <= 0 {
		m.accessTTL = 15 * time.Minute
	}

	if cfg.PrivateKeyPath == "" && cfg.PublicKeyPath == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		m.privateKey, m.publicKey = key, &key.PublicKey
		return m, nil
	}

	if cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		m.privateKey, m.publicKey = key, &key.PublicKey
	}

	if cfg.PublicKeyPath != "" {
		data, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		m.publicKey = key
	}

	return m, nil
}

// NewManagerWithKey wraps an existing key pair.
func NewManagerWithKey(key *rsa.PrivateKey, accessTTL time.Duration, issuer string) *Manager {
	return &Manager{privateKey: key, publicKey: &key.PublicKey, accessTTL: accessTTL, issuer: issuer}
}

// GenerateAccessToken signs an access token for the given identity.
func (m *Manager) GenerateAccessToken(userID, email, username string) (string, int64, error) {
	if m.privateKey == nil {
		return "", 0, errors.New("jwt manager has no signing key")
	}

	now := time.Now()
	exp := now.Add(m.accessTTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:   userID,
		Email:    email,
		Username: username,
		Type:     tokenTypeAccess,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
	if err != nil {
		return "", 0, err
	}
	return token, exp.Unix(), nil
}

// ValidateToken validates an access token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.publicKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != tokenTypeAccess || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
