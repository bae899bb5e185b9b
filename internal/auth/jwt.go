package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nfrund/chatterbox/internal/domain"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	SecretKey     string
	TokenDuration time.Duration
	Issuer        string
}

// DefaultJWTConfig returns the configuration used by the server.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		SecretKey:     secret,
		TokenDuration: 24 * time.Hour,
		Issuer:        "chatterbox",
	}
}

// Claims identifies the user in the registered subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC signed tokens.
type JWTVerifier struct {
	config JWTConfig
}

// NewJWTVerifier creates a JWTVerifier.
func NewJWTVerifier(config JWTConfig) *JWTVerifier {
	return &JWTVerifier{config: config}
}

// Issue signs a token for userID. Token issuance belongs to an external
// identity provider; this exists for tooling and tests.
func (v *JWTVerifier) Issue(userID domain.UserID) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.config.Issuer,
			Subject:   string(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.config.SecretKey))
}

// ValidateToken validates the token and returns the user it names.
func (v *JWTVerifier) ValidateToken(tokenString string) (domain.UserID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(v.config.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return domain.UserID(claims.Subject), nil
}

func (v *JWTVerifier) Verify(r *http.Request) (domain.UserID, error) {
	tok := BearerToken(r)
	if tok == "" {
		return "", ErrMissingCredentials
	}
	return v.ValidateToken(tok)
}

func (v *JWTVerifier) Required() bool { return true }
