package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextKeyCreatorID is the key for the authenticated creator ID in gin context
	ContextKeyCreatorID = "creator_id"
	// ContextKeyClaims is the key for JWT claims in gin context
	ContextKeyClaims = "claims"
)

// Claims are the JWT claims carried by authenticated order submitters.
// CreatorID matches the creator_id stamped on orders; Address is the
// submitter's Bitcoin address used for settlement.
type Claims struct {
	CreatorID string `json:"creator_id"`
	Address   string `json:"address,omitempty"`
	jwt.RegisteredClaims
}

// AuthConfig holds configuration for JWT authentication.
type AuthConfig struct {
	SecretKey      string
	ExpiryDuration time.Duration
	Issuer         string
	Audience       string
	TokenHeader    string
	TokenPrefix    string
}

// DefaultAuthConfig returns default authentication configuration.
func DefaultAuthConfig(secret string) *AuthConfig {
	return &AuthConfig{
		SecretKey:      secret,
		ExpiryDuration: 24 * time.Hour,
		Issuer:         "darkswap",
		Audience:       "darkswap-api",
		TokenHeader:    "Authorization",
		TokenPrefix:    "Bearer ",
	}
}

// AuthMiddleware provides JWT authentication for Gin.
type AuthMiddleware struct {
	config *AuthConfig
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{config: config}
}

// GinMiddleware returns the Gin middleware handler function.
func (a *AuthMiddleware) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(a.config.TokenHeader)
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing authorization header",
				"code":    "AUTH_MISSING_HEADER",
			})
			return
		}

		if !strings.HasPrefix(authHeader, a.config.TokenPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid authorization header format",
				"code":    "AUTH_INVALID_FORMAT",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, a.config.TokenPrefix)

		claims, err := a.validateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
				"code":    "AUTH_INVALID_TOKEN",
			})
			return
		}

		c.Set(ContextKeyCreatorID, claims.CreatorID)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// validateToken parses and validates a JWT token.
func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(a.config.SecretKey), nil
	})

	if err != nil {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if a.config.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != a.config.Issuer {
			return nil, errors.New("invalid token issuer")
		}
	}

	if a.config.Audience != "" {
		audience, err := claims.GetAudience()
		if err != nil || !containsAudience(audience, a.config.Audience) {
			return nil, errors.New("invalid token audience")
		}
	}

	return claims, nil
}

// containsAudience checks if the audience slice contains the expected audience.
func containsAudience(audiences []string, expected string) bool {
	for _, aud := range audiences {
		if aud == expected {
			return true
		}
	}
	return false
}

// GenerateToken generates a new JWT token for an order submitter.
func (a *AuthMiddleware) GenerateToken(creatorID, address string) (string, error) {
	now := time.Now()
	claims := &Claims{
		CreatorID: creatorID,
		Address:   address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.ExpiryDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.config.Issuer,
			Audience:  jwt.ClaimStrings{a.config.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.config.SecretKey))
}

// GetCreatorID extracts the authenticated creator ID from gin context.
func GetCreatorID(c *gin.Context) (string, bool) {
	creatorID, exists := c.Get(ContextKeyCreatorID)
	if !exists {
		return "", false
	}
	id, ok := creatorID.(string)
	return id, ok
}

// GetClaims extracts the JWT claims from gin context.
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil, false
	}
	jwtClaims, ok := claims.(*Claims)
	return jwtClaims, ok
}
