package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"blockplay-backend/internal/store"
)

// WalletClaims binds a token to one wallet address. The fronting gateway is
// trusted to have verified ownership of the address before a token is issued.
type WalletClaims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

func (s *TokenService) Issue(wallet string) (string, error) {
	now := time.Now()
	claims := WalletClaims{
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) Validate(tokenString string) (*WalletClaims, error) {
	claims := &WalletClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Wallet == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func AuthMiddleware(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// WebSocket clients cannot set headers; allow a query token.
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := tokens.Validate(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("wallet", claims.Wallet)
		c.Next()
	}
}

func RateLimitMiddleware(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("wallet")
		if wallet == "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var limit int64
		var window time.Duration

		switch {
		case strings.Contains(path, "/join") || strings.HasSuffix(path, "/mines") ||
			strings.HasSuffix(path, "/videopoker"):
			limit = 30
			window = time.Minute
		case strings.Contains(path, "/cashout") || strings.Contains(path, "/draw"):
			limit = 60
			window = time.Minute
		case strings.Contains(path, "/reveal"):
			limit = 120
			window = time.Minute
		default:
			c.Next()
			return
		}

		allowed, err := st.RateLimit(c.Request.Context(), wallet, path, limit, window)
		if err != nil || !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
