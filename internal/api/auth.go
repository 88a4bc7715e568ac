package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userID"

// AuthMiddleware accepts an HS256 bearer token and stores the caller's
// user id, taken from the "userId" or "sub" claim.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server misconfigured: JWT_SECRET not set"})
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(authHeader, "Bearer "), claims,
			func(token *jwt.Token) (any, error) {
				return secret, nil
			},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		uid, err := userIDFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

func userIDFromClaims(claims jwt.MapClaims) (int64, error) {
	for _, key := range []string{"userId", "sub"} {
		v, ok := claims[key]
		if !ok {
			continue
		}
		switch id := v.(type) {
		case float64: // JSON numbers decode as float64
			if id > 0 && id == float64(int64(id)) {
				return int64(id), nil
			}
		case string:
			if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > 0 {
				return n, nil
			}
		}
		return 0, errors.New("invalid user id claim")
	}
	return 0, errors.New("user id claim missing")
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
