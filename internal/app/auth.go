package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

const (
	RoleClient = "client"
	RoleBarber = "barber"
	RoleAdmin  = "admin"
)

// Principal is the authenticated caller. Tokens are issued by the external auth provider.
type Principal struct {
	ID    string
	Name  string
	Email string
	Phone string
	Role  string
}

func (p Principal) IsStaff() bool {
	return p.Role == RoleBarber || p.Role == RoleAdmin
}

type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware accepts HMAC-signed JWTs or one of the static staff tokens.
func AuthMiddleware(jwtSecret string, staticTokens []string) gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(jwtSecret))
	tokens := make(map[string]struct{}, len(staticTokens))
	for _, t := range staticTokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens[t] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		if len(secret) > 0 {
			if p, ok := parseToken(tokenStr, secret); ok {
				c.Set(principalKey, p)
				c.Next()
				return
			}
		}

		if _, ok := tokens[tokenStr]; ok {
			c.Set(principalKey, Principal{ID: "static", Name: "staff", Role: RoleAdmin})
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

func parseToken(tokenStr string, secret []byte) (Principal, bool) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return secret, nil
	}, jwt.WithLeeway(5*time.Second))
	if err != nil || claims.Subject == "" {
		return Principal{}, false
	}
	role := claims.Role
	if role == "" {
		role = RoleClient
	}
	return Principal{ID: claims.Subject, Name: claims.Name, Email: claims.Email, Phone: claims.Phone, Role: role}, true
}

// RequireStaff rejects callers that are not barbers or admins.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principalFrom(c).IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff only"})
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}
	}
	p, _ := v.(Principal)
	return p
}
