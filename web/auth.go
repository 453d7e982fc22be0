package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gogreen/identity"
)

const (
	identityKey = "identity"
	userIDKey   = "user_id"
)

// Claims are the token claims issued by the auth provider.
type Claims struct {
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token, used by tests and local tooling.
func SignToken(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware validates the bearer token and stores the caller's identity
// and derived user id. allowQuery also accepts ?token= for websocket clients
// that cannot set headers.
func AuthMiddleware(secret string, deriver identity.Deriver, allowQuery bool) gin.HandlerFunc {
	secretBytes := []byte(secret)
	return func(c *gin.Context) {
		token := bearerFromHeader(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
			return secretBytes, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := parsed.Claims.(*Claims)
		if !ok || !parsed.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		id := identity.Identity{
			ExternalID:  claims.Subject,
			Username:    claims.Username,
			DisplayName: claims.Name,
			AvatarURL:   claims.Picture,
		}
		c.Set(identityKey, id)
		c.Set(userIDKey, deriver.Derive(id.ExternalID))
		c.Next()
	}
}

// Caller returns the authenticated identity and its user id.
func Caller(c *gin.Context) (identity.Identity, uuid.UUID) {
	id, _ := c.Get(identityKey)
	userID, _ := c.Get(userIDKey)
	ident, _ := id.(identity.Identity)
	uid, _ := userID.(uuid.UUID)
	return ident, uid
}
