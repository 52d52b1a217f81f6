package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// BearerAuth verifies an inbound request carries a bearer token signed
// with secret. It only checks the signature and expiry — there is no
// user/session model behind it, since identity/SSO is handled by an
// external collaborator service (spec.md §1's Non-goals). An empty
// secret disables the check entirely, matching AuthConfig.JWTSecret's
// "" default for local/dev deployments.
func BearerAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(c, newAPIError("UNAUTHORIZED", "missing bearer token", http.StatusUnauthorized))
			c.Abort()
			return
		}
		_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil {
			respondError(c, newAPIError("UNAUTHORIZED", "invalid bearer token: "+err.Error(), http.StatusUnauthorized))
			c.Abort()
			return
		}
		c.Next()
	}
}
