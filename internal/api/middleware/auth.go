package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signdesk/certsync/internal/auth"
)

// AdminAuth middleware checks for admin token and, when a TOTP secret is
// configured, a current second-factor code
func AdminAuth(adminToken, totpSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin token required",
			})
			c.Abort()
			return
		}

		if !auth.TokensEqual(token, adminToken) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin token",
			})
			c.Abort()
			return
		}

		if totpSecret != "" {
			code := c.GetHeader("X-Admin-TOTP")
			if ok, _ := auth.ValidateTOTP(totpSecret, code); code == "" || !ok {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "totp_required",
					"message": "Valid X-Admin-TOTP code required",
				})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// WebhookAuth checks the shared webhook token against its stored hash.
// An empty hash disables the check.
func WebhookAuth(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			c.Next()
			return
		}

		token := c.Query("token")
		if token == "" {
			token = c.GetHeader("X-Webhook-Token")
		}
		if token == "" || !auth.VerifyToken(token, tokenHash) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"status":  "error",
				"message": "invalid webhook token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
