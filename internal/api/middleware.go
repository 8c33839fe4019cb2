package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// RoleAdmin is the role claim that grants access to /admin routes
const RoleAdmin = "ADMIN"

const (
	ctxUserID    = "auth.user_id"
	ctxUserEmail = "auth.email"
	ctxUserRole  = "auth.role"
)

// Claims is the session token payload issued by the storefront
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// authMiddleware requires a valid session token, read from the session
// cookie or an "Authorization: Bearer" header
func authMiddleware(secret []byte, cookieName string) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	logger := util.GetLogger()

	return func(c *gin.Context) {
		raw := sessionToken(c, cookieName)
		if raw == "" {
			abortUnauthorized(c)
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || claims.ID == "" {
			if err == nil {
				err = errors.New("token has no user id")
			}
			logger.Debug("Rejected session token", zap.Error(err))
			abortUnauthorized(c)
			return
		}

		c.Set(ctxUserID, claims.ID)
		c.Set(ctxUserEmail, claims.Email)
		c.Set(ctxUserRole, claims.Role)
		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// requireAdmin must run after authMiddleware
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserRole) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// requireJSON rejects request bodies that are not application/json
func requireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mediaType != "application/json" {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "content type must be application/json",
			})
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func currentUserEmail(c *gin.Context) string {
	return c.GetString(ctxUserEmail)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
