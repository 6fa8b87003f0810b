package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/craterd/auth"
)

// claimsKey is the gin context key under which validated claims are stored
const claimsKey = "claims"

// rateLimitAuth returns middleware that rate-limits the token endpoint.
func (a *API) rateLimitAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.rateLimiter == nil {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if !a.rateLimiter.Allow(key, a.rateLimiter.config.AuthRequestsPerMin) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errors.ErrRateLimited.ToResponse())
			return
		}
		c.Next()
	}
}

// rateLimitAPI returns middleware that rate-limits general API endpoints.
func (a *API) rateLimitAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.rateLimiter == nil {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if claims := getClaims(c); claims != nil {
			key = "subject:" + claims.Subject
		}
		if !a.rateLimiter.Allow(key, a.rateLimiter.config.APIRequestsPerMin) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errors.ErrRateLimited.ToResponse())
			return
		}
		c.Next()
	}
}

// bearerToken extracts the bearer token from the Authorization header
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// authRequired is a middleware that requires a valid JWT token
func (a *API) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ErrNoToken.ToResponse())
			return
		}

		claims, err := a.jwtService.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.NewResponse(err))
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// adminRequired is a middleware that requires the admin role
func (a *API) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := getClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ErrNoToken.ToResponse())
			return
		}
		if claims.Role != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, errors.ErrForbidden.ToResponse())
			return
		}
		c.Next()
	}
}

// getClaims retrieves validated claims stored by authRequired
func getClaims(c *gin.Context) *auth.Claims {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*auth.Claims)
	return claims
}
