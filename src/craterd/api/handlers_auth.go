package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/craterd/auth"
)

// handleToken exchanges a configured access token for a short-lived JWT
func (a *API) handleToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrInvalidBuildInput.
			WithMessage("access_token is required").ToResponse())
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = c.ClientIP()
	}

	token, err := a.jwtService.Exchange(req.AccessToken, subject)
	if err != nil {
		log.Warn("Token exchange rejected", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, errors.NewResponse(err))
		return
	}

	claims, err := a.jwtService.Validate(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errors.NewResponse(err))
		return
	}

	log.Info("Token issued", "subject", subject, "role", claims.Role)
	c.JSON(http.StatusOK, TokenResponse{Token: token, Role: claims.Role})
}

// subjectOf returns the authenticated subject for attribution, falling back
// to the role name
func subjectOf(claims *auth.Claims) string {
	if claims == nil {
		return ""
	}
	if claims.Subject != "" {
		return claims.Subject
	}
	return claims.Role
}
