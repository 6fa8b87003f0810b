package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/craterbuild/crater/src/common/version"
)

// handleRoot returns API discovery information
func (a *API) handleRoot(c *gin.Context) {
	info := APIInfo{
		Name:        "craterd",
		Description: "Crater build orchestration API",
		Version:     versionInfo.Version,
		APIVersions: []string{"v1"},
		Endpoints: APIInfoEndpoints{
			Health:  "/v1/health",
			Version: "/v1/version",
			Token:   "/auth/token",
			Builds:  "/v1/builds",
			Hosts:   "/v1/hosts",
		},
	}

	c.JSON(http.StatusOK, info)
}

// handleHealth returns the current health status of the server
func (a *API) handleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if a.storage != nil {
		response.Storage = "ok"
		if err := a.storage.Ping(c.Request.Context()); err != nil {
			response.Storage = "unavailable"
		}
	}

	c.JSON(http.StatusOK, response)
}

// handleVersion returns version and build information for the server
func (a *API) handleVersion(c *gin.Context) {
	response := VersionResponse{
		Version:        versionInfo.Version,
		ReleaseVersion: versionInfo.ReleaseVersion,
		BuildDate:      versionInfo.BuildDate,
		GitCommit:      versionInfo.GitCommit,
		GoVersion:      version.GoVersion(),
	}

	c.JSON(http.StatusOK, response)
}
