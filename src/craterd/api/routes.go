package api

import "github.com/gin-gonic/gin"

// RegisterRoutes configures all API routes on the given router
func (a *API) RegisterRoutes(router *gin.Engine) {
	// Root endpoint - API discovery
	router.GET("/", a.handleRoot)

	// Token exchange
	authGroup := router.Group("/auth")
	authGroup.Use(a.rateLimitAuth())
	{
		authGroup.POST("/token", a.handleToken)
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/health", a.handleHealth)
		v1.GET("/version", a.handleVersion)

		// Build routes - authenticated
		builds := v1.Group("/builds")
		builds.Use(a.authRequired(), a.rateLimitAPI())
		{
			builds.POST("", a.handleSubmitBuild)
			builds.GET("", a.handleListBuilds)
			builds.GET("/:id", a.handleGetBuild)
			builds.POST("/:id/cancel", a.handleCancelBuild)
			builds.GET("/:id/logs", a.handleGetBuildLogs)
			builds.GET("/:id/document", a.handleGetBuildDocument)
		}

		// Host pool routes - authenticated
		hosts := v1.Group("/hosts")
		hosts.Use(a.authRequired(), a.rateLimitAPI())
		{
			hosts.GET("", a.handleListHosts)
			hosts.GET("/:hostname/leases", a.handleGetHostLeases)
		}

		// Ledger maintenance - admin only
		hostsAdmin := v1.Group("/hosts")
		hostsAdmin.Use(a.authRequired(), a.adminRequired())
		{
			hostsAdmin.POST("/reconcile", a.handleReconcile)
		}
	}
}
