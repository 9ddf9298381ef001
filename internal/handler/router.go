package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Routes struct {
	License    *LicenseHandler
	Ask        *AskHandler
	Health     *HealthHandler
	AdminGuard gin.HandlerFunc
}

func RegisterRoutes(router gin.IRouter, routes Routes) {
	router.GET("/healthz", routes.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/ask", routes.Ask.Ask)

	licenseRoutes := router.Group("/license")
	{
		licenseRoutes.POST("/activate", routes.License.Activate)
		licenseRoutes.POST("/validate", routes.License.Validate)

		adminRoutes := licenseRoutes.Group("")
		adminRoutes.Use(routes.AdminGuard)
		{
			adminRoutes.POST("/create", routes.License.Create)
			adminRoutes.POST("/deactivate", routes.License.Deactivate)
			adminRoutes.GET("/all", routes.License.List)
			adminRoutes.DELETE("/:key", routes.License.Delete)
		}
	}
}
