package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/device-license-api/internal/config"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/makkenzo/device-license-api/internal/util"
	"go.uber.org/zap"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminGuard lets a request through only when X-Admin-Key matches the
// configured admin secret. Rejections never say why.
func AdminGuard(cfg *config.AdminConfig, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AdminGuard")
	if cfg.Secret == "" && cfg.SecretHash == "" {
		log.Warn("No admin secret configured, every admin request will be rejected")
	}

	return func(c *gin.Context) {
		candidate := c.GetHeader(AdminKeyHeader)
		if !util.CheckAdminSecret(candidate, cfg.Secret, cfg.SecretHash) {
			log.Warn("Rejected admin request",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Bool("header_present", candidate != ""),
				zap.String("client_ip", c.ClientIP()),
			)
			_ = c.Error(fmt.Errorf("%w: admin credential rejected", ierr.ErrForbidden))
			c.Abort()
			return
		}
		c.Next()
	}
}
