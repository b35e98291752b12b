package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/DrJLabs/forgetful-auth/internal/config"
	"github.com/DrJLabs/forgetful-auth/internal/http/handler"
	httpmiddleware "github.com/DrJLabs/forgetful-auth/internal/http/middleware"
	"github.com/DrJLabs/forgetful-auth/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/.well-known/openid-configuration", authHandler.OpenIDConfig)
	r.GET("/.well-known/jwks.json", authHandler.JWKS)
	r.GET("/jwks", authHandler.JWKS)

	r.GET("/authorize", authHandler.Authorize)
	r.GET("/callback", authHandler.Callback)
	r.POST("/token", authHandler.Token)
	r.GET("/userinfo", authMiddleware.ValidateJWT, authHandler.UserInfo)

	r.GET("/health", authHandler.Health)

	return r
}
