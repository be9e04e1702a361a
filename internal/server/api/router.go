package api

import (
	"filevault/internal/server/auth"
	"filevault/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, tokens *auth.Issuer, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on upload endpoint only, stopped with the server
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	e.Server.RegisterOnShutdown(uploadLimiter.Stop)

	e.GET("/health", handler.HandleHealth)

	// Public account endpoints
	e.POST("/api/register", handler.HandleRegister)
	e.POST("/api/login", handler.HandleLogin)

	// Everything else requires a session token
	authed := e.Group("/api", RequireAuth(tokens))
	authed.POST("/upload", handler.HandleUpload, uploadLimiter.Middleware())
	authed.GET("/files", handler.HandleFiles)
	authed.GET("/download/:fileId", handler.HandleDownload)
	authed.GET("/view/:fileId", handler.HandleView)
	authed.DELETE("/delete/:fileId", handler.HandleDelete)
	authed.POST("/transfer-file", handler.HandleTransfer)
	authed.POST("/transfer-multiple-files", handler.HandleTransferMultiple)

	return e
}
