package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/mchuluq/whatsapp-microservice/pkg/config"
	"github.com/mchuluq/whatsapp-microservice/pkg/httpapi"
	"github.com/mchuluq/whatsapp-microservice/pkg/logx"
)

func main() {
	// 1. Initialize Logger
	logx.SetDefault(logx.New(logx.LoadFromEnv()))

	logx.Info("🚀 Starting WhatsApp Dispatch API Server...")

	// 2. Load Configuration & Dependency Container
	cfg := config.Load()
	container := NewContainer(cfg)
	defer container.Cleanup()

	// 3. Create Fiber App with Config
	app := fiber.New(fiber.Config{
		AppName:               "WhatsApp Dispatch API",
		DisableStartupMessage: true,
		ErrorHandler:          httpapi.NewErrorHandler(getEnv("DEBUG", "false") == "true"),
		// Base64 data URIs inflate bodies by a third over the raw
		// attachment limit.
		BodyLimit:         int(cfg.Media.MaxSize) * 2,
		IdleTimeout:       120 * time.Second,
		EnablePrintRoutes: false,
	})

	// 4. Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.Server.CORSOrigins, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// 5. Register Routes
	container.Handlers.RegisterRoutes(app, buildAuth(cfg))
	logx.Info("✓ Dispatch routes registered")

	// 6. 404 Handler
	app.Use(httpapi.NotFoundHandler)

	// 7. Print Route Summary
	printRouteSummary()

	// 8. Recover Queues & Start Workers
	container.StartBackgroundServices(context.Background())

	// 9. Start Server with Graceful Shutdown
	startServer(app, cfg)
}

// buildAuth returns the API-key middleware, or a pass-through when no
// key is configured.
func buildAuth(cfg *config.Config) fiber.Handler {
	if cfg.Server.APIKey == "" {
		logx.Warn("⚠️ API_KEY is empty; the API is open to anyone who can reach it")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return httpapi.APIKeyAuth([]string{cfg.Server.APIKey})
}

// printRouteSummary prints a summary of registered routes
func printRouteSummary() {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Messages: POST /api/v1/units/:unit/messages")
	logx.Info("   ├─ Queues: /api/v1/queues, /api/v1/units/:unit/queue, /api/v1/units/:unit/jobs")
	logx.Info("   ├─ Health: /health")
	logx.Info("   └─ Docs: /api/v1/docs")
}

// startServer starts the server with graceful shutdown
func startServer(app *fiber.App, cfg *config.Config) {
	port := cfg.Server.Port

	// Run server in a goroutine
	go func() {
		logx.Info("=" + strings.Repeat("=", 60))
		logx.Infof("🚀 Server listening on port %d", port)
		logx.Infof("📚 API Docs: http://localhost:%d/api/v1/docs", port)
		logx.Infof("💚 Health Check: http://localhost:%d/health", port)
		logx.Info("=" + strings.Repeat("=", 60))

		if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	gracefulShutdown(app)
}

// gracefulShutdown handles graceful server shutdown
func gracefulShutdown(app *fiber.App) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for interrupt signal
	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	// Shutdown the server with timeout
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
