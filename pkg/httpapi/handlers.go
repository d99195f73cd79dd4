// Package httpapi exposes the dispatch service over HTTP: message
// enqueue, queue statistics and queue administration, guarded by
// API-key auth. Health, service info and docs stay open.
package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/message/msgsrv"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue/queuesrv"
)

const serviceName = "whatsapp-dispatch"

// Handlers bundles the HTTP surface over the dispatch services.
type Handlers struct {
	messages *msgsrv.MessageService
	queues   *queuesrv.QueueService
	store    queue.Store
	version  string
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(messages *msgsrv.MessageService, queues *queuesrv.QueueService, store queue.Store, version string) *Handlers {
	if version == "" {
		version = "1.0.0"
	}
	return &Handlers{
		messages: messages,
		queues:   queues,
		store:    store,
		version:  version,
	}
}

// RegisterRoutes mounts every route on the app. Routes under /api/v1
// (except docs) go through the auth middleware.
func (h *Handlers) RegisterRoutes(app *fiber.App, auth fiber.Handler) {
	app.Get("/health", h.health)
	app.Get("/", h.info)
	app.Get("/api/v1/docs", h.docs)

	api := app.Group("/api/v1", auth)
	api.Post("/units/:unit/messages", h.sendMessages)
	api.Get("/queues", h.allQueueStats)
	api.Get("/units/:unit/queue", h.queueStats)
	api.Delete("/units/:unit/queue", h.purgeQueue)
	api.Get("/units/:unit/jobs", h.listJobs)
	api.Get("/units/:unit/jobs/:id", h.getJob)
	api.Delete("/units/:unit", h.removeUnit)
}

func unitParam(c *fiber.Ctx) kernel.UnitID {
	return kernel.NewUnitID(c.Params("unit"))
}

// ============================================================================
// Message Routes
// ============================================================================

// sendMessages accepts an enqueue request and answers 202 with the
// created job ids; delivery happens asynchronously.
func (h *Handlers) sendMessages(c *fiber.Ctx) error {
	var req msgsrv.SendRequest
	if err := c.BodyParser(&req); err != nil {
		return apiErrors.NewWithCause(ErrBadBody, err)
	}

	result, err := h.messages.Send(c.Context(), unitParam(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(result)
}

// ============================================================================
// Queue Admin Routes
// ============================================================================

func (h *Handlers) queueStats(c *fiber.Ctx) error {
	stats, err := h.queues.StatsForUnit(c.Context(), unitParam(c))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *Handlers) allQueueStats(c *fiber.Ctx) error {
	stats, err := h.queues.StatsForAll(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"queues": stats,
		"count":  len(stats),
	})
}

func (h *Handlers) purgeQueue(c *fiber.Ctx) error {
	removed, err := h.queues.Purge(c.Context(), unitParam(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"removedCount": removed})
}

func (h *Handlers) listJobs(c *fiber.Ctx) error {
	page := kernel.PaginationOptions{
		Page:     c.QueryInt("page"),
		PageSize: c.QueryInt("page_size"),
	}

	jobs, err := h.queues.ListJobs(c.Context(), unitParam(c), c.Query("status"), page)
	if err != nil {
		return err
	}
	return c.JSON(jobs)
}

func (h *Handlers) getJob(c *fiber.Ctx) error {
	job, err := h.queues.GetJob(c.Context(), unitParam(c), kernel.NewJobID(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(job)
}

func (h *Handlers) removeUnit(c *fiber.Ctx) error {
	if err := h.queues.RemoveUnit(c.Context(), unitParam(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ============================================================================
// Health & Info
// ============================================================================

func (h *Handlers) health(c *fiber.Ctx) error {
	health := fiber.Map{
		"status":  "healthy",
		"service": serviceName,
		"version": h.version,
	}

	if err := h.store.Ping(c.Context()); err != nil {
		health["status"] = "degraded"
		health["store"] = "unhealthy"
		health["store_error"] = err.Error()
	} else {
		health["store"] = "healthy"
	}

	status := fiber.StatusOK
	if health["status"] == "degraded" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}

func (h *Handlers) info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     serviceName,
		"version":     h.version,
		"description": "Multi-tenant WhatsApp message dispatch service",
		"endpoints": fiber.Map{
			"docs":   "/api/v1/docs",
			"health": "/health",
		},
	})
}

// docs is a hand-rolled JSON route reference.
func (h *Handlers) docs(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"api_version": "v1",
		"endpoints": fiber.Map{
			"messages": fiber.Map{
				"send": "POST /api/v1/units/:unit/messages",
			},
			"queues": fiber.Map{
				"stats":     "GET /api/v1/units/:unit/queue",
				"stats_all": "GET /api/v1/queues",
				"purge":     "DELETE /api/v1/units/:unit/queue",
				"jobs":      "GET /api/v1/units/:unit/jobs?status=&page=&page_size=",
				"job":       "GET /api/v1/units/:unit/jobs/:id",
				"remove":    "DELETE /api/v1/units/:unit",
			},
		},
		"authentication": fiber.Map{
			"headers": []string{
				"X-API-Key: <key>",
				"Authorization: Bearer <key>",
			},
		},
	})
}
