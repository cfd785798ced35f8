package rest

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/pkg/jobpool"
	"github.com/jonadableite/WhatLead-sub000/pkg/utils"
	"github.com/jonadableite/WhatLead-sub000/trust/application"
)

type MonitoringHandler struct {
	health    *application.HealthService
	jobs      repository.IMessageJobRepository
	pool      *jobpool.Pool
	startedAt time.Time
}

// InitRestMonitoring registers the operational monitoring endpoints.
func InitRestMonitoring(app fiber.Router, health *application.HealthService, jobs repository.IMessageJobRepository, pool *jobpool.Pool) {
	h := &MonitoringHandler{health: health, jobs: jobs, pool: pool, startedAt: time.Now()}

	g := app.Group("/monitoring")
	g.Get("/instances", h.GetInstances)
	g.Get("/jobs", h.GetJobStats)
	g.Get("/pool", h.GetPoolStats)

	app.Get("/health", h.GetLiveness)
}

// GetInstances returns the health snapshot of every instance, optionally
// filtered by tenant.
func (h *MonitoringHandler) GetInstances(c *fiber.Ctx) error {
	snapshots, err := h.health.SnapshotAll(c.UserContext(), c.Query("tenant_id"), time.Now().UTC())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instance snapshots retrieved",
		Results: snapshots,
	})
}

func (h *MonitoringHandler) GetJobStats(c *fiber.Ctx) error {
	counts, err := h.jobs.CountByStatus(c.UserContext())
	if err != nil {
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Job stats retrieved",
		Results: counts,
	})
}

func (h *MonitoringHandler) GetPoolStats(c *fiber.Ctx) error {
	if h.pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Worker pool not initialized",
		})
	}
	return c.JSON(h.pool.GetStats())
}

func (h *MonitoringHandler) GetLiveness(c *fiber.Ctx) error {
	version, serverID := "", ""
	if config.Global != nil {
		version = config.Global.App.Version
		serverID = config.Global.App.ServerID
	}
	return c.JSON(fiber.Map{
		"status":      "ok",
		"version":     version,
		"server_id":   serverID,
		"started":     humanize.Time(h.startedAt),
		"uptime_secs": int64(time.Since(h.startedAt).Seconds()),
	})
}
