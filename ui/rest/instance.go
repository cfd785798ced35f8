package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	pkgError "github.com/jonadableite/WhatLead-sub000/pkg/error"
	"github.com/jonadableite/WhatLead-sub000/pkg/utils"
	"github.com/jonadableite/WhatLead-sub000/trust/application"
	"github.com/jonadableite/WhatLead-sub000/trust/repository"
	"github.com/jonadableite/WhatLead-sub000/trust/usecase"
)

type Instance struct {
	Service *usecase.InstanceUsecase
	Health  *application.HealthService
}

func InitRestInstance(app fiber.Router, service *usecase.InstanceUsecase, health *application.HealthService) Instance {
	rest := Instance{Service: service, Health: health}

	app.Post("/instances", rest.Create)
	app.Get("/instances", rest.List)
	app.Get("/instances/:id", rest.Get)
	app.Get("/instances/:id/health", rest.GetHealth)
	app.Post("/instances/:id/activate", rest.Activate)
	app.Post("/instances/:id/ban", rest.Ban)
	app.Post("/instances/:id/evaluate", rest.Evaluate)

	return rest
}

func (handler *Instance) Create(c *fiber.Ctx) error {
	var request usecase.CreateInstanceRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(utils.ResponseData{Status: 400, Message: err.Error()})
	}

	inst, err := handler.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(201).JSON(utils.ResponseData{
		Status:  201,
		Code:    "SUCCESS",
		Message: "Instance created",
		Results: inst,
	})
}

func (handler *Instance) List(c *fiber.Ctx) error {
	instances, err := handler.Service.List(c.UserContext(), c.Query("tenant_id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instances retrieved",
		Results: instances,
	})
}

func (handler *Instance) Get(c *fiber.Ctx) error {
	inst, err := handler.Service.Get(c.UserContext(), c.Params("id"))
	if err == repository.ErrInstanceNotFound {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instance retrieved",
		Results: inst,
	})
}

func (handler *Instance) GetHealth(c *fiber.Ctx) error {
	snapshot, err := handler.Health.Snapshot(c.UserContext(), c.Params("id"), time.Now().UTC())
	if err == repository.ErrInstanceNotFound {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health snapshot retrieved",
		Results: snapshot,
	})
}

func (handler *Instance) Activate(c *fiber.Ctx) error {
	inst, err := handler.Service.Activate(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instance activated",
		Results: inst,
	})
}

func (handler *Instance) Ban(c *fiber.Ctx) error {
	var request struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(utils.ResponseData{Status: 400, Message: err.Error()})
	}

	inst, err := handler.Service.Ban(c.UserContext(), c.Params("id"), request.Reason)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instance banned",
		Results: inst,
	})
}

// Evaluate forces an immediate health evaluation outside the cron.
func (handler *Instance) Evaluate(c *fiber.Ctx) error {
	_, err := handler.Health.EvaluateInstance(c.UserContext(), c.Params("id"), "manual-evaluation", time.Now().UTC())
	if err == repository.ErrInstanceNotFound {
		utils.PanicIfNeeded(pkgError.NotFoundError(err.Error()))
	}
	utils.PanicIfNeeded(err)

	snapshot, err := handler.Health.Snapshot(c.UserContext(), c.Params("id"), time.Now().UTC())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Evaluation completed",
		Results: snapshot,
	})
}
