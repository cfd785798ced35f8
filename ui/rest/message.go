package rest

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/usecase"
	pkgError "github.com/jonadableite/WhatLead-sub000/pkg/error"
	"github.com/jonadableite/WhatLead-sub000/pkg/utils"
)

type Message struct {
	Service *usecase.SendUsecase
}

func InitRestMessage(app fiber.Router, service *usecase.SendUsecase) Message {
	rest := Message{Service: service}

	app.Post("/messages", rest.Submit)
	app.Get("/messages/:id", rest.Get)

	return rest
}

// Submit admits one message intent. Blocked and queued outcomes are 200s;
// the decision travels in the body.
func (handler *Message) Submit(c *fiber.Ctx) error {
	var request usecase.SubmitIntentRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(utils.ResponseData{Status: 400, Message: err.Error()})
	}
	if request.TenantID == "" {
		request.TenantID = c.Get("X-Tenant-ID")
	}

	response, err := handler.Service.Submit(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	message := "Message approved"
	if !response.Decision.Allowed {
		message = "Message " + string(response.Decision.Status)
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: response,
	})
}

func (handler *Message) Get(c *fiber.Ctx) error {
	tenantID := c.Get("X-Tenant-ID")
	if tenantID == "" {
		tenantID = c.Query("tenant_id")
	}

	it, err := handler.Service.Get(c.UserContext(), tenantID, c.Params("id"))
	if errors.Is(err, common.ErrIntentNotFound) {
		utils.PanicIfNeeded(pkgError.IntentNotFoundError(err.Error()))
	}
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Intent retrieved",
		Results: it,
	})
}
