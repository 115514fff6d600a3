package handlers

import (
	"auxparty/internal/app"
	"auxparty/internal/handlers/middleware"
	"auxparty/internal/logger"

	scheduleController "auxparty/internal/controllers/schedules"

	"github.com/gofiber/fiber/v2"
)

type ScheduleHandler struct {
	Handler
	controller scheduleController.ScheduleControllerInterface
}

func NewScheduleHandler(app app.App, router fiber.Router) *ScheduleHandler {
	log := logger.New("handlers").File("schedule_handler")
	return &ScheduleHandler{
		controller: app.Controllers.Schedule,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *ScheduleHandler) Register() {
	schedules := h.router.Group("/sessions/:sessionId/schedules", h.middleware.RequireHost())
	schedules.Post("/", h.createSchedule)
	schedules.Get("/", h.listSchedules)
	schedules.Delete("/:scheduleId", h.cancelSchedule)
}

func (h *ScheduleHandler) createSchedule(c *fiber.Ctx) error {
	log := h.log.Function("createSchedule")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	var req scheduleController.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	schedule, err := h.controller.Create(c.Context(), middleware.GetUser(c), sessionID, req)
	if err != nil {
		log.Er("failed to create schedule", err, "sessionID", sessionID)
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"schedule": schedule,
	})
}

func (h *ScheduleHandler) listSchedules(c *fiber.Ctx) error {
	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	schedules, err := h.controller.List(c.Context(), middleware.GetUser(c), sessionID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"schedules": schedules,
	})
}

func (h *ScheduleHandler) cancelSchedule(c *fiber.Ctx) error {
	log := h.log.Function("cancelSchedule")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}
	scheduleID, ok := uuidParam(c, "scheduleId")
	if !ok {
		return badRequest(c, "invalid scheduleId")
	}

	if err := h.controller.Cancel(c.Context(), middleware.GetUser(c), sessionID, scheduleID); err != nil {
		log.Er("failed to cancel schedule", err, "scheduleID", scheduleID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "schedule cancelled",
	})
}
