package handlers

import (
	"strings"

	"auxparty/internal/app"
	"auxparty/internal/handlers/middleware"
	"auxparty/internal/logger"
	"auxparty/internal/models"
	"auxparty/internal/repositories"
	"auxparty/internal/utils"

	sessionController "auxparty/internal/controllers/sessions"

	"github.com/gofiber/fiber/v2"
)

type SessionHandler struct {
	Handler
	controller sessionController.SessionControllerInterface
	userRepo   repositories.UserRepository
}

type joinSessionRequest struct {
	JoinCode  string `json:"joinCode"`
	GuestName string `json:"guestName"`
}

type guestCreditsRequest struct {
	TotalCredits int `json:"totalCredits"`
}

func NewSessionHandler(app app.App, router fiber.Router) *SessionHandler {
	log := logger.New("handlers").File("session_handler")
	return &SessionHandler{
		controller: app.Controllers.Session,
		userRepo:   app.Repositories.User,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *SessionHandler) Register() {
	sessions := h.router.Group("/sessions")

	sessions.Post("/join", h.joinSession)

	sessions.Post("/", h.middleware.RequireHost(), h.createSession)
	sessions.Get("/:sessionId", h.middleware.RequireActor(), h.getSession)
	sessions.Post("/:sessionId/deactivate", h.middleware.RequireHost(), h.deactivateSession)
	sessions.Put("/:sessionId/settings", h.middleware.RequireHost(), h.updateSettings)
	sessions.Put(
		"/:sessionId/guests/:guestId/credits",
		h.middleware.RequireHost(),
		h.setGuestCredits,
	)
}

func (h *SessionHandler) createSession(c *fiber.Ctx) error {
	log := h.log.Function("createSession")

	var settings sessionController.SessionSettings
	if err := c.BodyParser(&settings); err != nil {
		return badRequest(c, "invalid request body")
	}

	session, err := h.controller.CreateSession(c.Context(), middleware.GetUser(c), settings)
	if err != nil {
		log.Er("failed to create session", err)
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": session,
	})
}

func (h *SessionHandler) getSession(c *fiber.Ctx) error {
	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	session, err := h.controller.GetSession(c.Context(), sessionID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"session": session,
	})
}

// joinSession is public. When the caller presents a valid host token the
// guest is linked to their account so credits follow them across sessions.
func (h *SessionHandler) joinSession(c *fiber.Ctx) error {
	log := h.log.Function("joinSession")

	var req joinSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.JoinCode == "" || req.GuestName == "" {
		return badRequest(c, "joinCode and guestName are required")
	}

	guest, token, session, err := h.controller.JoinSession(
		c.Context(),
		req.JoinCode,
		req.GuestName,
		h.optionalUser(c),
	)
	if err != nil {
		log.Er("failed to join session", err, "joinCode", req.JoinCode)
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"guest":   guest,
		"token":   token,
		"session": session,
	})
}

func (h *SessionHandler) deactivateSession(c *fiber.Ctx) error {
	log := h.log.Function("deactivateSession")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	if err := h.controller.DeactivateSession(c.Context(), middleware.GetUser(c), sessionID); err != nil {
		log.Er("failed to deactivate session", err, "sessionID", sessionID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "session deactivated",
	})
}

func (h *SessionHandler) updateSettings(c *fiber.Ctx) error {
	log := h.log.Function("updateSettings")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	var settings sessionController.SessionSettings
	if err := c.BodyParser(&settings); err != nil {
		return badRequest(c, "invalid request body")
	}

	session, err := h.controller.UpdateSettings(
		c.Context(),
		middleware.GetUser(c),
		sessionID,
		settings,
	)
	if err != nil {
		log.Er("failed to update settings", err, "sessionID", sessionID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"session": session,
	})
}

func (h *SessionHandler) setGuestCredits(c *fiber.Ctx) error {
	log := h.log.Function("setGuestCredits")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}
	guestID, ok := uuidParam(c, "guestId")
	if !ok {
		return badRequest(c, "invalid guestId")
	}

	var req guestCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	credits, err := h.controller.SetGuestCredits(
		c.Context(),
		middleware.GetUser(c),
		sessionID,
		guestID,
		req.TotalCredits,
	)
	if err != nil {
		log.Er("failed to set guest credits", err, "guestID", guestID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"credits": credits,
	})
}

// optionalUser resolves a host token when one is present, nil otherwise.
func (h *SessionHandler) optionalUser(c *fiber.Ctx) *models.User {
	header := c.Get("Authorization")
	if header == "" {
		return nil
	}

	token := strings.TrimPrefix(header, "Bearer ")
	claims, err := utils.ParseSessionToken(token, h.middleware.Config.JWTSecret)
	if err != nil || claims.Kind != utils.TokenKindHost {
		return nil
	}

	userID, err := claims.SubjectID()
	if err != nil {
		return nil
	}

	user, err := h.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		return nil
	}
	return user
}
