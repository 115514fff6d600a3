package handlers

import (
	"auxparty/internal/app"
	"auxparty/internal/handlers/middleware"
	"auxparty/internal/logger"

	authController "auxparty/internal/controllers/auth"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	Handler
	controller authController.AuthControllerInterface
}

func NewAuthHandler(app app.App, router fiber.Router) *AuthHandler {
	log := logger.New("handlers").File("auth_handler")
	return &AuthHandler{
		controller: app.Controllers.Auth,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *AuthHandler) Register() {
	auth := h.router.Group("/auth")

	auth.Get("/login-url", h.getLoginURL)
	auth.Get("/callback", h.handleCallback)

	protected := auth.Group("/", h.middleware.RequireHost())
	protected.Get("/me", h.getCurrentUser)
}

// getLoginURL returns the provider authorization URL for the host login flow.
func (h *AuthHandler) getLoginURL(c *fiber.Ctx) error {
	state := c.Query("state", "default-state")

	return c.JSON(fiber.Map{
		"authorizationUrl": h.controller.LoginURL(state),
		"state":            state,
	})
}

// handleCallback exchanges the provider authorization code for a host token.
func (h *AuthHandler) handleCallback(c *fiber.Ctx) error {
	log := h.log.Function("handleCallback")

	code := c.Query("code")
	if code == "" {
		return badRequest(c, "code parameter is required")
	}

	user, token, err := h.controller.HandleCallback(c.Context(), code)
	if err != nil {
		log.Er("callback exchange failed", err)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) getCurrentUser(c *fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	return c.JSON(fiber.Map{
		"user": user,
	})
}
