package middleware

import (
	"context"
	"strings"

	"auxparty/internal/models"
	"auxparty/internal/utils"

	logger "auxparty/internal/logger"

	"github.com/gofiber/fiber/v2"
)

// AuthContextKey is used to store auth info in context
type AuthContextKey string

const (
	UserKey       AuthContextKey = "user"
	UserKeyFiber  string         = "User"  // Fiber context key (string)
	ActorKeyFiber string         = "Actor" // Fiber context key (string)
	GuestKeyFiber string         = "Guest"
)

// RequireHost validates a host token and loads the backing user.
func (m *Middleware) RequireHost() fiber.Handler {
	return func(c *fiber.Ctx) error {
		log := logger.New("middleware").TraceFromContext(c.Context()).Function("RequireHost")

		claims, err := m.bearerClaims(c)
		if err != nil {
			log.Info("token validation failed", "error", err.Error())
			return unauthorized(c, "Invalid token")
		}
		if claims.Kind != utils.TokenKindHost {
			return unauthorized(c, "Host token required")
		}

		userID, err := claims.SubjectID()
		if err != nil {
			return unauthorized(c, "Invalid token")
		}

		user, err := m.userRepo.GetByID(c.Context(), userID)
		if err != nil {
			log.Info("user not found", "userID", userID, "error", err.Error())
			return unauthorized(c, "User not found")
		}

		c.Locals(UserKeyFiber, user)
		c.Locals(ActorKeyFiber, models.HostActor(user.ID))

		// Add to Go context for services (preserve trace ID from TraceID middleware)
		ctx := context.WithValue(c.UserContext(), UserKey, user)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// RequireActor accepts either a host or a guest token and resolves the
// acting identity. Guest tokens are session-bound: when the route carries a
// :sessionId parameter it must match the token's session.
func (m *Middleware) RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		log := logger.New("middleware").TraceFromContext(c.Context()).Function("RequireActor")

		claims, err := m.bearerClaims(c)
		if err != nil {
			log.Info("token validation failed", "error", err.Error())
			return unauthorized(c, "Invalid token")
		}

		subjectID, err := claims.SubjectID()
		if err != nil {
			return unauthorized(c, "Invalid token")
		}

		switch claims.Kind {
		case utils.TokenKindHost:
			user, err := m.userRepo.GetByID(c.Context(), subjectID)
			if err != nil {
				return unauthorized(c, "User not found")
			}
			c.Locals(UserKeyFiber, user)
			c.Locals(ActorKeyFiber, models.HostActor(user.ID))

		case utils.TokenKindGuest:
			if param := c.Params("sessionId"); param != "" && param != claims.SessionID {
				return unauthorized(c, "Token not valid for this session")
			}

			guest, err := m.guestRepo.GetByID(c.Context(), subjectID)
			if err != nil {
				return unauthorized(c, "Guest not found")
			}
			c.Locals(GuestKeyFiber, guest)
			c.Locals(ActorKeyFiber, models.GuestActor(guest.ID))

		default:
			return unauthorized(c, "Invalid token")
		}

		return c.Next()
	}
}

func (m *Middleware) bearerClaims(c *fiber.Ctx) (*utils.SessionClaims, error) {
	authHeader := c.Get("Authorization")
	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
		return nil, utils.ErrInvalidToken
	}

	return utils.ParseSessionToken(tokenParts[1], m.Config.JWTSecret)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
	})
}

// GetUser extracts the host user from Fiber context
func GetUser(c *fiber.Ctx) *models.User {
	user, ok := c.Locals(UserKeyFiber).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetGuest extracts the guest from Fiber context
func GetGuest(c *fiber.Ctx) *models.Guest {
	guest, ok := c.Locals(GuestKeyFiber).(*models.Guest)
	if !ok {
		return nil
	}
	return guest
}

// GetActor extracts the acting identity from Fiber context
func GetActor(c *fiber.Ctx) models.Actor {
	actor, ok := c.Locals(ActorKeyFiber).(models.Actor)
	if !ok {
		return models.Actor{}
	}
	return actor
}
