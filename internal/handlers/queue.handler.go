package handlers

import (
	"auxparty/internal/app"
	"auxparty/internal/handlers/middleware"
	"auxparty/internal/logger"
	"auxparty/internal/models"

	queueController "auxparty/internal/controllers/queues"

	"github.com/gofiber/fiber/v2"
)

type QueueHandler struct {
	Handler
	controller queueController.QueueControllerInterface
}

type addTrackRequest struct {
	Track models.Track `json:"track"`
}

type voteRequest struct {
	VoteType int `json:"voteType"`
}

type skipVoteRequest struct {
	TrackID string `json:"trackId"`
}

func NewQueueHandler(app app.App, router fiber.Router) *QueueHandler {
	log := logger.New("handlers").File("queue_handler")
	return &QueueHandler{
		controller: app.Controllers.Queue,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *QueueHandler) Register() {
	sessions := h.router.Group("/sessions")

	queue := sessions.Group("/:sessionId/queue", h.middleware.RequireActor())
	queue.Get("/", h.getQueue)
	queue.Post("/", h.addTrack)
	queue.Post("/:itemId/vote", h.vote)
	queue.Delete("/:itemId", h.removeTrack)
	queue.Post("/skip-vote", h.skipVote)

	sessions.Post("/:sessionId/queue/skip", h.middleware.RequireHost(), h.hostSkip)
	sessions.Get("/:sessionId/credits", h.middleware.RequireActor(), h.getCredits)
}

func (h *QueueHandler) getQueue(c *fiber.Ctx) error {
	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	snapshot, err := h.controller.GetQueue(c.Context(), sessionID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(snapshot)
}

func (h *QueueHandler) addTrack(c *fiber.Ctx) error {
	log := h.log.Function("addTrack")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	var req addTrackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Track.TrackID == "" || req.Track.TrackURI == "" {
		return badRequest(c, "track.trackId and track.trackUri are required")
	}

	item, err := h.controller.AddTrack(c.Context(), sessionID, middleware.GetActor(c), req.Track)
	if err != nil {
		log.Er("failed to add track", err, "sessionID", sessionID, "trackID", req.Track.TrackID)
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"item": item,
	})
}

func (h *QueueHandler) vote(c *fiber.Ctx) error {
	log := h.log.Function("vote")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}
	itemID, ok := uuidParam(c, "itemId")
	if !ok {
		return badRequest(c, "invalid itemId")
	}

	var req voteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	action, score, err := h.controller.Vote(
		c.Context(),
		sessionID,
		itemID,
		middleware.GetActor(c),
		req.VoteType,
	)
	if err != nil {
		log.Er("failed to vote", err, "sessionID", sessionID, "itemID", itemID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"action": action,
		"score":  score,
	})
}

func (h *QueueHandler) removeTrack(c *fiber.Ctx) error {
	log := h.log.Function("removeTrack")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}
	itemID, ok := uuidParam(c, "itemId")
	if !ok {
		return badRequest(c, "invalid itemId")
	}

	if err := h.controller.RemoveTrack(c.Context(), sessionID, itemID, middleware.GetActor(c)); err != nil {
		log.Er("failed to remove track", err, "sessionID", sessionID, "itemID", itemID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "track removed",
	})
}

func (h *QueueHandler) skipVote(c *fiber.Ctx) error {
	log := h.log.Function("skipVote")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	var req skipVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.TrackID == "" {
		return badRequest(c, "trackId is required")
	}

	count, threshold, skipped, err := h.controller.SkipVote(
		c.Context(),
		sessionID,
		req.TrackID,
		middleware.GetActor(c),
	)
	if err != nil {
		log.Er("failed to register skip vote", err, "sessionID", sessionID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"votes":     count,
		"threshold": threshold,
		"skipped":   skipped,
	})
}

func (h *QueueHandler) hostSkip(c *fiber.Ctx) error {
	log := h.log.Function("hostSkip")

	sessionID, ok := uuidParam(c, "sessionId")
	if !ok {
		return badRequest(c, "invalid sessionId")
	}

	if err := h.controller.HostSkip(c.Context(), sessionID, middleware.GetUser(c)); err != nil {
		log.Er("failed to skip track", err, "sessionID", sessionID)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "track skipped",
	})
}

func (h *QueueHandler) getCredits(c *fiber.Ctx) error {
	credits, err := h.controller.GetCredits(c.Context(), middleware.GetActor(c))
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"credits": credits,
	})
}
