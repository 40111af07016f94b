package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"epic-engine/internal/interfaces"
	"epic-engine/internal/messaging"
	"epic-engine/internal/models"
	"epic-engine/internal/service"
)

// APIError is the standardized error response body.
type APIError struct {
	Message string `json:"message"`
}

// PaginatedResponse wraps list responses.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// EpicHandler serves the HTTP API of the orchestration engine.
type EpicHandler struct {
	engine    interfaces.Engine
	universes *service.UniverseService
	tasks     messaging.TaskPublisher
	hub       *Hub
	logger    *zap.Logger
}

// NewEpicHandler creates a new EpicHandler. hub may be nil when the server
// runs without WebSocket progress streaming.
func NewEpicHandler(
	engine interfaces.Engine,
	universes *service.UniverseService,
	tasks messaging.TaskPublisher,
	hub *Hub,
	logger *zap.Logger,
) *EpicHandler {
	return &EpicHandler{
		engine:    engine,
		universes: universes,
		tasks:     tasks,
		hub:       hub,
		logger:    logger.Named("EpicHandler"),
	}
}

// RegisterRoutes registers all API routes. The rate limit middleware guards
// the two generation endpoints; each accepted request turns into backend
// calls, reads stay unthrottled.
func (h *EpicHandler) RegisterRoutes(router *gin.Engine, rateLimitMiddleware gin.HandlerFunc) {
	api := router.Group("/api")
	{
		universesGroup := api.Group("/universes")
		{
			universesGroup.POST("", h.createUniverse)
			universesGroup.GET("", h.listUniverses)
			universesGroup.GET("/:name", h.getUniverse)
			universesGroup.POST("/:name/corpus", h.uploadCorpusSample)
			universesGroup.GET("/:name/corpus/stats", h.corpusStats)
		}

		storiesGroup := api.Group("/stories")
		{
			storiesGroup.POST("", rateLimitMiddleware, h.createStory)
			storiesGroup.GET("", h.listStories)
			storiesGroup.GET("/:id", h.getStory)
			storiesGroup.POST("/:id/advance", rateLimitMiddleware, h.advanceStory)
			storiesGroup.GET("/:id/chapters", h.listChapters)
			storiesGroup.GET("/:id/chapters/:number", h.getChapter)
		}
	}

	if h.hub != nil {
		router.GET("/ws/stories/:id", h.serveStoryProgressWS)
	}
}

// handleServiceError translates service errors into HTTP responses. Only
// the fallthrough branch logs; expected errors are the caller's business.
func handleServiceError(c *gin.Context, err error, logger *zap.Logger) {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrStoryBusy):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrOutOfOrder):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrCursorConflict):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrUniverseAlreadyExists):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrArcBoundary):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrInvalidPremise) || errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrStoryNotFound) ||
		errors.Is(err, models.ErrChapterNotFound) ||
		errors.Is(err, models.ErrUniverseNotFound) ||
		errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrGenerationFailed):
		statusCode = http.StatusBadGateway
		apiErr = APIError{Message: err.Error()}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
		logger.Error("Unhandled service error", zap.Error(err))
	}

	c.JSON(statusCode, apiErr)
}

// parseLimitOffset reads limit and offset query parameters with defaults.
// The limit is capped at maxListLimit.
func parseLimitOffset(c *gin.Context) (int, int, error) {
	limit := defaultListLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return 0, 0, errors.New("invalid 'limit' parameter")
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return 0, 0, errors.New("invalid 'offset' parameter")
		}
		offset = parsed
	}

	return limit, offset, nil
}
