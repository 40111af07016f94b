package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"epic-engine/internal/messaging"
	"epic-engine/internal/models"
)

type createStoryRequest struct {
	UniverseName string `json:"universe_name" binding:"required"`
	Title        string `json:"title"`
	MainTheme    string `json:"main_theme"`
	Protagonist  string `json:"protagonist"`
}

// createStory plans a new epic. Planning is synchronous: the premise is
// validated, the five arc briefs are generated and the story row is
// committed before the response goes out.
func (h *EpicHandler) createStory(c *gin.Context) {
	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	premise := models.Premise{
		UniverseName: req.UniverseName,
		Title:        req.Title,
		MainTheme:    req.MainTheme,
		Protagonist:  req.Protagonist,
	}

	story, err := h.engine.CreateEpic(c.Request.Context(), premise)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	h.logger.Info("Epic created",
		zap.String("storyID", story.ID.String()),
		zap.String("title", story.Title),
		zap.String("universe", story.Universe.Name))

	c.JSON(http.StatusCreated, story)
}

type advanceRequest struct {
	ArcIndex int `json:"arc_index" binding:"required"`
	Count    int `json:"count"`
}

type advanceAcceptedResponse struct {
	TaskID   string `json:"task_id"`
	StoryID  string `json:"story_id"`
	ArcIndex int    `json:"arc_index"`
	Count    int    `json:"count"`
	Status   string `json:"status"`
}

// advanceStory enqueues a generation task for the story and returns 202.
// Only structural checks happen here; cursor alignment and the single
// writer lock are enforced by the worker, where they cannot race.
func (h *EpicHandler) advanceStory(c *gin.Context) {
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
		return
	}

	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	if req.ArcIndex < 1 || req.ArcIndex > models.ArcCount {
		c.JSON(http.StatusBadRequest, APIError{
			Message: fmt.Sprintf("'arc_index' must be between 1 and %d", models.ArcCount),
		})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Count < 1 || req.Count > models.MaxBatchSize {
		c.JSON(http.StatusBadRequest, APIError{
			Message: fmt.Sprintf("'count' must be between 1 and %d", models.MaxBatchSize),
		})
		return
	}

	// The story must exist before anything enters the queue.
	if _, err := h.engine.GetStory(c.Request.Context(), storyID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:     uuid.NewString(),
		StoryID:    storyID.String(),
		ArcIndex:   req.ArcIndex,
		Count:      req.Count,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := h.tasks.PublishGenerationTask(c.Request.Context(), payload); err != nil {
		h.logger.Error("Failed to publish generation task",
			zap.String("storyID", storyID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "Failed to enqueue generation task"})
		return
	}

	h.logger.Info("Generation task enqueued",
		zap.String("taskID", payload.TaskID),
		zap.String("storyID", payload.StoryID),
		zap.Int("arcIndex", payload.ArcIndex),
		zap.Int("count", payload.Count))

	c.JSON(http.StatusAccepted, advanceAcceptedResponse{
		TaskID:   payload.TaskID,
		StoryID:  payload.StoryID,
		ArcIndex: payload.ArcIndex,
		Count:    payload.Count,
		Status:   "queued",
	})
}

// listStories returns stories, newest first, with offset pagination.
func (h *EpicHandler) listStories(c *gin.Context) {
	limit, offset, err := parseLimitOffset(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}

	stories, err := h.engine.ListStories(c.Request.Context(), limit, offset)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{Data: stories})
}

// getStory returns one story with its arcs and committed cursor.
func (h *EpicHandler) getStory(c *gin.Context) {
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
		return
	}

	story, err := h.engine.GetStory(c.Request.Context(), storyID)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, story)
}

// listChapters returns chapter summaries of a story in reading order.
func (h *EpicHandler) listChapters(c *gin.Context) {
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
		return
	}

	limit, offset, err := parseLimitOffset(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}

	chapters, err := h.engine.ListChapters(c.Request.Context(), storyID, limit, offset)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{Data: chapters})
}

// getChapter returns the full text of one committed chapter.
func (h *EpicHandler) getChapter(c *gin.Context) {
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
		return
	}

	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid chapter number"})
		return
	}

	chapter, err := h.engine.GetChapter(c.Request.Context(), storyID, number)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, chapter)
}
