package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"epic-engine/internal/models"
)

type createUniverseRequest struct {
	Name           string   `json:"name" binding:"required"`
	Genre          string   `json:"genre"`
	Description    string   `json:"description"`
	MainCharacters []string `json:"main_characters"`
	KeyLocations   []string `json:"key_locations"`
	CentralThemes  []string `json:"central_themes"`
	MagicSystem    string   `json:"magic_system"`
	TimePeriod     string   `json:"time_period"`
	WorldElements  []string `json:"world_elements"`
}

// createUniverse registers a custom universe alongside the built-in
// presets.
func (h *EpicHandler) createUniverse(c *gin.Context) {
	var req createUniverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	universe := models.Universe{
		Name:           req.Name,
		Genre:          req.Genre,
		Description:    req.Description,
		MainCharacters: req.MainCharacters,
		KeyLocations:   req.KeyLocations,
		CentralThemes:  req.CentralThemes,
		MagicSystem:    req.MagicSystem,
		TimePeriod:     req.TimePeriod,
		WorldElements:  req.WorldElements,
	}

	if err := h.universes.Create(c.Request.Context(), &universe); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	h.logger.Info("Universe registered", zap.String("name", universe.Name))

	c.JSON(http.StatusCreated, universe)
}

// listUniverses returns every known universe, presets included.
func (h *EpicHandler) listUniverses(c *gin.Context) {
	universes, err := h.universes.List(c.Request.Context())
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{Data: universes})
}

// getUniverse returns one universe by name.
func (h *EpicHandler) getUniverse(c *gin.Context) {
	universe, err := h.universes.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, universe)
}

type uploadCorpusRequest struct {
	Filename string `json:"filename" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// uploadCorpusSample stores one style reference text for a universe.
func (h *EpicHandler) uploadCorpusSample(c *gin.Context) {
	var req uploadCorpusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	sample, err := h.universes.AddCorpusSample(c.Request.Context(), c.Param("name"), req.Filename, req.Content)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, sample)
}

// corpusStats reports sample and word counts of a universe's corpus.
func (h *EpicHandler) corpusStats(c *gin.Context) {
	stats, err := h.universes.CorpusStats(c.Request.Context(), c.Param("name"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, stats)
}
