package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/linkgate/internal/middleware"
	"github.com/SergeiKhy/linkgate/internal/models"
	"github.com/SergeiKhy/linkgate/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service  service.LinkService
	recorder service.ClickRecorder
	baseURL  string
	logger   *zap.Logger
}

func NewLinkHandler(service service.LinkService, recorder service.ClickRecorder, baseURL string, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		service:  service,
		recorder: recorder,
		baseURL:  baseURL,
		logger:   logger,
	}
}

type CreateLinkRequest struct {
	URL        string     `json:"url" binding:"required"`
	CustomCode string     `json:"custom_code,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Password   string     `json:"password,omitempty"`
}

type LinkResponse struct {
	ID          int64      `json:"id"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	Protected   bool       `json:"protected"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClickCount  int64      `json:"click_count"`
	LastClicked *time.Time `json:"last_clicked,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *LinkHandler) linkResponse(link *models.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		Protected:   link.Protected(),
		ExpiresAt:   link.ExpiresAt,
		ClickCount:  link.ClickCount,
		LastClicked: link.LastClicked,
		CreatedAt:   link.CreatedAt,
	}
}

// CreateLink godoc
// @Summary Create a short link
// @Description Create a new shortened URL owned by the authenticated owner
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link creation request"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/links [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Owner identity is required",
		})
		return
	}

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	input := &models.CreateLinkInput{
		OriginalURL: req.URL,
		OwnerID:     ownerID,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.CustomCode != "" {
		input.CustomCode = &req.CustomCode
	}
	if req.Password != "" {
		input.Password = &req.Password
	}

	link, err := h.service.CreateLink(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_url",
				Message: "Invalid destination URL",
			})
		case errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_code",
				Message: "Short code can only contain letters, numbers and hyphens",
			})
		case errors.Is(err, service.ErrCodeTaken):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "code_taken",
				Message: "This short code is already taken",
			})
		default:
			h.logger.Error("Failed to create link", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to create link",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, h.linkResponse(link))
}

// ListLinks godoc
// @Summary List owned links
// @Description List the authenticated owner's links, newest first
// @Tags links
// @Produce json
// @Success 200 {array} LinkResponse
// @Router /api/v1/links [get]
func (h *LinkHandler) ListLinks(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Owner identity is required"})
		return
	}

	links, err := h.service.ListLinks(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("Failed to list links", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list links",
		})
		return
	}

	responses := make([]LinkResponse, 0, len(links))
	for _, link := range links {
		responses = append(responses, h.linkResponse(link))
	}

	c.JSON(http.StatusOK, responses)
}

// DeleteLink godoc
// @Summary Delete an owned link
// @Description Delete a link and all its click events
// @Tags links
// @Produce json
// @Param id path int true "Link ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{id} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Owner identity is required"})
		return
	}

	linkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Link ID must be an integer"})
		return
	}

	if err := h.service.DeleteLink(c.Request.Context(), ownerID, linkID); err != nil {
		// Чужая и несуществующая ссылка отвечают одинаково
		if errors.Is(err, service.ErrLinkNotFound) || errors.Is(err, service.ErrNotOwner) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Link not found or access denied",
			})
			return
		}
		h.logger.Error("Failed to delete link", zap.Int64("link_id", linkID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete link",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Link deleted successfully"})
}

// GetDailyStats godoc
// @Summary Get daily click statistics for an owned link
// @Description One entry per calendar day with at least one click, date ascending
// @Tags links
// @Produce json
// @Param id path int true "Link ID"
// @Success 200 {array} models.DailyClickStats
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/links/{id}/stats [get]
func (h *LinkHandler) GetDailyStats(c *gin.Context) {
	ownerID, ok := middleware.OwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Owner identity is required"})
		return
	}

	linkID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Link ID must be an integer"})
		return
	}

	link, err := h.service.GetOwnedLink(c.Request.Context(), ownerID, linkID)
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) || errors.Is(err, service.ErrNotOwner) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Link not found or access denied",
			})
			return
		}
		h.logger.Error("Failed to get link for stats", zap.Int64("link_id", linkID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get stats",
		})
		return
	}

	stats, err := h.recorder.GetDailyStats(c.Request.Context(), link.ID)
	if err != nil {
		h.logger.Error("Failed to get daily stats", zap.Int64("link_id", link.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
