package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sirh-sync/internal/dto"
	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/response"
)

type sessionLister interface {
	List(ctx context.Context, actor models.Actor, courseID string, filter models.SessionFilter) (*models.SessionPage, error)
}

// SessionHandler exposes the SIRH session browser.
type SessionHandler struct {
	sessions  sessionLister
	validator *validator.Validate
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions sessionLister) *SessionHandler {
	return &SessionHandler{sessions: sessions, validator: validator.New()}
}

// List godoc
// @Summary List SIRH sessions available to a course
// @Tags Sessions
// @Produce json
// @Param courseId query string true "Course ID"
// @Param sirh query string false "Comma separated registry codes"
// @Param training query string false "Training label filter"
// @Param session query string false "Session label filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Param orderByInstance query bool false "List bound sessions first"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var query dto.SessionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	filter := models.SessionFilter{
		TrainingLabel:   strings.TrimSpace(query.TrainingLabel),
		SessionLabel:    strings.TrimSpace(query.SessionLabel),
		PageSize:        query.PageSize,
		PageNumber:      query.Page,
		OrderByInstance: query.OrderByInstance,
	}
	for _, code := range strings.Split(query.Registries, ",") {
		if code = strings.TrimSpace(code); code != "" {
			filter.RegistryCodes = append(filter.RegistryCodes, code)
		}
	}

	page, err := h.sessions.List(c.Request.Context(), actorFromContext(c), query.CourseID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Sessions, &page.Pagination)
}
