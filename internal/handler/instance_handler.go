package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sirh-sync/internal/dto"
	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/internal/service"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/response"
)

type instanceService interface {
	Authorize(ctx context.Context, actor models.Actor, courseID string) error
	CreateInstance(ctx context.Context, req dto.CreateInstanceRequest) (string, error)
	Get(ctx context.Context, id string) (*models.EnrolmentInstance, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrolmentInstance, error)
	EnrolUser(ctx context.Context, courseID, instanceID, userID string) error
	GetInstanceUsers(ctx context.Context, instanceID string) (map[string]models.User, error)
	SetGroupSirh(ctx context.Context, inst *models.EnrolmentInstance, groupID string) (bool, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*models.EnrolmentInstance, error)
	DeleteInstance(ctx context.Context, id string) error
}

type rosterExporter interface {
	Export(ctx context.Context, actor models.Actor, instanceID, format string) (*service.ExportFile, error)
}

// InstanceHandler manages enrolment instances.
type InstanceHandler struct {
	instances instanceService
	exporter  rosterExporter
}

// NewInstanceHandler constructs an InstanceHandler.
func NewInstanceHandler(instances instanceService, exporter rosterExporter) *InstanceHandler {
	return &InstanceHandler{instances: instances, exporter: exporter}
}

// Create godoc
// @Summary Bind a course to a SIRH session
// @Tags Instances
// @Accept json
// @Produce json
// @Param payload body dto.CreateInstanceRequest true "Instance payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instances [post]
func (h *InstanceHandler) Create(c *gin.Context) {
	var req dto.CreateInstanceRequest
	if !bindJSON(c, &req, "invalid instance payload") {
		return
	}
	ctx := c.Request.Context()
	if err := h.instances.Authorize(ctx, actorFromContext(c), req.CourseID); err != nil {
		response.Error(c, err)
		return
	}
	id, err := h.instances.CreateInstance(ctx, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"id": id})
}

// ListByCourse godoc
// @Summary List the instances of a course
// @Tags Instances
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/instances [get]
func (h *InstanceHandler) ListByCourse(c *gin.Context) {
	courseID := c.Param("courseId")
	ctx := c.Request.Context()
	if err := h.instances.Authorize(ctx, actorFromContext(c), courseID); err != nil {
		response.Error(c, err)
		return
	}
	instances, err := h.instances.ListByCourse(ctx, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instances, nil)
}

// Get godoc
// @Summary Get an instance
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id} [get]
func (h *InstanceHandler) Get(c *gin.Context) {
	inst, ok := h.authorizedInstance(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, inst, nil)
}

// Users godoc
// @Summary List the users of the latest roster
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/users [get]
func (h *InstanceHandler) Users(c *gin.Context) {
	inst, ok := h.authorizedInstance(c)
	if !ok {
		return
	}
	users, err := h.instances.GetInstanceUsers(c.Request.Context(), inst.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.InstanceUser, 0, len(users))
	for _, u := range users {
		out = append(out, dto.InstanceUser{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Suspended: u.Suspended})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	response.JSON(c, http.StatusOK, out, nil)
}

// EnrolUser godoc
// @Summary Enrol an existing account through an instance
// @Tags Instances
// @Accept json
// @Param id path string true "Instance ID"
// @Param payload body dto.EnrolUserRequest true "Enrolment payload"
// @Success 204
// @Router /instances/{id}/users [post]
func (h *InstanceHandler) EnrolUser(c *gin.Context) {
	var req dto.EnrolUserRequest
	if !bindJSON(c, &req, "invalid enrolment payload") {
		return
	}
	inst, ok := h.authorizedInstance(c)
	if !ok {
		return
	}
	if err := h.instances.EnrolUser(c.Request.Context(), req.CourseID, inst.ID, req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetGroup godoc
// @Summary Link an instance to a course group
// @Tags Instances
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param payload body dto.SetGroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/group [put]
func (h *InstanceHandler) SetGroup(c *gin.Context) {
	var req dto.SetGroupRequest
	if !bindJSON(c, &req, "invalid group payload") {
		return
	}
	inst, ok := h.authorizedInstance(c)
	if !ok {
		return
	}
	linked, err := h.instances.SetGroupSirh(c.Request.Context(), inst, req.GroupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SetGroupResponse{Linked: linked}, nil)
}

// SetStatus godoc
// @Summary Enable or disable periodic synchronization of an instance
// @Tags Instances
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param payload body dto.UpdateInstanceStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/status [patch]
func (h *InstanceHandler) SetStatus(c *gin.Context) {
	var req dto.UpdateInstanceStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	if req.Enabled == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enabled is required"))
		return
	}
	inst, ok := h.authorizedInstance(c)
	if !ok {
		return
	}
	updated, err := h.instances.SetEnabled(c.Request.Context(), inst.ID, *req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Delete godoc
// @Summary Delete an instance
// @Tags Instances
// @Param id path string true "Instance ID"
// @Success 204
// @Router /instances/{id} [delete]
func (h *InstanceHandler) Delete(c *gin.Context) {
	inst, ok := h.authorizedInstance(c)
	if !ok {
		return
	}
	if err := h.instances.DeleteInstance(c.Request.Context(), inst.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Download the roster of an instance
// @Tags Instances
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Instance ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /instances/{id}/export [get]
func (h *InstanceHandler) Export(c *gin.Context) {
	file, err := h.exporter.Export(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func (h *InstanceHandler) authorizedInstance(c *gin.Context) (*models.EnrolmentInstance, bool) {
	ctx := c.Request.Context()
	inst, err := h.instances.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if err := h.instances.Authorize(ctx, actorFromContext(c), inst.CourseID); err != nil {
		response.Error(c, err)
		return nil, false
	}
	return inst, true
}
