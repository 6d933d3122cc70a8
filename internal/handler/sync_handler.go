package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sirh-sync/internal/dto"
	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/response"
)

type manualSyncer interface {
	SyncSession(ctx context.Context, actor models.Actor, req dto.SyncSessionRequest) (*models.ManualSyncResult, error)
	SyncInstance(ctx context.Context, actor models.Actor, instanceID string) (*models.ManualSyncResult, error)
	Preview(ctx context.Context, actor models.Actor, req dto.SyncSessionRequest) (*models.ValidationResult, error)
	Enqueue(ctx context.Context, actor models.Actor, instanceID string) (*dto.QueuedSyncResponse, error)
}

// RunTrigger starts a periodic sync run out of schedule.
type RunTrigger interface {
	Trigger() bool
}

// SyncHandler exposes interactive synchronization.
type SyncHandler struct {
	syncer  manualSyncer
	trigger RunTrigger
}

// NewSyncHandler constructs a SyncHandler. trigger may be nil when the scheduler is off.
func NewSyncHandler(syncer manualSyncer, trigger RunTrigger) *SyncHandler {
	return &SyncHandler{syncer: syncer, trigger: trigger}
}

// SyncSession godoc
// @Summary Synchronize a SIRH session into a course
// @Description Creates the instance when needed, then enrols the accepted roster rows.
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.SyncSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /sync [post]
func (h *SyncHandler) SyncSession(c *gin.Context) {
	var req dto.SyncSessionRequest
	if !bindJSON(c, &req, "invalid sync payload") {
		return
	}
	result, err := h.syncer.SyncSession(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Preview godoc
// @Summary Validate a SIRH roster without enrolling anybody
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body dto.SyncSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /sync/preview [post]
func (h *SyncHandler) Preview(c *gin.Context) {
	var req dto.SyncSessionRequest
	if !bindJSON(c, &req, "invalid sync payload") {
		return
	}
	result, err := h.syncer.Preview(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SyncInstance godoc
// @Summary Synchronize an existing instance now
// @Tags Sync
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/sync [post]
func (h *SyncHandler) SyncInstance(c *gin.Context) {
	result, err := h.syncer.SyncInstance(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Enqueue godoc
// @Summary Queue a synchronization of an instance
// @Tags Sync
// @Produce json
// @Param id path string true "Instance ID"
// @Success 202 {object} response.Envelope
// @Router /instances/{id}/sync/queue [post]
func (h *SyncHandler) Enqueue(c *gin.Context) {
	queued, err := h.syncer.Enqueue(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, queued)
}

// TriggerRun godoc
// @Summary Start a periodic synchronization run now
// @Tags Sync
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sync/run [post]
func (h *SyncHandler) TriggerRun(c *gin.Context) {
	if h.trigger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrConflict, "periodic synchronization is disabled"))
		return
	}
	if !h.trigger.Trigger() {
		response.Error(c, appErrors.Clone(appErrors.ErrConflict, "a synchronization run is already in progress"))
		return
	}
	response.Accepted(c, gin.H{"status": "started"})
}
