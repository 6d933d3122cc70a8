package dto

import "time"

// CreateInstanceRequest binds a course to an external SIRH session.
type CreateInstanceRequest struct {
	CourseID           string `json:"courseId" validate:"required"`
	RegistryID         string `json:"registryId" validate:"required"`
	TrainingExternalID string `json:"trainingId" validate:"required"`
	SessionExternalID  string `json:"sessionId" validate:"required"`
}

// SyncSessionRequest asks for an interactive synchronization of one external session.
type SyncSessionRequest struct {
	CourseID           string `json:"courseId" validate:"required"`
	RegistryID         string `json:"registryId" validate:"required"`
	TrainingExternalID string `json:"trainingId" validate:"required"`
	SessionExternalID  string `json:"sessionId" validate:"required"`
}

// EnrolUserRequest enrols an existing account through an instance.
type EnrolUserRequest struct {
	CourseID string `json:"courseId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
}

// SetGroupRequest links an instance to a course group. An empty group unlinks it.
type SetGroupRequest struct {
	GroupID string `json:"groupId"`
}

// UpdateInstanceStatusRequest enables or disables an instance.
type UpdateInstanceStatusRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SessionListQuery carries the query string of the session browser.
type SessionListQuery struct {
	CourseID        string `form:"courseId" validate:"required"`
	Registries      string `form:"sirh"`
	TrainingLabel   string `form:"training"`
	SessionLabel    string `form:"session"`
	Page            int    `form:"page" validate:"omitempty,min=1"`
	PageSize        int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
	OrderByInstance bool   `form:"orderByInstance"`
}

// InstanceUser is a user enrolled through an instance.
type InstanceUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Suspended bool   `json:"suspended"`
}

// SetGroupResponse reports whether the group was linked.
type SetGroupResponse struct {
	Linked bool `json:"linked"`
}

// QueuedSyncResponse identifies a queued synchronization.
type QueuedSyncResponse struct {
	JobID      string    `json:"jobId"`
	InstanceID string    `json:"instanceId"`
	QueuedAt   time.Time `json:"queuedAt"`
}
