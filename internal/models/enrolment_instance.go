package models

import (
	"fmt"
	"time"
)

// InstanceStatus toggles whether an enrolment instance takes part in synchronization.
type InstanceStatus string

// Instance statuses.
const (
	InstanceStatusEnabled  InstanceStatus = "ENABLED"
	InstanceStatusDisabled InstanceStatus = "DISABLED"
)

// EnrolmentInstance binds a course to one external SIRH session.
type EnrolmentInstance struct {
	ID                 string         `db:"id" json:"id"`
	CourseID           string         `db:"course_id" json:"course_id"`
	RegistryID         string         `db:"registry_id" json:"registry_id"`
	TrainingExternalID string         `db:"training_external_id" json:"training_external_id"`
	SessionExternalID  string         `db:"session_external_id" json:"session_external_id"`
	Status             InstanceStatus `db:"status" json:"status"`
	GroupID            *string        `db:"group_id" json:"group_id,omitempty"`
	LastSyncActorID    *string        `db:"last_sync_actor_id" json:"last_sync_actor_id,omitempty"`
	LastSyncAt         *time.Time     `db:"last_sync_at" json:"last_sync_at,omitempty"`
	TrainingName       string         `db:"training_name" json:"training_name"`
	SessionName        string         `db:"session_name" json:"session_name"`
	SessionStart       *time.Time     `db:"session_start" json:"session_start,omitempty"`
	SessionEnd         *time.Time     `db:"session_end" json:"session_end,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Key returns the external identity of the instance.
func (i EnrolmentInstance) Key() InstanceKey {
	return InstanceKey{
		CourseID:           i.CourseID,
		RegistryID:         i.RegistryID,
		TrainingExternalID: i.TrainingExternalID,
		SessionExternalID:  i.SessionExternalID,
	}
}

// Enabled reports whether the instance takes part in synchronization.
func (i EnrolmentInstance) Enabled() bool {
	return i.Status == "" || i.Status == InstanceStatusEnabled
}

// InstanceKey is the unique (course, registry, training, session) tuple of an instance.
type InstanceKey struct {
	CourseID           string `db:"course_id" json:"course_id"`
	RegistryID         string `db:"registry_id" json:"registry_id"`
	TrainingExternalID string `db:"training_external_id" json:"training_external_id"`
	SessionExternalID  string `db:"session_external_id" json:"session_external_id"`
}

// SessionKey drops the course from the key; it identifies the external session only.
func (k InstanceKey) SessionKey() string {
	return fmt.Sprintf("%s/%s/%s", k.RegistryID, k.TrainingExternalID, k.SessionExternalID)
}

// DefaultGroupName is the deterministic name of the group owned by an instance.
func DefaultGroupName(registryID, trainingExternalID, sessionExternalID string) string {
	return fmt.Sprintf("SIRH - %s - %s - %s", registryID, trainingExternalID, sessionExternalID)
}
