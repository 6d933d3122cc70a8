package models

import "time"

// EnrolmentStatus represents the course access state of an enrolment.
type EnrolmentStatus string

// Enrolment statuses.
const (
	EnrolmentStatusActive    EnrolmentStatus = "ACTIVE"
	EnrolmentStatusSuspended EnrolmentStatus = "SUSPENDED"
)

// SirhEnrolment is a course enrolment created through an enrolment instance.
// GroupID is the group the synchronization last placed the user in; InRoster
// tells whether the latest roster still lists the user.
type SirhEnrolment struct {
	ID         string          `db:"id" json:"id"`
	InstanceID string          `db:"instance_id" json:"instance_id"`
	CourseID   string          `db:"course_id" json:"course_id"`
	UserID     string          `db:"user_id" json:"user_id"`
	GroupID    *string         `db:"group_id" json:"group_id,omitempty"`
	InRoster   bool            `db:"in_roster" json:"in_roster"`
	Status     EnrolmentStatus `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
