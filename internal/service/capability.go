package service

import (
	"context"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

// Capability decides whether an actor may operate SIRH enrolment on a course.
type Capability interface {
	CanManageSirh(ctx context.Context, actor models.Actor, courseID string) (bool, error)
}

type capabilityRoleReader interface {
	GetRole(ctx context.Context, courseID, userID string) (models.CourseRole, error)
}

// RoleCapability grants the capability to platform administrators and to course
// designers or managers.
type RoleCapability struct {
	roles capabilityRoleReader
}

// NewRoleCapability constructs a RoleCapability.
func NewRoleCapability(roles capabilityRoleReader) *RoleCapability {
	return &RoleCapability{roles: roles}
}

// CanManageSirh implements Capability.
func (c *RoleCapability) CanManageSirh(ctx context.Context, actor models.Actor, courseID string) (bool, error) {
	if actor.IsPlatformAdmin() {
		return true, nil
	}
	if actor.UserID == "" || courseID == "" {
		return false, nil
	}
	role, err := c.roles.GetRole(ctx, courseID, actor.UserID)
	if err != nil {
		return false, err
	}
	return role == models.CourseRoleDesigner || role.Outranks(models.CourseRoleDesigner), nil
}

func requireCapability(ctx context.Context, capability Capability, actor models.Actor, courseID string) error {
	if capability == nil {
		return appErrors.ErrPermissionDenied
	}
	allowed, err := capability.CanManageSirh(ctx, actor, courseID)
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrInternal, err, "failed to check SIRH capability")
	}
	if !allowed {
		return appErrors.ErrPermissionDenied
	}
	return nil
}
