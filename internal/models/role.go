package models

// CourseRole is the role a user holds inside a course.
type CourseRole string

// Course roles ordered by privilege.
const (
	CourseRoleObserver    CourseRole = "observer"
	CourseRoleParticipant CourseRole = "participant"
	CourseRoleTutor       CourseRole = "tutor"
	CourseRoleDesigner    CourseRole = "designer"
	CourseRoleManager     CourseRole = "manager"
)

var courseRoleRank = map[CourseRole]int{
	CourseRoleObserver:    0,
	CourseRoleParticipant: 1,
	CourseRoleTutor:       2,
	CourseRoleDesigner:    3,
	CourseRoleManager:     4,
}

// Rank returns the privilege level of the role; unknown roles rank lowest.
func (r CourseRole) Rank() int {
	if rank, ok := courseRoleRank[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether r is a known course role.
func (r CourseRole) Valid() bool {
	_, ok := courseRoleRank[r]
	return ok
}

// Outranks reports whether r is strictly more privileged than other.
func (r CourseRole) Outranks(other CourseRole) bool {
	return r.Rank() > other.Rank()
}

// PlatformRole is the global role carried by access tokens.
type PlatformRole string

// Platform roles.
const (
	PlatformRoleSuperAdmin PlatformRole = "SUPERADMIN"
	PlatformRoleAdmin      PlatformRole = "ADMIN"
	PlatformRoleUser       PlatformRole = "USER"
)

// Actor identifies who performs an interactive operation.
type Actor struct {
	UserID string       `json:"user_id"`
	Role   PlatformRole `json:"role"`
}

// IsPlatformAdmin reports whether the actor holds a global admin role.
func (a Actor) IsPlatformAdmin() bool {
	return a.Role == PlatformRoleAdmin || a.Role == PlatformRoleSuperAdmin
}
