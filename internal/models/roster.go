package models

import (
	"strings"
	"time"
)

// RosterUser is a user row received from the SIRH registry.
type RosterUser struct {
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Username   string     `json:"username"`
	AuthMethod AuthMethod `json:"auth_method"`
	Confirmed  bool       `json:"confirmed"`
}

// NewRosterUser normalises a registry row using the account template of registry-sourced users.
func NewRosterUser(email, firstName, lastName string) RosterUser {
	email = strings.ToLower(strings.TrimSpace(email))
	return RosterUser{
		Email:      email,
		FirstName:  strings.TrimSpace(firstName),
		LastName:   strings.TrimSpace(lastName),
		Username:   email,
		AuthMethod: AuthMethodManual,
		Confirmed:  true,
	}
}

// RosterSession summarises one SIRH session.
type RosterSession struct {
	RegistryID         string     `json:"registry_id"`
	RegistryName       string     `json:"registry_name,omitempty"`
	TrainingExternalID string     `json:"training_external_id"`
	TrainingName       string     `json:"training_name"`
	SessionExternalID  string     `json:"session_external_id"`
	SessionName        string     `json:"session_name"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	InstanceExists     bool       `json:"instance_exists"`
}

// SessionUsers is the result of a roster pull for one session.
type SessionUsers struct {
	Users          []RosterUser   `json:"users"`
	TotalUserCount int            `json:"total_user_count"`
	SessionChanged bool           `json:"session_changed"`
	RosterChanged  bool           `json:"roster_changed"`
	Session        *RosterSession `json:"session,omitempty"`
}

// SessionFilter holds the criteria of a SIRH session lookup.
type SessionFilter struct {
	RegistryCodes   []string `json:"registry_codes"`
	TrainingLabel   string   `json:"training_label,omitempty"`
	SessionLabel    string   `json:"session_label,omitempty"`
	PageSize        int      `json:"page_size"`
	PageNumber      int      `json:"page_number"`
	OrderByInstance bool     `json:"order_by_instance,omitempty"`
	// ExcludeInstances lists "registry/training/session" keys already bound locally; the
	// registry uses it to sort sessions by the has-local-instance flag.
	ExcludeInstances []string `json:"-"`
}

// SessionPage is one page of the session browser.
type SessionPage struct {
	Sessions   []RosterSession `json:"sessions"`
	Pagination Pagination      `json:"pagination"`
}
