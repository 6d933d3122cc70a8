package sirh

import (
	"fmt"

	"github.com/noah-isme/sirh-sync/internal/models"
)

// sessionDTO is a session row as returned by the registry.
type sessionDTO struct {
	RegistryID    string `json:"sirh"`
	RegistryLabel string `json:"libelleSirh"`
	TrainingID    string `json:"identifiantFormation"`
	TrainingLabel string `json:"libelleFormation"`
	SessionID     string `json:"identifiantSession"`
	SessionLabel  string `json:"libelleSession"`
	StartDate     Date   `json:"dateDebut"`
	EndDate       Date   `json:"dateFin"`
}

func (s sessionDTO) toModel() models.RosterSession {
	return models.RosterSession{
		RegistryID:         s.RegistryID,
		RegistryName:       s.RegistryLabel,
		TrainingExternalID: s.TrainingID,
		TrainingName:       s.TrainingLabel,
		SessionExternalID:  s.SessionID,
		SessionName:        s.SessionLabel,
		StartDate:          s.StartDate.Ptr(),
		EndDate:            s.EndDate.Ptr(),
	}
}

type sessionPage struct {
	Content       []sessionDTO `json:"contenu"`
	TotalElements int          `json:"totalElements"`
}

type countEnvelope struct {
	TotalElements int `json:"totalElements"`
}

type userDTO struct {
	Email     string `json:"email"`
	LastName  string `json:"nom"`
	FirstName string `json:"prenom"`
}

type sessionUsersEnvelope struct {
	Session        *sessionDTO `json:"Session"`
	Users          []userDTO   `json:"UtilisateurSirh"`
	EnrolledCount  int         `json:"NombreUtilisateursInscrits"`
	SessionChanged bool        `json:"IndicateurMajSession"`
	RosterChanged  bool        `json:"IndicateurMajInscriptions"`
}

// HTTPError describes a non-200 answer of the registry.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}
