package models

// ValidationOutcome is the bucket a roster row lands in.
type ValidationOutcome string

// Validation outcomes.
const (
	OutcomeAccepted ValidationOutcome = "ACCEPTED"
	OutcomeWarning  ValidationOutcome = "WARNING"
	OutcomeError    ValidationOutcome = "ERROR"
)

// Message keys reported by roster validation.
const (
	MessageErrorSpecialChars    = "error_specials_chars"
	MessageErrorEmailNotValid   = "error_email_not_valid"
	MessageErrorUserRole        = "error_user_role"
	MessageWarningUnsuspendUser = "warning_unsuspend_user"
	MessageWarningUserRole      = "warning_user_role"
)

// ValidationMessage is a templated, human-readable validation notice.
type ValidationMessage struct {
	Key   string `json:"key"`
	Line  int    `json:"line"`
	Email string `json:"email"`
	Text  string `json:"text"`
}

// ValidationRow is one preview entry: the candidate and the bucket it landed in.
type ValidationRow struct {
	Line    int                `json:"line"`
	User    RosterUser         `json:"user"`
	Outcome ValidationOutcome  `json:"outcome"`
	Message *ValidationMessage `json:"message,omitempty"`
}

// ValidationResult aggregates a validation pass.
// Preview holds every candidate in input order; Accepted holds accepted and warned rows.
type ValidationResult struct {
	Accepted []RosterUser        `json:"accepted"`
	Errors   []ValidationMessage `json:"errors,omitempty"`
	Warnings []ValidationMessage `json:"warnings,omitempty"`
	Preview  []ValidationRow     `json:"preview"`
}

// InstanceContext is the enrolment context a roster is validated against.
type InstanceContext struct {
	CourseID   string
	InstanceID string
	TargetRole CourseRole
}
