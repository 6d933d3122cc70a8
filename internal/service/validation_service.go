package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

// forbiddenChars may not appear in the email or name fields of a roster row.
const forbiddenChars = "#<>;\"\\|{}"

type validationAccountReader interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type validationRoleReader interface {
	GetRole(ctx context.Context, courseID, userID string) (models.CourseRole, error)
}

// Notifier receives the messages produced while validating a roster.
type Notifier interface {
	ReportError(ctx context.Context, msg models.ValidationMessage)
	ReportWarning(ctx context.Context, msg models.ValidationMessage)
}

type messageSource interface {
	Collected() (errs, warnings []models.ValidationMessage)
}

// MessageCollector keeps messages so they are returned with the validation result.
type MessageCollector struct {
	errors   []models.ValidationMessage
	warnings []models.ValidationMessage
}

// NewMessageCollector creates an empty collector.
func NewMessageCollector() *MessageCollector {
	return &MessageCollector{}
}

// ReportError implements Notifier.
func (c *MessageCollector) ReportError(_ context.Context, msg models.ValidationMessage) {
	c.errors = append(c.errors, msg)
}

// ReportWarning implements Notifier.
func (c *MessageCollector) ReportWarning(_ context.Context, msg models.ValidationMessage) {
	c.warnings = append(c.warnings, msg)
}

// Collected returns the messages gathered so far.
func (c *MessageCollector) Collected() ([]models.ValidationMessage, []models.ValidationMessage) {
	return c.errors, c.warnings
}

// LogNotifier writes messages to the operational log as soon as they are produced.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// ReportError implements Notifier.
func (n *LogNotifier) ReportError(_ context.Context, msg models.ValidationMessage) {
	n.logger.Warn(msg.Text, zap.String("key", msg.Key), zap.Int("line", msg.Line), zap.String("email", msg.Email))
}

// ReportWarning implements Notifier.
func (n *LogNotifier) ReportWarning(_ context.Context, msg models.ValidationMessage) {
	n.logger.Info(msg.Text, zap.String("key", msg.Key), zap.Int("line", msg.Line), zap.String("email", msg.Email))
}

// ValidationService classifies roster rows before they reach reconciliation.
type ValidationService struct {
	accounts  validationAccountReader
	roles     validationRoleReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewValidationService constructs a ValidationService.
func NewValidationService(accounts validationAccountReader, roles validationRoleReader, validate *validator.Validate, logger *zap.Logger) *ValidationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{accounts: accounts, roles: roles, validator: validate, logger: logger}
}

// Validate runs the rule chain over candidates in order. Every candidate appears once in
// Preview. Errors and Warnings are only filled when the notifier collects messages; a nil
// notifier collects.
func (s *ValidationService) Validate(ctx context.Context, candidates []models.RosterUser, ictx models.InstanceContext, notifier Notifier) (models.ValidationResult, error) {
	if notifier == nil {
		notifier = NewMessageCollector()
	}
	target := ictx.TargetRole
	if !target.Valid() {
		target = models.CourseRoleParticipant
	}

	result := models.ValidationResult{
		Accepted: make([]models.RosterUser, 0, len(candidates)),
		Preview:  make([]models.ValidationRow, 0, len(candidates)),
	}
	for i, candidate := range candidates {
		row, err := s.classify(ctx, i+1, candidate, ictx.CourseID, target)
		if err != nil {
			return models.ValidationResult{}, err
		}
		switch row.Outcome {
		case models.OutcomeError:
			notifier.ReportError(ctx, *row.Message)
		case models.OutcomeWarning:
			notifier.ReportWarning(ctx, *row.Message)
			result.Accepted = append(result.Accepted, candidate)
		default:
			result.Accepted = append(result.Accepted, candidate)
		}
		result.Preview = append(result.Preview, row)
	}

	if source, ok := notifier.(messageSource); ok {
		result.Errors, result.Warnings = source.Collected()
	}
	return result, nil
}

func (s *ValidationService) classify(ctx context.Context, line int, candidate models.RosterUser, courseID string, target models.CourseRole) (models.ValidationRow, error) {
	row := models.ValidationRow{Line: line, User: candidate, Outcome: models.OutcomeAccepted}
	reject := func(key, text string) (models.ValidationRow, error) {
		row.Outcome = models.OutcomeError
		row.Message = &models.ValidationMessage{Key: key, Line: line, Email: candidate.Email, Text: text}
		return row, nil
	}
	warn := func(key, text string) (models.ValidationRow, error) {
		row.Outcome = models.OutcomeWarning
		row.Message = &models.ValidationMessage{Key: key, Line: line, Email: candidate.Email, Text: text}
		return row, nil
	}

	if hasForbiddenChars(candidate.Email, candidate.FirstName, candidate.LastName) {
		return reject(models.MessageErrorSpecialChars,
			fmt.Sprintf("line %d: %s contains forbidden characters (%s)", line, displayName(candidate), forbiddenChars))
	}
	if !s.validEmail(candidate.Email) {
		return reject(models.MessageErrorEmailNotValid,
			fmt.Sprintf("line %d: email %q is not valid", line, candidate.Email))
	}

	account, err := s.accounts.FindByEmail(ctx, candidate.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return row, nil
		}
		return row, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to look up account")
	}

	role, err := s.roles.GetRole(ctx, courseID, account.ID)
	if err != nil {
		return row, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to look up course role")
	}

	if role != "" && role.Outranks(target) {
		return reject(models.MessageErrorUserRole,
			fmt.Sprintf("line %d: %s already holds role %s in this course and cannot become %s", line, candidate.Email, role, target))
	}
	if account.Suspended {
		return warn(models.MessageWarningUnsuspendUser,
			fmt.Sprintf("line %d: account %s is suspended and will be reactivated", line, candidate.Email))
	}
	if role != "" && role != target {
		return warn(models.MessageWarningUserRole,
			fmt.Sprintf("line %d: role of %s will change from %s to %s", line, candidate.Email, role, target))
	}
	return row, nil
}

func (s *ValidationService) validEmail(email string) bool {
	if err := s.validator.Var(email, "required,email"); err != nil {
		return false
	}
	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

func hasForbiddenChars(fields ...string) bool {
	for _, field := range fields {
		if strings.ContainsAny(field, forbiddenChars) {
			return true
		}
	}
	return false
}

func displayName(u models.RosterUser) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return fmt.Sprintf("%s <%s>", name, u.Email)
}
