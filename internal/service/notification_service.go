package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/internal/notify"
	"github.com/noah-isme/sirh-sync/pkg/mailer"
)

type recipientReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NotificationService composes and sends synchronization emails. Delivery is
// fire-and-forget: failures are logged and never retried.
type NotificationService struct {
	mailer      mailer.Sender
	users       recipientReader
	platformURL string
	logger      *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(sender mailer.Sender, users recipientReader, platformURL string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		mailer:      sender,
		users:       users,
		platformURL: strings.TrimRight(platformURL, "/"),
		logger:      logger,
	}
}

// SessionDataChanged tells the last sync actor that the session display data changed.
func (s *NotificationService) SessionDataChanged(ctx context.Context, inst models.EnrolmentInstance) {
	recipient, ok := s.lastActor(ctx, inst)
	if !ok {
		return
	}
	msg, err := notify.SessionDataChanged(notify.SessionChange{
		RecipientName: recipient.FullName(),
		TrainingName:  inst.TrainingName,
		SessionName:   inst.SessionName,
		Start:         inst.SessionStart,
		End:           inst.SessionEnd,
		CourseURL:     s.courseURL(inst.CourseID),
	})
	s.deliver(ctx, *recipient, msg, err, inst.ID)
}

// RosterChanged sends the reconciliation summary to the last sync actor.
func (s *NotificationService) RosterChanged(ctx context.Context, inst models.EnrolmentInstance, result models.ReconcileResult, rejected int) {
	recipient, ok := s.lastActor(ctx, inst)
	if !ok {
		return
	}
	msg, err := notify.RosterChanged(notify.RosterChange{
		RecipientName: recipient.FullName(),
		TrainingName:  inst.TrainingName,
		SessionName:   inst.SessionName,
		Created:       len(result.Created),
		Enrolled:      result.Enrolled,
		Removed:       result.Removed,
		Regrouped:     result.Regrouped,
		Failed:        result.Failed,
		Rejected:      rejected,
		CourseURL:     s.courseURL(inst.CourseID),
	})
	s.deliver(ctx, *recipient, msg, err, inst.ID)
}

// AccountCreated sends its credentials to a newly created account.
func (s *NotificationService) AccountCreated(ctx context.Context, inst models.EnrolmentInstance, account models.CreatedAccount) {
	msg, err := notify.NewAccount(notify.AccountCreated{
		RecipientName: account.User.FullName(),
		Username:      account.User.Username,
		Password:      account.Password,
		TrainingName:  inst.TrainingName,
		SessionName:   inst.SessionName,
		LoginURL:      s.loginURL(),
	})
	s.deliver(ctx, account.User, msg, err, inst.ID)
}

func (s *NotificationService) lastActor(ctx context.Context, inst models.EnrolmentInstance) (*models.User, bool) {
	if inst.LastSyncActorID == nil || *inst.LastSyncActorID == "" {
		return nil, false
	}
	user, err := s.users.FindByID(ctx, *inst.LastSyncActorID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load notification recipient", zap.String("instance_id", inst.ID), zap.Error(err))
		}
		return nil, false
	}
	return user, true
}

func (s *NotificationService) deliver(ctx context.Context, recipient models.User, msg notify.Message, renderErr error, instanceID string) {
	if renderErr != nil {
		s.logger.Error("failed to render notification", zap.String("instance_id", instanceID), zap.Error(renderErr))
		return
	}
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendEmail(ctx, recipient, msg.Subject, msg.Plain, msg.HTML); err != nil {
		s.logger.Warn("failed to send notification",
			zap.String("instance_id", instanceID),
			zap.String("to", recipient.Email),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) courseURL(courseID string) string {
	if s.platformURL == "" || courseID == "" {
		return ""
	}
	return fmt.Sprintf("%s/courses/%s", s.platformURL, courseID)
}

func (s *NotificationService) loginURL() string {
	if s.platformURL == "" {
		return ""
	}
	return s.platformURL + "/login"
}
