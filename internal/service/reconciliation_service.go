package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/database"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

const (
	generatedPasswordLength = 14
	passwordLower           = "abcdefghijkmnopqrstuvwxyz"
	passwordUpper           = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordDigits          = "23456789"
	passwordSymbols         = "!@$%*-_+="
)

type reconcileAccountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SetSuspended(ctx context.Context, id string, suspended bool) error
}

type reconcileEnrolmentStore interface {
	ListByInstance(ctx context.Context, instanceID string) ([]models.SirhEnrolment, error)
	ListRosterUsers(ctx context.Context, instanceID string) ([]models.User, error)
	Upsert(ctx context.Context, enrolment *models.SirhEnrolment) error
}

type groupMembershipStore interface {
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
}

type courseRoleStore interface {
	GetRole(ctx context.Context, courseID, userID string) (models.CourseRole, error)
	SetRole(ctx context.Context, courseID, userID string, role models.CourseRole) error
}

// ReconciliationService converges instance enrolments and group membership onto a roster.
type ReconciliationService struct {
	accounts   reconcileAccountStore
	enrolments reconcileEnrolmentStore
	groups     groupMembershipStore
	roles      courseRoleStore
	logger     *zap.Logger

	hashCost int
	password func() (string, error)
}

// NewReconciliationService constructs a ReconciliationService.
func NewReconciliationService(accounts reconcileAccountStore, enrolments reconcileEnrolmentStore, groups groupMembershipStore, roles courseRoleStore, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		accounts:   accounts,
		enrolments: enrolments,
		groups:     groups,
		roles:      roles,
		logger:     logger,
		hashCost:   bcrypt.DefaultCost,
		password:   generatePassword,
	}
}

// SynchronizeUsers makes the instance's enrolments and group membership match roster.
// Users missing from the roster leave the instance group but keep their course
// enrolment. A failure on one user is counted and does not stop the pass.
func (s *ReconciliationService) SynchronizeUsers(ctx context.Context, instance models.EnrolmentInstance, roster []models.RosterUser) (*models.ReconcileResult, error) {
	if instance.ID == "" || instance.CourseID == "" {
		return nil, appErrors.Clone(appErrors.ErrMissingKey, "instance id and course id are required")
	}

	current, err := s.enrolments.ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load instance enrolments")
	}
	byUser := make(map[string]models.SirhEnrolment, len(current))
	for _, enrolment := range current {
		byUser[enrolment.UserID] = enrolment
	}

	log := s.logger.With(zap.String("instance_id", instance.ID), zap.String("course_id", instance.CourseID))
	result := &models.ReconcileResult{}
	kept := make(map[string]struct{}, len(roster))
	seenEmails := make(map[string]struct{}, len(roster))
	var unresolved []string

	for _, entry := range roster {
		email := strings.ToLower(strings.TrimSpace(entry.Email))
		if _, dup := seenEmails[email]; dup {
			continue
		}
		seenEmails[email] = struct{}{}

		account, password, err := s.resolveAccount(ctx, entry)
		if err != nil {
			log.Warn("failed to resolve roster account", zap.String("email", email), zap.Error(err))
			result.Failed++
			unresolved = append(unresolved, email)
			continue
		}
		if password != "" {
			result.Created = append(result.Created, models.CreatedAccount{User: *account, Password: password})
		}
		if _, dup := kept[account.ID]; dup {
			continue
		}
		kept[account.ID] = struct{}{}

		if err := s.ensureAccess(ctx, instance.CourseID, account); err != nil {
			log.Warn("failed to restore course access", zap.String("user_id", account.ID), zap.Error(err))
			result.Failed++
			continue
		}

		enrolment, exists := byUser[account.ID]
		switch {
		case !exists || !enrolment.InRoster:
			if !exists {
				enrolment = models.SirhEnrolment{InstanceID: instance.ID, CourseID: instance.CourseID, UserID: account.ID}
			}
			if err := s.enrol(ctx, &enrolment, instance.GroupID); err != nil {
				log.Warn("failed to enrol roster user", zap.String("user_id", account.ID), zap.Error(err))
				result.Failed++
				continue
			}
			result.Enrolled++
		case !sameGroup(enrolment.GroupID, instance.GroupID):
			if err := s.regroup(ctx, &enrolment, instance.GroupID); err != nil {
				log.Warn("failed to move roster user to the instance group", zap.String("user_id", account.ID), zap.Error(err))
				result.Failed++
				continue
			}
			result.Regrouped++
		default:
			result.Unchanged++
		}
	}

	if len(unresolved) > 0 && !s.keepUnresolved(ctx, instance.ID, unresolved, kept) {
		log.Warn("skipping roster removals, unresolved users could not be matched", zap.Int("unresolved", len(unresolved)))
		current = nil
	}

	for _, enrolment := range current {
		if !enrolment.InRoster {
			continue
		}
		if _, ok := kept[enrolment.UserID]; ok {
			continue
		}
		if err := s.drop(ctx, &enrolment, instance.GroupID); err != nil {
			log.Warn("failed to remove user from the instance group", zap.String("user_id", enrolment.UserID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Removed++
	}

	log.Info("roster reconciled",
		zap.Int("created", len(result.Created)),
		zap.Int("enrolled", result.Enrolled),
		zap.Int("removed", result.Removed),
		zap.Int("regrouped", result.Regrouped),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// keepUnresolved marks the enrolled users behind unresolved roster emails as kept.
// It reports false when the current roster members cannot be loaded.
func (s *ReconciliationService) keepUnresolved(ctx context.Context, instanceID string, emails []string, kept map[string]struct{}) bool {
	members, err := s.enrolments.ListRosterUsers(ctx, instanceID)
	if err != nil {
		s.logger.Warn("failed to load roster members", zap.String("instance_id", instanceID), zap.Error(err))
		return false
	}
	pending := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		pending[email] = struct{}{}
	}
	for _, member := range members {
		if _, ok := pending[strings.ToLower(strings.TrimSpace(member.Email))]; ok {
			kept[member.ID] = struct{}{}
		}
	}
	return true
}

// EnrolAccount enrols a single existing account through the instance.
func (s *ReconciliationService) EnrolAccount(ctx context.Context, instance models.EnrolmentInstance, account *models.User) error {
	if err := s.ensureAccess(ctx, instance.CourseID, account); err != nil {
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to grant course access")
	}
	enrolment := models.SirhEnrolment{InstanceID: instance.ID, CourseID: instance.CourseID, UserID: account.ID}
	if err := s.enrol(ctx, &enrolment, instance.GroupID); err != nil {
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to enrol user")
	}
	return nil
}

func (s *ReconciliationService) resolveAccount(ctx context.Context, entry models.RosterUser) (*models.User, string, error) {
	tmpl := models.NewRosterUser(entry.Email, entry.FirstName, entry.LastName)
	existing, err := s.accounts.FindByEmail(ctx, tmpl.Email)
	if err == nil {
		return existing, "", nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("find account: %w", err)
	}

	password, err := s.password()
	if err != nil {
		return nil, "", fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	account := &models.User{
		Username:     tmpl.Username,
		Email:        tmpl.Email,
		FirstName:    tmpl.FirstName,
		LastName:     tmpl.LastName,
		AuthMethod:   tmpl.AuthMethod,
		Confirmed:    tmpl.Confirmed,
		PasswordHash: string(hash),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, "", fmt.Errorf("create account: %w", err)
		}
		existing, findErr := s.accounts.FindByEmail(ctx, tmpl.Email)
		if findErr != nil {
			return nil, "", fmt.Errorf("re-resolve account: %w", findErr)
		}
		return existing, "", nil
	}
	return account, password, nil
}

// ensureAccess lifts a suspension and grants the participant role without ever
// downgrading a more privileged role.
func (s *ReconciliationService) ensureAccess(ctx context.Context, courseID string, account *models.User) error {
	if account.Suspended {
		if err := s.accounts.SetSuspended(ctx, account.ID, false); err != nil {
			return err
		}
		account.Suspended = false
	}
	role, err := s.roles.GetRole(ctx, courseID, account.ID)
	if err != nil {
		return err
	}
	if role == models.CourseRoleParticipant || role.Outranks(models.CourseRoleParticipant) {
		return nil
	}
	return s.roles.SetRole(ctx, courseID, account.ID, models.CourseRoleParticipant)
}

func (s *ReconciliationService) enrol(ctx context.Context, enrolment *models.SirhEnrolment, groupID *string) error {
	if groupID != nil {
		if err := s.groups.AddMember(ctx, *groupID, enrolment.UserID); err != nil {
			return err
		}
	}
	enrolment.InRoster = true
	enrolment.GroupID = copyID(groupID)
	enrolment.Status = models.EnrolmentStatusActive
	return s.enrolments.Upsert(ctx, enrolment)
}

func (s *ReconciliationService) regroup(ctx context.Context, enrolment *models.SirhEnrolment, groupID *string) error {
	if enrolment.GroupID != nil {
		if err := s.groups.RemoveMember(ctx, *enrolment.GroupID, enrolment.UserID); err != nil {
			return err
		}
	}
	if groupID != nil {
		if err := s.groups.AddMember(ctx, *groupID, enrolment.UserID); err != nil {
			return err
		}
	}
	enrolment.GroupID = copyID(groupID)
	return s.enrolments.Upsert(ctx, enrolment)
}

func (s *ReconciliationService) drop(ctx context.Context, enrolment *models.SirhEnrolment, groupID *string) error {
	if enrolment.GroupID != nil {
		if err := s.groups.RemoveMember(ctx, *enrolment.GroupID, enrolment.UserID); err != nil {
			return err
		}
	}
	if groupID != nil && !sameGroup(enrolment.GroupID, groupID) {
		if err := s.groups.RemoveMember(ctx, *groupID, enrolment.UserID); err != nil {
			return err
		}
	}
	enrolment.InRoster = false
	enrolment.GroupID = nil
	return s.enrolments.Upsert(ctx, enrolment)
}

func sameGroup(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func generatePassword() (string, error) {
	sets := []string{passwordLower, passwordUpper, passwordDigits, passwordSymbols}
	all := strings.Join(sets, "")
	buf := make([]byte, 0, generatedPasswordLength)
	for i := 0; i < generatedPasswordLength; i++ {
		set := all
		if i < len(sets) {
			set = sets[i]
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return "", err
		}
		buf = append(buf, set[n.Int64()])
	}
	// shuffle so the guaranteed classes are not always in front
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}
