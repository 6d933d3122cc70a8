package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/pkg/database"
)

type fakeAccounts struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	nextID  int
	failOn  map[string]error
	racing  map[string]models.User
	created []string
}

func newFakeAccounts(users ...models.User) *fakeAccounts {
	f := &fakeAccounts{byID: map[string]*models.User{}, failOn: map[string]error{}, racing: map[string]models.User{}}
	for i := range users {
		u := users[i]
		f.byID[u.ID] = &u
	}
	return f
}

func (f *fakeAccounts) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(email)
	if err, ok := f.failOn[email]; ok {
		return nil, err
	}
	for _, u := range f.byID {
		if strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAccounts) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAccounts) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if racer, ok := f.racing[user.Email]; ok {
		f.byID[racer.ID] = &racer
		delete(f.racing, user.Email)
		return fmt.Errorf("create user: %w", database.ErrDuplicate)
	}
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("create user: %w", database.ErrDuplicate)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("new-user-%d", f.nextID)
	cp := *user
	f.byID[user.ID] = &cp
	f.created = append(f.created, user.Email)
	return nil
}

func (f *fakeAccounts) SetSuspended(_ context.Context, id string, suspended bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Suspended = suspended
	return nil
}

type fakeRoles struct {
	mu    sync.Mutex
	roles map[string]models.CourseRole
	err   error
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: map[string]models.CourseRole{}}
}

func (f *fakeRoles) GetRole(_ context.Context, courseID, userID string) (models.CourseRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.roles[courseID+"/"+userID], nil
}

func (f *fakeRoles) SetRole(_ context.Context, courseID, userID string, role models.CourseRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[courseID+"/"+userID] = role
	return nil
}

type fakeGroups struct {
	mu      sync.Mutex
	groups  map[string]*models.Group
	members map[string]map[string]bool
	failAdd map[string]bool
	nextID  int
}

func newFakeGroups(groups ...models.Group) *fakeGroups {
	f := &fakeGroups{groups: map[string]*models.Group{}, members: map[string]map[string]bool{}, failAdd: map[string]bool{}}
	for i := range groups {
		g := groups[i]
		f.groups[g.ID] = &g
	}
	return f
}

func (f *fakeGroups) FindByID(_ context.Context, id string) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[id]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGroups) FindByName(_ context.Context, courseID, name string) (*models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.CourseID == courseID && g.Name == name {
			cp := *g
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGroups) Create(_ context.Context, group *models.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	group.ID = fmt.Sprintf("group-%d", f.nextID)
	cp := *group
	f.groups[group.ID] = &cp
	return nil
}

func (f *fakeGroups) AddMember(_ context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd[userID] {
		return errors.New("add member failed")
	}
	if f.members[groupID] == nil {
		f.members[groupID] = map[string]bool{}
	}
	f.members[groupID][userID] = true
	return nil
}

func (f *fakeGroups) RemoveMember(_ context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[groupID], userID)
	return nil
}

func (f *fakeGroups) memberIDs(groupID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.members[groupID]))
	for id := range f.members[groupID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeEnrolments struct {
	mu        sync.Mutex
	rows      map[string]models.SirhEnrolment
	accounts  *fakeAccounts
	upserts   int
	rosterErr error
}

func newFakeEnrolments(accounts *fakeAccounts) *fakeEnrolments {
	return &fakeEnrolments{rows: map[string]models.SirhEnrolment{}, accounts: accounts}
}

func (f *fakeEnrolments) ListByInstance(_ context.Context, instanceID string) ([]models.SirhEnrolment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SirhEnrolment
	for _, e := range f.rows {
		if e.InstanceID == instanceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeEnrolments) Upsert(_ context.Context, enrolment *models.SirhEnrolment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if enrolment.ID == "" {
		enrolment.ID = "enrol-" + enrolment.InstanceID + "-" + enrolment.UserID
	}
	f.rows[enrolment.InstanceID+"/"+enrolment.UserID] = *enrolment
	f.upserts++
	return nil
}

func (f *fakeEnrolments) ListRosterUsers(ctx context.Context, instanceID string) ([]models.User, error) {
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	rows, _ := f.ListByInstance(ctx, instanceID)
	var users []models.User
	for _, e := range rows {
		if !e.InRoster {
			continue
		}
		u, err := f.accounts.FindByID(ctx, e.UserID)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func (f *fakeEnrolments) get(instanceID, userID string) (models.SirhEnrolment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[instanceID+"/"+userID]
	return e, ok
}

type fakeInstances struct {
	mu        sync.Mutex
	rows      map[string]*models.EnrolmentInstance
	nextID    int
	listErr   error
	syncCalls int
}

func newFakeInstances(instances ...models.EnrolmentInstance) *fakeInstances {
	f := &fakeInstances{rows: map[string]*models.EnrolmentInstance{}}
	for i := range instances {
		inst := instances[i]
		f.rows[inst.ID] = &inst
	}
	return f
}

func (f *fakeInstances) Create(_ context.Context, inst *models.EnrolmentInstance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.Key() == inst.Key() {
			return fmt.Errorf("create instance: %w", database.ErrDuplicate)
		}
	}
	f.nextID++
	if inst.ID == "" {
		inst.ID = fmt.Sprintf("inst-new-%d", f.nextID)
	}
	cp := *inst
	f.rows[inst.ID] = &cp
	return nil
}

func (f *fakeInstances) FindByID(_ context.Context, id string) (*models.EnrolmentInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inst, ok := f.rows[id]; ok {
		cp := *inst
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeInstances) FindByKey(_ context.Context, key models.InstanceKey) (*models.EnrolmentInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.rows {
		if inst.Key() == key {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeInstances) ListAll(_ context.Context) ([]models.EnrolmentInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.EnrolmentInstance, 0, len(f.rows))
	for _, inst := range f.rows {
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeInstances) ListByCourse(ctx context.Context, courseID string) ([]models.EnrolmentInstance, error) {
	all, err := f.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.EnrolmentInstance
	for _, inst := range all {
		if inst.CourseID == courseID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeInstances) UpdateGroup(_ context.Context, id string, groupID *string) error {
	return f.update(id, func(inst *models.EnrolmentInstance) { inst.GroupID = copyID(groupID) })
}

func (f *fakeInstances) UpdateSyncMetadata(_ context.Context, id string, syncedAt time.Time, actorID *string) error {
	return f.update(id, func(inst *models.EnrolmentInstance) {
		f.syncCalls++
		inst.LastSyncAt = &syncedAt
		if actorID != nil {
			inst.LastSyncActorID = copyID(actorID)
		}
	})
}

func (f *fakeInstances) UpdateSessionMetadata(_ context.Context, src *models.EnrolmentInstance) error {
	return f.update(src.ID, func(inst *models.EnrolmentInstance) {
		inst.TrainingName = src.TrainingName
		inst.SessionName = src.SessionName
		inst.SessionStart = src.SessionStart
		inst.SessionEnd = src.SessionEnd
	})
}

func (f *fakeInstances) UpdateStatus(_ context.Context, id string, status models.InstanceStatus) error {
	return f.update(id, func(inst *models.EnrolmentInstance) { inst.Status = status })
}

func (f *fakeInstances) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeInstances) update(id string, fn func(*models.EnrolmentInstance)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	fn(inst)
	return nil
}

func (f *fakeInstances) get(id string) models.EnrolmentInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

type fakeCapability struct {
	allowed bool
	err     error
}

func (f fakeCapability) CanManageSirh(context.Context, models.Actor, string) (bool, error) {
	return f.allowed, f.err
}

type sentEmail struct {
	To      string
	Subject string
	Plain   string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeMailer) SendEmail(_ context.Context, recipient models.User, subject, plainBody, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{To: recipient.Email, Subject: subject, Plain: plainBody})
	return nil
}

func (f *fakeMailer) emails() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

type fakeRegistry struct {
	mu       sync.Mutex
	users    map[string]*models.SessionUsers
	err      error
	sessions []models.RosterSession
	total    int
	countErr error
	calls    int
	filters  []models.SessionFilter
	since    []*time.Time
}

func (f *fakeRegistry) ListSessionUsers(_ context.Context, registryID, trainingID, sessionID string, _ int, since *time.Time) (*models.SessionUsers, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.since = append(f.since, since)
	if f.err != nil {
		return nil, f.err
	}
	key := registryID + "/" + trainingID + "/" + sessionID
	pulled, ok := f.users[key]
	if !ok {
		return &models.SessionUsers{}, nil
	}
	cp := *pulled
	return &cp, nil
}

func (f *fakeRegistry) ListSessions(_ context.Context, filter models.SessionFilter) ([]models.RosterSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.RosterSession(nil), f.sessions...), nil
}

func (f *fakeRegistry) CountSessions(_ context.Context, _ models.SessionFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.total, nil
}

type publishedEvent struct {
	Name    string
	Payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Name: event, Payload: payload})
	return nil
}

func (f *fakePublisher) Close() {}

func strPtr(s string) *string { return &s }
