package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
)

func newExportFixture(t *testing.T) (*instanceFixture, *RosterExportService) {
	t.Helper()
	f := newInstanceFixture(syncedInstance())
	ctx := context.Background()
	f.accounts.byID["u-b"] = &models.User{ID: "u-b", Email: "b@mail.fr", FirstName: "Bea", LastName: "Zed"}
	f.accounts.byID["u-a"] = &models.User{ID: "u-a", Email: "a@mail.fr", FirstName: "Al", LastName: "Able", Suspended: true}
	require.NoError(t, f.enrolments.Upsert(ctx, &models.SirhEnrolment{InstanceID: "inst-1", CourseID: "course-1", UserID: "u-b", InRoster: true}))
	require.NoError(t, f.enrolments.Upsert(ctx, &models.SirhEnrolment{InstanceID: "inst-1", CourseID: "course-1", UserID: "u-a", InRoster: true}))
	require.NoError(t, f.enrolments.Upsert(ctx, &models.SirhEnrolment{InstanceID: "inst-1", CourseID: "course-1", UserID: "u-existing", InRoster: false}))

	svc := NewRosterExportService(f.svc, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }
	return f, svc
}

func TestExportRosterCSV(t *testing.T) {
	_, svc := newExportFixture(t)

	file, err := svc.Export(context.Background(), models.Actor{UserID: "admin-1"}, "inst-1", "")
	require.NoError(t, err)
	assert.Equal(t, "roster_S1_20260504.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "email;last_name;first_name;status", lines[0])
	assert.Equal(t, "a@mail.fr;Able;Al;suspended", lines[1])
	assert.Equal(t, "b@mail.fr;Zed;Bea;active", lines[2])
}

func TestExportRosterPDF(t *testing.T) {
	_, svc := newExportFixture(t)

	file, err := svc.Export(context.Background(), models.Actor{UserID: "admin-1"}, "inst-1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestExportRosterRejectsUnknownFormatAndForbiddenActors(t *testing.T) {
	f, svc := newExportFixture(t)

	_, err := svc.Export(context.Background(), models.Actor{UserID: "admin-1"}, "inst-1", "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	f.svc.capability = fakeCapability{allowed: false}
	_, err = svc.Export(context.Background(), models.Actor{UserID: "u1"}, "inst-1", "csv")
	assert.True(t, errors.Is(err, appErrors.ErrPermissionDenied))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "S_1_2026", sanitizeFilename("S/1 2026"))
	assert.Equal(t, "session", sanitizeFilename(""))
}
