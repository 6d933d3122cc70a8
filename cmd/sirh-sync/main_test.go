package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sirh-sync/internal/models"
	"github.com/noah-isme/sirh-sync/internal/service"
)

func TestTokenCommandIssuesValidToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", "admin-1", "--role", "admin", "--ttl", "10m"})
	require.NoError(t, root.Execute())

	claims, err := service.NewTokenService("cli-secret").ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.PlatformRoleAdmin, claims.Role)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--user", "u1", "--role", "owner"})
	assert.Error(t, root.Execute())
}

func TestTokenCommandRequiresUser(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	assert.Error(t, root.Execute())
}

func testReport() *models.RunReport {
	start := time.Date(2026, 5, 4, 2, 0, 0, 0, time.UTC)
	return &models.RunReport{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Instances: []models.InstanceSyncReport{
			{InstanceID: "inst-1", State: models.SyncStateUsersChanged, Reconcile: &models.ReconcileResult{Enrolled: 3, Removed: 1}},
			{InstanceID: "inst-2", State: models.SyncStateSkipped, Error: "registry unavailable"},
		},
	}
}

func TestPrintReportTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printReport(&out, testReport(), "table"))

	text := out.String()
	assert.Contains(t, text, "INSTANCE")
	assert.Contains(t, text, "USERS_CHANGED")
	assert.Contains(t, text, "registry unavailable")
	assert.Contains(t, text, "2 instance(s) in 1.5s")
}

func TestPrintReportJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printReport(&out, testReport(), "json"))

	var decoded models.RunReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded.Instances, 2)
	assert.Equal(t, models.SyncStateSkipped, decoded.Instances[1].State)

	assert.Error(t, printReport(&out, testReport(), "yaml"))
}
