package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountEscapesHTML(t *testing.T) {
	msg, err := NewAccount(AccountCreated{
		RecipientName: "Jane Doe",
		Username:      "jane@mail.fr",
		Password:      "a<b&c",
		TrainingName:  "Excel",
		LoginURL:      "https://lms.example.org/login",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.Plain, "Password: a<b&c")
	assert.Contains(t, msg.HTML, "a&lt;b&amp;c")
	assert.True(t, strings.HasPrefix(msg.HTML, "<!doctype html>"))
	assert.Contains(t, msg.HTML, `href="https://lms.example.org/login"`)
}

func TestRosterChangedListsCounters(t *testing.T) {
	msg, err := RosterChanged(RosterChange{RecipientName: "Admin", TrainingName: "Excel", SessionName: "S1", Created: 1, Enrolled: 2, Removed: 3})
	require.NoError(t, err)
	assert.Equal(t, "SIRH roster synchronized: Excel / S1", msg.Subject)
	assert.Contains(t, msg.Plain, "Users removed from the group: 3")
	assert.Contains(t, msg.HTML, "<td>Users enrolled</td><td>2</td>")
}

func TestSessionDataChangedPeriod(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	msg, err := SessionDataChanged(SessionChange{RecipientName: "Admin", SessionName: "S1", Start: &start})
	require.NoError(t, err)
	assert.Contains(t, msg.Plain, "Dates: from 01/03/2025")
	assert.NotContains(t, msg.HTML, "Open the course")
}
