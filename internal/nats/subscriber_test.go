package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptrace/scoring/internal/model"
)

func TestParseSubmission(t *testing.T) {
	sub, err := parseSubmission([]byte(`{
		"id": "agent-1-seq-3",
		"user_id": "user-1",
		"type": "clipboard",
		"data": {"content": "quarterly numbers", "application": "excel"},
		"created_at": "2026-08-28T09:30:00Z"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "agent-1-seq-3", sub.ID)
	assert.Equal(t, "user-1", sub.UserID)
	assert.Equal(t, model.EventClipboard, sub.Type)
	assert.Equal(t, "quarterly numbers", sub.Data.Content)
	assert.Equal(t, time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC), sub.CreatedAt)
}

func TestParseSubmission_UnixMillisTimestamp(t *testing.T) {
	// Older agents send epoch milliseconds instead of RFC 3339.
	sub, err := parseSubmission([]byte(`{
		"user_id": "user-1",
		"type": "file_access",
		"created_at": 1756373400000
	}`))
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1756373400000), sub.CreatedAt)
}

func TestParseSubmission_BadTimestampLeftZero(t *testing.T) {
	sub, err := parseSubmission([]byte(`{
		"user_id": "user-1",
		"type": "clipboard",
		"created_at": "yesterday-ish"
	}`))
	require.NoError(t, err)
	assert.True(t, sub.CreatedAt.IsZero(), "intake assigns receipt time instead")
}

func TestParseSubmission_InvalidJSON(t *testing.T) {
	_, err := parseSubmission([]byte(`{"user_id":`))
	assert.Error(t, err)
}
