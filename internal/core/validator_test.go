package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronwatch/internal/types"
)

func TestValidator_CheckinStatusTag(t *testing.T) {
	v := NewValidator()

	type payload struct {
		Status string `validate:"checkin_status"`
	}

	assert.NoError(t, v.ValidateStruct(payload{Status: "ok"}))
	assert.NoError(t, v.ValidateStruct(payload{Status: "in_progress"}))
	assert.NoError(t, v.ValidateStruct(payload{Status: "error"}))
	// Empty is allowed; the recorder defaults it.
	assert.NoError(t, v.ValidateStruct(payload{Status: ""}))

	// System-only and unknown statuses are rejected.
	for _, status := range []string{"missed", "timeout", "finished"} {
		err := v.ValidateStruct(payload{Status: status})
		require.Error(t, err, status)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Contains(t, appErr.Details, "Status")
	}
}

func TestValidator_ScheduleTypeTag(t *testing.T) {
	v := NewValidator()

	type payload struct {
		Type string `validate:"schedule_type"`
	}

	assert.NoError(t, v.ValidateStruct(payload{Type: "crontab"}))
	assert.NoError(t, v.ValidateStruct(payload{Type: "interval"}))
	assert.Error(t, v.ValidateStruct(payload{Type: "hourly"}))
	assert.Error(t, v.ValidateStruct(payload{Type: ""}))
}
