package logging

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturedSecurityLogger(cfg SecurityLoggerConfig) (*SecurityLogger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewSecurityLogger(logger, cfg), hook
}

func TestLogUnrecoverableAuthFailure(t *testing.T) {
	s, hook := newCapturedSecurityLogger(DefaultSecurityLoggerConfig())

	s.LogUnrecoverableAuthFailure("dev_1", "device_mismatch", "/chat")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "unrecoverable_auth_failure", entry.Data["event_type"])
	assert.Equal(t, "dev_1", entry.Data["device_id"])
	assert.Equal(t, "device_mismatch", entry.Data["code"])
}

func TestLogUnrecoverableAuthFailure_EscalatesAtThreshold(t *testing.T) {
	s, hook := newCapturedSecurityLogger(SecurityLoggerConfig{
		FailureThreshold: 3,
		TimeWindow:       time.Minute,
	})

	for i := 0; i < 3; i++ {
		s.LogUnrecoverableAuthFailure("dev_1", "invalid_signature", "")
	}

	require.Len(t, hook.Entries, 3)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[1].Level)
	assert.Equal(t, logrus.ErrorLevel, hook.Entries[2].Level, "the threshold failure must escalate to error")
}

func TestLogUnrecoverableAuthFailure_WindowExpires(t *testing.T) {
	s, hook := newCapturedSecurityLogger(SecurityLoggerConfig{
		FailureThreshold: 2,
		TimeWindow:       time.Nanosecond,
	})

	s.LogUnrecoverableAuthFailure("dev_1", "invalid_signature", "")
	time.Sleep(time.Millisecond)
	s.LogUnrecoverableAuthFailure("dev_1", "invalid_signature", "")

	// Old failure fell out of the window, so no escalation
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLogDegradedIdentity(t *testing.T) {
	s, hook := newCapturedSecurityLogger(DefaultSecurityLoggerConfig())

	s.LogDegradedIdentity("store unavailable")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "degraded_device_identity", hook.LastEntry().Data["event_type"])
	assert.Equal(t, "store unavailable", hook.LastEntry().Data["reason"])
}
