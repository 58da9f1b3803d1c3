package logging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SecurityLogger records security-relevant events raised by the request
// pipeline: rejected signatures, device identity mismatches, degraded
// identity persistence. Repeated failures inside the time window are
// escalated to error level.
type SecurityLogger struct {
	logger           *logrus.Logger
	failureThreshold int
	timeWindow       time.Duration

	mu             sync.Mutex
	recentFailures []time.Time
}

// SecurityLoggerConfig holds configuration for the security logger
type SecurityLoggerConfig struct {
	FailureThreshold int           `json:"failureThreshold"` // Number of failures before escalation
	TimeWindow       time.Duration `json:"timeWindow"`       // Time window for counting failures
}

// DefaultSecurityLoggerConfig returns default configuration
func DefaultSecurityLoggerConfig() SecurityLoggerConfig {
	return SecurityLoggerConfig{
		FailureThreshold: 5,
		TimeWindow:       5 * time.Minute,
	}
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *logrus.Logger, config SecurityLoggerConfig) *SecurityLogger {
	return &SecurityLogger{
		logger:           logger,
		failureThreshold: config.FailureThreshold,
		timeWindow:       config.TimeWindow,
		recentFailures:   make([]time.Time, 0),
	}
}

// LogUnrecoverableAuthFailure records a security failure that credential
// refresh cannot fix (device mismatch, rejected signature). These are never
// retried, so every occurrence is worth capturing.
func (s *SecurityLogger) LogUnrecoverableAuthFailure(deviceID, code, endpoint string) {
	now := time.Now()

	s.mu.Lock()
	s.recentFailures = append(s.recentFailures, now)
	s.cleanupOldFailures(now)
	count := len(s.recentFailures)
	s.mu.Unlock()

	entry := s.logger.WithFields(logrus.Fields{
		"event_type":    "unrecoverable_auth_failure",
		"device_id":     deviceID,
		"code":          code,
		"endpoint":      endpoint,
		"failure_count": count,
		"time_window":   s.timeWindow.String(),
	})

	if count >= s.failureThreshold {
		entry.Error("Repeated unrecoverable authentication failures")
		return
	}
	entry.Warn("Unrecoverable authentication failure")
}

// LogDegradedIdentity records that the device identity could not be
// persisted and a volatile identifier is in use.
func (s *SecurityLogger) LogDegradedIdentity(reason string) {
	s.logger.WithFields(logrus.Fields{
		"event_type": "degraded_device_identity",
		"reason":     reason,
	}).Warn("Device identity persistence unavailable, trust is degraded")
}

// cleanupOldFailures removes failures outside the time window. Caller holds mu.
func (s *SecurityLogger) cleanupOldFailures(now time.Time) {
	cutoff := now.Add(-s.timeWindow)
	kept := s.recentFailures[:0]
	for _, t := range s.recentFailures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.recentFailures = kept
}
