// Package session derives and caches the short-lived signing context for a
// target service, in memory and in the secure store.
package session

import (
	"encoding/json"
	"time"
)

// Session is the signing context for one target service. ExpiresAt is an
// absolute epoch time in milliseconds, never a duration.
type Session struct {
	SessionToken string `json:"sessionToken"`
	ExpiresAt    int64  `json:"expiresAt"` // epoch millis
	Provider     string `json:"provider"`
	ServiceURL   string `json:"serviceUrl"`
}

// IsExpired reports whether the session is expired at now
func (s *Session) IsExpired(now time.Time) bool {
	return s == nil || now.UnixMilli() >= s.ExpiresAt
}

// Marshal encodes the session for secure-store persistence
func (s *Session) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a persisted session
func Unmarshal(blob []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
