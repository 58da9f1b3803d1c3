package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-gateway-client/internal/apierror"
	"ai-gateway-client/internal/auth"
	"ai-gateway-client/internal/securestore"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// LegacyIssueRequest is the body sent to the legacy session issuance
// endpoint. Either ServiceURL or ProjectID identifies the target.
type LegacyIssueRequest struct {
	ServiceURL        string            `json:"serviceUrl,omitempty"`
	ProjectID         string            `json:"projectId,omitempty"`
	DeviceFingerprint string            `json:"deviceFingerprint"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// LegacyIssueResponse is the legacy session issuance response
type LegacyIssueResponse struct {
	SessionToken string `json:"sessionToken"`
	ExpiresAt    int64  `json:"expiresAt"` // epoch millis
	Provider     string `json:"provider"`
	ServiceURL   string `json:"serviceUrl"`
}

// LegacyIssuanceClient is the transport used for the legacy refresh path
type LegacyIssuanceClient interface {
	IssueSession(ctx context.Context, req *LegacyIssueRequest) (*LegacyIssueResponse, error)
}

// DeviceIdentity supplies the device fingerprint for legacy issuance
type DeviceIdentity interface {
	Get(ctx context.Context) string
}

// Manager caches the session for one target service. The canonical refresh
// path derives the session from credential claims with zero round trips;
// the legacy path calls the session issuance endpoint directly. Concurrent
// refreshes for the same service coalesce into a single in-flight
// operation whose result every waiter shares.
type Manager struct {
	store      securestore.Store
	legacy     LegacyIssuanceClient // may be nil when only derivation is used
	identity   DeviceIdentity
	serviceURL string
	projectID  string
	metadata   map[string]string
	logger     *logrus.Logger

	mu     sync.RWMutex
	cached *Session

	flight singleflight.Group
}

// NewManager creates a session manager scoped to serviceURL
func NewManager(store securestore.Store, legacy LegacyIssuanceClient, identity DeviceIdentity, serviceURL, projectID string, metadata map[string]string, logger *logrus.Logger) *Manager {
	return &Manager{
		store:      store,
		legacy:     legacy,
		identity:   identity,
		serviceURL: serviceURL,
		projectID:  projectID,
		metadata:   metadata,
		logger:     logger,
	}
}

// GetValidSession returns an unexpired session. Without forceRefresh the
// memory cache is consulted first, then the secure store; a hit in the
// store repopulates memory. Otherwise a fresh session is obtained, derived
// from payload when one is given, via the legacy endpoint when not.
func (m *Manager) GetValidSession(ctx context.Context, forceRefresh bool, payload *auth.CredentialPayload) (*Session, error) {
	if !forceRefresh {
		if s := m.cachedSession(); s != nil {
			return s, nil
		}
		if s, err := m.storedSession(ctx); err == nil && s != nil {
			return s, nil
		}
	}

	return m.refresh(ctx, payload)
}

// Cached returns an unexpired session from the memory cache or the secure
// store without ever triggering a refresh. Returns nil when neither cache
// holds a usable entry.
func (m *Manager) Cached(ctx context.Context) *Session {
	if s := m.cachedSession(); s != nil {
		return s
	}
	s, err := m.storedSession(ctx)
	if err != nil {
		return nil
	}
	return s
}

// cachedSession returns the memory cache entry if unexpired
func (m *Manager) cachedSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cached != nil && !m.cached.IsExpired(time.Now()) {
		return m.cached
	}
	return nil
}

// storedSession checks the secure store and repopulates the memory cache
// when the persisted entry is still unexpired
func (m *Manager) storedSession(ctx context.Context) (*Session, error) {
	blob, found, err := m.store.Load(ctx, m.serviceURL)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to read session from secure store")
		return nil, err
	}
	if !found {
		return nil, nil
	}

	s, err := Unmarshal(blob)
	if err != nil {
		m.logger.WithError(err).Warn("Discarding undecodable persisted session")
		return nil, err
	}
	if s.IsExpired(time.Now()) {
		return nil, nil
	}

	m.mu.Lock()
	m.cached = s
	m.mu.Unlock()
	return s, nil
}

// refresh obtains a fresh session, coalescing concurrent callers into one
// in-flight operation keyed by serviceURL. A caller that cancels stops
// waiting, but the shared flight itself is not cancelled on behalf of the
// other waiters.
func (m *Manager) refresh(ctx context.Context, payload *auth.CredentialPayload) (*Session, error) {
	flightCtx := context.WithoutCancel(ctx)

	ch := m.flight.DoChan(m.serviceURL, func() (interface{}, error) {
		return m.doRefresh(flightCtx, payload)
	})

	select {
	case <-ctx.Done():
		return nil, apierror.NewNetworkError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	}
}

// doRefresh performs the actual session acquisition and persists the result
func (m *Manager) doRefresh(ctx context.Context, payload *auth.CredentialPayload) (*Session, error) {
	var s *Session

	switch {
	case payload != nil:
		// Pure derivation from credential claims, zero round trips
		s = &Session{
			SessionToken: payload.SessionToken,
			ExpiresAt:    payload.ExpiresAt * 1000,
			Provider:     payload.Provider,
			ServiceURL:   m.serviceURL,
		}

	case m.legacy != nil:
		resp, err := m.legacy.IssueSession(ctx, &LegacyIssueRequest{
			ServiceURL:        m.serviceURL,
			ProjectID:         m.projectID,
			DeviceFingerprint: m.identity.Get(ctx),
			Metadata:          m.metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("session issuance failed: %w", err)
		}
		if resp.SessionToken == "" || resp.ExpiresAt == 0 {
			return nil, apierror.NewInvalidResponse("session issuance response incomplete")
		}
		s = &Session{
			SessionToken: resp.SessionToken,
			ExpiresAt:    resp.ExpiresAt,
			Provider:     resp.Provider,
			ServiceURL:   m.serviceURL,
		}

	default:
		return nil, apierror.NewInvalidConfiguration("no credential payload and no legacy issuance endpoint configured", nil)
	}

	m.persist(ctx, s)

	m.logger.WithFields(logrus.Fields{
		"provider":    s.Provider,
		"service_url": s.ServiceURL,
		"expires_at":  s.ExpiresAt,
	}).Debug("Session refreshed")

	return s, nil
}

// persist writes the session to both caches. A store failure degrades to
// memory-only caching rather than failing the call.
func (m *Manager) persist(ctx context.Context, s *Session) {
	m.mu.Lock()
	m.cached = s
	m.mu.Unlock()

	blob, err := s.Marshal()
	if err != nil {
		m.logger.WithError(err).Warn("Failed to encode session for persistence")
		return
	}
	if err := m.store.Save(ctx, m.serviceURL, blob); err != nil {
		m.logger.WithError(err).Warn("Failed to persist session to secure store")
	}
}

// InvalidateSession clears the memory cache and deletes the persisted
// entry for this service. Idempotent.
func (m *Manager) InvalidateSession(ctx context.Context) error {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	if err := m.store.Delete(ctx, m.serviceURL); err != nil {
		return fmt.Errorf("failed to delete persisted session: %w", err)
	}
	return nil
}
