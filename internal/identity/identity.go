// Package identity manages the stable per-install device identifier used to
// fingerprint requests to the gateway.
package identity

import (
	"context"
	"fmt"
	"sync"

	"ai-gateway-client/internal/logging"
	"ai-gateway-client/internal/securestore"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StoreKey is the fixed secure-store key holding the device identifier
const StoreKey = "device.identity"

// Provider generates and persists the device identifier. The identifier is
// created once per install and never regenerated silently; only an explicit
// Reset discards it.
type Provider struct {
	store    securestore.Store
	logger   *logrus.Logger
	security *logging.SecurityLogger

	mu       sync.Mutex
	cached   string
	volatile bool
}

// NewProvider creates a device identity provider backed by store
func NewProvider(store securestore.Store, logger *logrus.Logger, security *logging.SecurityLogger) *Provider {
	return &Provider{
		store:    store,
		logger:   logger,
		security: security,
	}
}

// Get returns the persisted device identifier, generating and persisting a
// new one on first call. It never fails: if persistence is unavailable the
// identifier is kept in memory only and degraded trust is logged.
func (p *Provider) Get(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached
	}

	blob, found, err := p.store.Load(ctx, StoreKey)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to read device identity from secure store")
	}
	if found && len(blob) > 0 {
		p.cached = string(blob)
		return p.cached
	}

	// First call on this install
	id := "dev_" + uuid.NewString()
	if err := p.store.Save(ctx, StoreKey, []byte(id)); err != nil {
		p.volatile = true
		p.security.LogDegradedIdentity(fmt.Sprintf("identity persistence failed: %v", err))
	} else {
		p.logger.WithField("device_id", id).Info("Generated new device identity")
	}

	p.cached = id
	return id
}

// IsVolatile reports whether the current identifier survived persistence
func (p *Provider) IsVolatile() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volatile
}

// Reset deletes the persisted identifier. A fresh one is generated on the
// next Get. Never invoked implicitly.
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.Delete(ctx, StoreKey); err != nil {
		return fmt.Errorf("failed to delete device identity: %w", err)
	}

	p.logger.WithField("device_id", p.cached).Info("Device identity reset")
	p.cached = ""
	p.volatile = false
	return nil
}
