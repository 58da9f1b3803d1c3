package gateway

import (
	"context"
	"fmt"
	"runtime"

	"ai-gateway-client/internal/auth"
	"ai-gateway-client/internal/config"
	"ai-gateway-client/internal/identity"
	"ai-gateway-client/internal/logging"
	"ai-gateway-client/internal/securestore"
	"ai-gateway-client/internal/session"
	"ai-gateway-client/internal/signer"

	"github.com/sirupsen/logrus"
)

// Service wires the full pipeline: secure store, device identity,
// credential authenticator, session manager, signer, transport and
// orchestrator. One Service serves one target service configuration.
type Service struct {
	cfg          *config.Config
	store        securestore.Store
	identity     *identity.Provider
	credentials  *auth.Authenticator
	sessions     *session.Manager
	orchestrator *Orchestrator
	client       *Client
	logger       *logrus.Logger
}

// NewService assembles a gateway service from configuration
func NewService(cfg *config.Config, logger *logrus.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := securestore.New(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	}

	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	security := logging.NewSecurityLogger(logger, logging.DefaultSecurityLoggerConfig())
	deviceIdentity := identity.NewProvider(store, logger, security)

	metadata := map[string]string{
		"platform": runtime.GOOS,
		"arch":     runtime.GOARCH,
	}

	credentials := auth.NewAuthenticator(client, deviceIdentity, cfg.ServiceURL, metadata, logger)
	sessions := session.NewManager(store, client, deviceIdentity, cfg.ServiceURL, cfg.ProjectID, metadata, logger)
	sgn := signer.New(cfg.Service())

	return &Service{
		cfg:          cfg,
		store:        store,
		identity:     deviceIdentity,
		credentials:  credentials,
		sessions:     sessions,
		client:       client,
		logger:       logger,
		orchestrator: NewOrchestrator(credentials, sessions, sgn, client, deviceIdentity, logger, security),
	}, nil
}

// Call executes one signed provider call through the gateway. The body is
// the caller-supplied JSON payload; endpoint "" means default routing.
func (s *Service) Call(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return s.orchestrator.Execute(ctx, endpoint, body)
}

// DeviceID returns the stable device identifier
func (s *Service) DeviceID(ctx context.Context) string {
	return s.identity.Get(ctx)
}

// ResetIdentity discards the persisted device identifier and all cached
// session state. Explicit operation only.
func (s *Service) ResetIdentity(ctx context.Context) error {
	s.credentials.InvalidateCredentials()
	if err := s.sessions.InvalidateSession(ctx); err != nil {
		return err
	}
	return s.identity.Reset(ctx)
}

// CachedSession exposes the current cached session, if any, for diagnostics
func (s *Service) CachedSession(ctx context.Context) *session.Session {
	return s.sessions.Cached(ctx)
}

// Close releases transport and store resources
func (s *Service) Close() error {
	s.client.Close()
	if closer, ok := s.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
