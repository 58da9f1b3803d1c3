package gateway

import (
	"context"

	"ai-gateway-client/internal/apierror"
	"ai-gateway-client/internal/auth"
	"ai-gateway-client/internal/logging"
	"ai-gateway-client/internal/session"
	"ai-gateway-client/internal/signer"

	"github.com/sirupsen/logrus"
)

// retryState tracks where a logical call sits in the refresh state machine
type retryState int

const (
	stateInitial retryState = iota
	stateRetriedWithFreshCredentials
)

// CredentialProvider supplies and invalidates the cached credential
type CredentialProvider interface {
	GetCredentials(ctx context.Context, forceRefresh bool) (*auth.Credential, error)
	InvalidateCredentials()
}

// SessionProvider supplies and invalidates the cached session
type SessionProvider interface {
	Cached(ctx context.Context) *session.Session
	GetValidSession(ctx context.Context, forceRefresh bool, payload *auth.CredentialPayload) (*session.Session, error)
	InvalidateSession(ctx context.Context) error
}

// DeviceIdentity supplies the device fingerprint for signing
type DeviceIdentity interface {
	Get(ctx context.Context) string
}

// Executor sends a signed request and returns the raw response body
type Executor interface {
	Execute(ctx context.Context, req *signer.SignedRequest) ([]byte, error)
}

// Orchestrator wraps a provider call with at most one silent
// credential/session refresh-and-retry. A recoverable auth failure in the
// Initial state invalidates both caches and re-runs the entire pipeline
// once; every other failure, and any failure after the retry, surfaces
// unchanged.
type Orchestrator struct {
	credentials CredentialProvider
	sessions    SessionProvider
	signer      *signer.Signer
	transport   Executor
	identity    DeviceIdentity
	logger      *logrus.Logger
	security    *logging.SecurityLogger
}

// NewOrchestrator creates the retry orchestrator
func NewOrchestrator(credentials CredentialProvider, sessions SessionProvider, sgn *signer.Signer, transport Executor, identity DeviceIdentity, logger *logrus.Logger, security *logging.SecurityLogger) *Orchestrator {
	return &Orchestrator{
		credentials: credentials,
		sessions:    sessions,
		signer:      sgn,
		transport:   transport,
		identity:    identity,
		logger:      logger,
		security:    security,
	}
}

// Execute runs one logical provider call: obtain a valid session, sign,
// send, classify. Pipeline order within the call is fixed: credential
// fetch, session derivation, signing, send.
func (o *Orchestrator) Execute(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	state := stateInitial

	for {
		forceRefresh := state == stateRetriedWithFreshCredentials

		respBody, err := o.attempt(ctx, endpoint, body, forceRefresh)
		if err == nil {
			return respBody, nil
		}

		apiErr, ok := apierror.As(err)
		if !ok {
			return nil, err
		}

		if apiErr.IsUnrecoverable() {
			o.security.LogUnrecoverableAuthFailure(o.identity.Get(ctx), string(apiErr.Code), endpoint)
			return nil, err
		}

		if apiErr.Recoverable && state == stateInitial {
			o.logger.WithFields(logrus.Fields{
				"code":     apiErr.Code,
				"endpoint": endpoint,
			}).Info("Session rejected, refreshing credentials and retrying once")

			o.credentials.InvalidateCredentials()
			if invErr := o.sessions.InvalidateSession(ctx); invErr != nil {
				o.logger.WithError(invErr).Warn("Failed to invalidate persisted session")
			}
			state = stateRetriedWithFreshCredentials
			continue
		}

		// Rate limits, availability, transport, decoding and configuration
		// errors are never retried here; the caller decides.
		return nil, err
	}
}

// attempt runs the pipeline once. Without forceRefresh, a cached session
// short-circuits the credential fetch entirely.
func (o *Orchestrator) attempt(ctx context.Context, endpoint string, body []byte, forceRefresh bool) ([]byte, error) {
	var sess *session.Session
	if !forceRefresh {
		sess = o.sessions.Cached(ctx)
	}

	if sess == nil {
		cred, err := o.credentials.GetCredentials(ctx, forceRefresh)
		if err != nil {
			return nil, err
		}
		sess, err = o.sessions.GetValidSession(ctx, forceRefresh, &cred.Payload)
		if err != nil {
			return nil, err
		}
	}

	signed, err := o.signer.Sign(endpoint, body, sess, o.identity.Get(ctx))
	if err != nil {
		return nil, err
	}

	return o.transport.Execute(ctx, signed)
}
