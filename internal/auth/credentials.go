// Package auth obtains and caches the bounded-lifetime credential issued by
// the gateway for a {device, target service} pair.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-gateway-client/internal/apierror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// expiryMargin keeps us from signing with a credential that expires mid-flight
const expiryMargin = 30 * time.Second

// CredentialPayload holds the decoded claims embedded in a credential token
type CredentialPayload struct {
	Provider             string
	PartialServiceSecret string
	SessionToken         string
	ExpiresAt            int64 // epoch seconds
}

// Credential is a server-issued token plus its decoded claims. Held in
// memory only; never persisted in plaintext.
type Credential struct {
	Token   string
	Payload CredentialPayload
}

// IsValid reports whether the credential is usable at now
func (c *Credential) IsValid(now time.Time) bool {
	return c != nil && now.Add(expiryMargin).Unix() < c.Payload.ExpiresAt
}

// IssueRequest is the body sent to the credential issuance endpoint
type IssueRequest struct {
	DeviceFingerprint string            `json:"deviceFingerprint"`
	ServiceURL        string            `json:"serviceUrl"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// IssueResponse is the issuance endpoint response
type IssueResponse struct {
	Token string `json:"token"`
}

// IssuanceClient is the transport used to reach the issuance endpoint
type IssuanceClient interface {
	IssueCredential(ctx context.Context, req *IssueRequest) (*IssueResponse, error)
}

// DeviceIdentity supplies the device fingerprint bound into every issuance
type DeviceIdentity interface {
	Get(ctx context.Context) string
}

// Authenticator fetches and caches credentials for one target service
type Authenticator struct {
	client     IssuanceClient
	identity   DeviceIdentity
	serviceURL string
	metadata   map[string]string
	logger     *logrus.Logger

	mu     sync.Mutex
	cached *Credential
}

// NewAuthenticator creates a credential authenticator scoped to serviceURL
func NewAuthenticator(client IssuanceClient, identity DeviceIdentity, serviceURL string, metadata map[string]string, logger *logrus.Logger) *Authenticator {
	return &Authenticator{
		client:     client,
		identity:   identity,
		serviceURL: serviceURL,
		metadata:   metadata,
		logger:     logger,
	}
}

// GetCredentials returns the cached credential if it is still valid and
// forceRefresh is false; otherwise it calls the issuance endpoint and
// caches the result. Concurrent callers serialize on the cache owner, so a
// refresh is never issued twice for one expiry.
func (a *Authenticator) GetCredentials(ctx context.Context, forceRefresh bool) (*Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !forceRefresh && a.cached.IsValid(time.Now()) {
		return a.cached, nil
	}

	req := &IssueRequest{
		DeviceFingerprint: a.identity.Get(ctx),
		ServiceURL:        a.serviceURL,
		Metadata:          a.metadata,
	}

	resp, err := a.client.IssueCredential(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("credential issuance failed: %w", err)
	}
	if resp.Token == "" {
		return nil, apierror.NewInvalidResponse("issuance response contained no token")
	}

	payload, err := DecodePayload(resp.Token)
	if err != nil {
		return nil, err
	}

	cred := &Credential{Token: resp.Token, Payload: *payload}
	a.cached = cred

	a.logger.WithFields(logrus.Fields{
		"provider":   payload.Provider,
		"expires_at": payload.ExpiresAt,
	}).Debug("Credential issued")

	return cred, nil
}

// InvalidateCredentials clears the cache, forcing re-issuance on next call
func (a *Authenticator) InvalidateCredentials() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cached = nil
}

// DecodePayload decodes the claims embedded in a credential token. The
// signature is NOT verified client-side; the trust boundary is transport
// security plus server-side verification. Fails closed on malformed input.
func DecodePayload(token string) (*CredentialPayload, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, apierror.NewDecodingError("malformed credential token", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.NewDecodingError("credential token carries no claims", nil)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, apierror.NewDecodingError("credential token missing expiry", err)
	}

	payload := &CredentialPayload{
		Provider:             stringClaim(claims, "provider"),
		PartialServiceSecret: stringClaim(claims, "partialServiceSecret"),
		SessionToken:         stringClaim(claims, "sessionToken"),
		ExpiresAt:            exp.Unix(),
	}
	if payload.Provider == "" || payload.SessionToken == "" {
		return nil, apierror.NewDecodingError("credential token missing required claims", nil)
	}

	return payload, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
