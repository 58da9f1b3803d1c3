// Package signer builds outgoing gateway requests and computes their
// HMAC-SHA256 signatures. The signature binds body, endpoint, provider and
// service identity, and time; changing any bound field invalidates it.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ai-gateway-client/internal/apierror"
	"ai-gateway-client/internal/config"
	"ai-gateway-client/internal/session"
)

// Header names attached to signed requests
const (
	HeaderPartialKey        = "x-partial-key"
	HeaderSessionToken      = "x-session-token"
	HeaderTimestamp         = "x-timestamp"
	HeaderDeviceFingerprint = "x-device-fingerprint"
	HeaderProvider          = "x-provider"
	HeaderSignature         = "x-signature"
	HeaderProjectID         = "x-project-id"
)

// SignedRequest is a fully prepared outgoing request
type SignedRequest struct {
	Endpoint  string // normalized
	Body      []byte
	Timestamp string
	Signature string
	Headers   map[string]string
}

// Signer signs requests for one target service
type Signer struct {
	service config.ServiceConfig
}

// New creates a signer for the given service configuration
func New(service config.ServiceConfig) *Signer {
	return &Signer{service: service}
}

// Sign builds a signed request for endpoint and body using the current time
func (s *Signer) Sign(endpoint string, body []byte, sess *session.Session, deviceFingerprint string) (*SignedRequest, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	return s.SignAt(timestamp, endpoint, body, sess, deviceFingerprint)
}

// SignAt builds a signed request with an explicit timestamp (Unix seconds
// as a string). Signing is deterministic for a fixed input tuple.
func (s *Signer) SignAt(timestamp, endpoint string, body []byte, sess *session.Session, deviceFingerprint string) (*SignedRequest, error) {
	serviceID, err := ServiceID(s.service.ServiceURL)
	if err != nil {
		return nil, err
	}

	provider := sess.Provider
	if provider == "" {
		provider = s.service.Provider
	}

	normalized := NormalizeEndpoint(endpoint)
	message := BuildMessage(timestamp, provider, serviceID, normalized, body, sess.SessionToken)
	signature := ComputeSignature(sess.SessionToken, message)

	headers := map[string]string{
		HeaderPartialKey:        s.service.PartialKey,
		HeaderSessionToken:      sess.SessionToken,
		HeaderTimestamp:         timestamp,
		HeaderDeviceFingerprint: deviceFingerprint,
		HeaderProvider:          provider,
		HeaderSignature:         signature,
	}
	if s.service.ProjectID != "" {
		headers[HeaderProjectID] = s.service.ProjectID
	}

	return &SignedRequest{
		Endpoint:  normalized,
		Body:      body,
		Timestamp: timestamp,
		Signature: signature,
		Headers:   headers,
	}, nil
}

// NormalizeEndpoint keeps the empty string (default/universal routing) and
// otherwise guarantees exactly one leading slash
func NormalizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	return "/" + strings.TrimLeft(endpoint, "/")
}

// ServiceID derives the signed service identity from the service URL. An
// unparsable service URL is a fatal configuration error, never retried.
func ServiceID(serviceURL string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil || u.Host == "" {
		return "", apierror.NewInvalidConfiguration("service URL is not parsable: "+serviceURL, err)
	}
	return u.Host + u.Path, nil
}

// BuildMessage composes the signed message. The field order is fixed; any
// deviation invalidates all requests.
func BuildMessage(timestamp, provider, serviceID, endpoint string, body []byte, sessionToken string) string {
	return strings.Join([]string{
		timestamp,
		provider,
		serviceID,
		endpoint,
		base64.StdEncoding.EncodeToString(body),
		sessionToken,
	}, ":")
}

// ComputeSignature computes base64(HMAC-SHA256(key=sessionToken, message))
func ComputeSignature(sessionToken, message string) string {
	mac := hmac.New(sha256.New, []byte(sessionToken))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
