// Package gateway executes signed provider calls against the gateway and
// wraps them in the bounded credential-refresh retry state machine.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"ai-gateway-client/internal/apierror"
	"ai-gateway-client/internal/auth"
	"ai-gateway-client/internal/config"
	"ai-gateway-client/internal/session"
	"ai-gateway-client/internal/signer"

	"github.com/sirupsen/logrus"
)

// Gateway endpoint paths
const (
	credentialIssuePath = "/api/v1/credentials/issue"
	sessionIssuePath    = "/api/v1/sessions/issue"
	proxyPath           = "/api/v1/proxy"
)

// Client is the HTTP transport for gateway communication. Retry policy
// lives in the Orchestrator, not here.
type Client struct {
	httpClient *http.Client
	gatewayURL string
	logger     *logrus.Logger
}

// NewClient creates a gateway transport client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	return &Client{
		httpClient: httpClient,
		gatewayURL: strings.TrimSuffix(cfg.GatewayURL, "/"),
		logger:     logger,
	}, nil
}

// IssueCredential calls the credential issuance endpoint
func (c *Client) IssueCredential(ctx context.Context, req *auth.IssueRequest) (*auth.IssueResponse, error) {
	body, err := c.postJSON(ctx, credentialIssuePath, req, nil)
	if err != nil {
		return nil, err
	}

	var resp auth.IssueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierror.NewDecodingError("failed to parse credential issuance response", err)
	}
	return &resp, nil
}

// IssueSession calls the legacy session issuance endpoint
func (c *Client) IssueSession(ctx context.Context, req *session.LegacyIssueRequest) (*session.LegacyIssueResponse, error) {
	body, err := c.postJSON(ctx, sessionIssuePath, req, nil)
	if err != nil {
		return nil, err
	}

	var resp session.LegacyIssueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierror.NewDecodingError("failed to parse session issuance response", err)
	}
	return &resp, nil
}

// Execute sends a signed provider request through the gateway proxy and
// returns the raw response body.
func (c *Client) Execute(ctx context.Context, req *signer.SignedRequest) ([]byte, error) {
	return c.post(ctx, proxyPath+req.Endpoint, req.Body, req.Headers)
}

// postJSON marshals body and posts it
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, headers map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.post(ctx, path, payload, headers)
}

// post executes a single POST against the gateway. Transport failures map
// to network errors; status >= 400 goes through the classifier.
func (c *Client) post(ctx context.Context, path string, body []byte, headers map[string]string) ([]byte, error) {
	fullURL := c.gatewayURL + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	c.logger.WithFields(logrus.Fields{
		"url":       fullURL,
		"body_size": len(body),
	}).Debug("Sending gateway request")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apierror.NewNetworkError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierror.NewNetworkError(err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code": httpResp.StatusCode,
		"body_length": len(respBody),
	}).Debug("Gateway response received")

	if httpResp.StatusCode >= 400 {
		return nil, apierror.Classify(httpResp.StatusCode, respBody, httpResp.Header)
	}

	return respBody, nil
}

// Close closes the HTTP client and cleans up resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
