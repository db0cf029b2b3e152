package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
)

// ============================================================================
// HTTP Relay Client
// ============================================================================

// RequestIDHeader carries a per-submission id the relayer can log and echo.
const RequestIDHeader = "X-Request-Id"

// HTTPRelayClient dispatches signed requests to a relayer webhook.
// Implements metatx.RelayTransport.
type HTTPRelayClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
	identifier   string
	logger       zerolog.Logger
}

// AuthProvider generates authentication headers for relay requests
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (map[string]string, error)
}

// StaticAuth sends the same headers with every request.
type StaticAuth map[string]string

// GetAuthHeaders returns the static headers.
func (a StaticAuth) GetAuthHeaders(ctx context.Context) (map[string]string, error) {
	return a, nil
}

// RelayConfig configures the HTTP relay client
type RelayConfig struct {
	// URL is the relayer webhook endpoint
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional)
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Identifier for this relayer (optional)
	Identifier string

	// Logger (optional)
	Logger *zerolog.Logger
}

// DefaultTimeout bounds a single relay submission.
const DefaultTimeout = 30 * time.Second

// RelayResponse is the relayer's reply. Result may hold a JSON-encoded
// string or an object; TxHash is set by relayers that reply with a bare hash.
type RelayResponse struct {
	Status  string          `json:"status,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	TxHash  string          `json:"txHash,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type relayResult struct {
	TxHash string `json:"txHash"`
}

// NewHTTPRelayClient creates a new HTTP relay client
func NewHTTPRelayClient(config *RelayConfig) (*HTTPRelayClient, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("relayer URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	identifier := config.Identifier
	if identifier == "" {
		identifier = config.URL
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &HTTPRelayClient{
		url:          config.URL,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
		identifier:   identifier,
		logger:       logger.With().Str("component", "relay_client").Str("relayer", identifier).Logger(),
	}, nil
}

// Identifier returns the relayer identifier
func (c *HTTPRelayClient) Identifier() string {
	return c.identifier
}

// Relay posts the signed request and returns the relayed transaction hash.
// A 409 reply surfaces as nonce_race_failure, every other failure as
// relay_rejection.
func (c *HTTPRelayClient) Relay(ctx context.Context, signed metatx.SignedRequest) (string, error) {
	body, err := json.Marshal(signed)
	if err != nil {
		return "", fmt.Errorf("failed to marshal relay request: %w", err)
	}

	requestID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	if c.authProvider != nil {
		headers, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	c.logger.Debug().
		Str("request_id", requestID).
		Str("type", signed.Type).
		Msg("submitting signed request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", metatx.NewRelayRejection("relay request failed", err, map[string]interface{}{
			"requestId": requestID,
		})
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", metatx.NewRelayRejection("failed to read relay response", err, nil)
	}

	var relayResponse RelayResponse
	decodeErr := json.Unmarshal(responseBody, &relayResponse)

	details := map[string]interface{}{
		"requestId":  requestID,
		"statusCode": resp.StatusCode,
	}

	if resp.StatusCode == http.StatusConflict {
		return "", metatx.NewRelayError(metatx.KindNonceRace, relayResponse.reason(responseBody), nil, details)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", metatx.NewRelayRejection(
			fmt.Sprintf("relayer returned %d: %s", resp.StatusCode, relayResponse.reason(responseBody)), nil, details)
	}
	if decodeErr != nil {
		return "", metatx.NewRelayRejection("malformed relay response", decodeErr, details)
	}
	if relayResponse.Status != "" && relayResponse.Status != "success" {
		return "", metatx.NewRelayRejection(relayResponse.reason(responseBody), nil, details)
	}

	txHash, err := relayResponse.TransactionHash()
	if err != nil {
		return "", metatx.NewRelayRejection("malformed relay result", err, details)
	}

	c.logger.Info().
		Str("request_id", requestID).
		Str("tx_hash", txHash).
		Msg("relayer accepted request")

	return txHash, nil
}

// TransactionHash extracts the relayed transaction hash from either reply shape.
func (r RelayResponse) TransactionHash() (string, error) {
	if r.TxHash != "" {
		return r.TxHash, nil
	}
	if len(r.Result) == 0 {
		return "", fmt.Errorf("response has no result")
	}

	raw := []byte(r.Result)
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}

	var result relayResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode result: %w", err)
	}
	if result.TxHash == "" {
		return "", fmt.Errorf("result has no txHash")
	}
	return result.TxHash, nil
}

func (r RelayResponse) reason(body []byte) string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	case len(body) > 0:
		return string(body)
	default:
		return "empty response"
	}
}

var _ metatx.RelayTransport = (*HTTPRelayClient)(nil)
