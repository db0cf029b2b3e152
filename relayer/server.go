// Package relayer is a reference relay service. It accepts signed forward and
// permit requests over HTTP, checks them against the chain, and submits them
// with its own key.
package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
	mevm "github.com/dropforge/metatx/go/mechanisms/evm"
)

// RequestIDHeader carries the request id between relay client and relayer.
const RequestIDHeader = "X-Request-Id"

// Config configures a Server.
type Config struct {
	// ChainID the relayer submits on
	ChainID *big.Int

	// Forwarders accepted in requests; empty accepts any forwarder
	Forwarders []string

	// Nonces reads the forwarder nonce of a sender (optional, skips the check when nil)
	Nonces metatx.NonceSource

	// Tokens reads permit token state (required for permit requests)
	Tokens ChainReader

	// Submitter puts requests on chain
	Submitter Submitter

	// Registry for /metrics (optional)
	Registry *prometheus.Registry

	// Logger (optional)
	Logger *zerolog.Logger
}

// Server is the relay HTTP service.
type Server struct {
	chainID    *big.Int
	forwarders map[string]bool
	nonces     metatx.NonceSource
	tokens     ChainReader
	submitter  Submitter
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	logger     zerolog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer validates config and builds the router.
func NewServer(config Config) (*Server, error) {
	if config.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	if config.Submitter == nil {
		return nil, errors.New("submitter is required")
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}
	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	forwarders := make(map[string]bool, len(config.Forwarders))
	for _, f := range config.Forwarders {
		forwarders[strings.ToLower(f)] = true
	}

	s := &Server{
		chainID:    new(big.Int).Set(config.ChainID),
		forwarders: forwarders,
		nonces:     config.Nonces,
		tokens:     config.Tokens,
		submitter:  config.Submitter,
		registry:   registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metatx_relayer_requests_total",
			Help: "Relay submissions received, by request type and HTTP status.",
		}, []string{"type", "status"}),
		logger: logger.With().Str("component", "relayer").Logger(),
	}
	if err := registry.Register(s.requests); err != nil {
		return nil, fmt.Errorf("failed to register relayer metrics: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"chainId": s.chainID.String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	r.POST("/relay", s.handleRelay)

	s.engine = r
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("chain_id", s.chainID.String()).Msg("relayer listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("shutting down relayer")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)

		start := time.Now()
		c.Next()

		s.logger.Debug().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("handled request")
	}
}

func (s *Server) handleRelay(c *gin.Context) {
	ctx := c.Request.Context()
	logger := s.logger.With().Str("request_id", c.GetString("request_id")).Logger()

	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, "unknown", http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := ValidateRequest(body); err != nil {
		var details map[string]interface{}
		var re *metatx.RelayError
		if errors.As(err, &re) {
			details = re.Details
		}
		s.fail(c, "unknown", http.StatusBadRequest, "Invalid request body", details)
		return
	}

	var signed metatx.SignedRequest
	if err := json.Unmarshal(body, &signed); err != nil {
		s.fail(c, "unknown", http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if len(s.forwarders) > 0 && !s.forwarders[strings.ToLower(signed.ForwarderAddress)] {
		s.fail(c, signed.Type, http.StatusBadRequest, "Unknown forwarder", gin.H{"forwarderAddress": signed.ForwarderAddress})
		return
	}

	signature, err := metatx.HexToBytes(signed.Signature)
	if err != nil {
		s.fail(c, signed.Type, http.StatusBadRequest, "Invalid signature encoding", nil)
		return
	}

	var txHash string
	switch signed.Type {
	case metatx.RequestTypePermit:
		txHash, err = s.relayPermit(ctx, c, signed, signature)
	default:
		txHash, err = s.relayForward(ctx, c, signed, signature)
	}
	if err != nil {
		// relayPermit and relayForward have already written the response
		logger.Warn().Err(err).Str("type", signed.Type).Msg("relay request refused")
		return
	}

	result, _ := json.Marshal(map[string]string{"txHash": txHash})
	s.requests.WithLabelValues(signed.Type, fmt.Sprint(http.StatusOK)).Inc()
	logger.Info().Str("type", signed.Type).Str("tx_hash", txHash).Msg("relayed request")
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"result": string(result),
	})
}

func (s *Server) relayForward(ctx context.Context, c *gin.Context, signed metatx.SignedRequest, signature []byte) (string, error) {
	req := *signed.Forward
	domain := metatx.NewForwarderDomain(s.chainID, signed.ForwarderAddress)

	ok, err := mevm.VerifyTypedData(req.TypedData(domain), signature, req.From)
	if err != nil || !ok {
		s.fail(c, signed.Type, http.StatusBadRequest, "Signature does not match request sender", gin.H{"from": req.From})
		return "", fmt.Errorf("signature check failed for %s: %v", req.From, err)
	}

	if s.nonces != nil {
		current, err := s.nonces.GetNonce(ctx, signed.ForwarderAddress, req.From)
		if err != nil {
			s.fail(c, signed.Type, http.StatusBadGateway, "Failed to read forwarder nonce", nil)
			return "", err
		}
		if !sameNonce(current, req.Nonce) {
			s.fail(c, signed.Type, http.StatusConflict, "Nonce mismatch", gin.H{
				"expected": current.String(),
				"received": req.Nonce,
			})
			return "", fmt.Errorf("nonce mismatch for %s: expected %s, got %s", req.From, current, req.Nonce)
		}
	}

	txHash, err := s.submitter.ExecuteForward(ctx, req, domain, signature)
	if err != nil {
		s.fail(c, signed.Type, http.StatusBadGateway, "Submission failed", gin.H{"reason": err.Error()})
		return "", err
	}
	return txHash, nil
}

func (s *Server) relayPermit(ctx context.Context, c *gin.Context, signed metatx.SignedRequest, signature []byte) (string, error) {
	permit := *signed.Permit
	if s.tokens == nil {
		s.fail(c, signed.Type, http.StatusBadRequest, "Permit requests are not supported", nil)
		return "", errors.New("no token reader configured")
	}

	packed, err := metatx.PackSignature(permit.R, permit.S, permit.V)
	if err != nil || !strings.EqualFold(packed, signed.Signature) {
		s.fail(c, signed.Type, http.StatusBadRequest, "Signature does not match permit v, r, s", nil)
		return "", fmt.Errorf("permit signature parts disagree: %v", err)
	}

	name, err := s.tokens.TokenName(ctx, permit.To)
	if err != nil {
		s.fail(c, signed.Type, http.StatusBadGateway, "Failed to read token name", nil)
		return "", err
	}
	ok, err := mevm.VerifyTypedData(mevm.PermitTypedDataFor(name, s.chainID, permit), signature, permit.Owner)
	if err != nil || !ok {
		s.fail(c, signed.Type, http.StatusBadRequest, "Signature does not match permit owner", gin.H{"owner": permit.Owner})
		return "", fmt.Errorf("permit signature check failed for %s: %v", permit.Owner, err)
	}

	current, err := s.tokens.PermitNonce(ctx, permit.To, permit.Owner)
	if err != nil {
		s.fail(c, signed.Type, http.StatusBadGateway, "Failed to read permit nonce", nil)
		return "", err
	}
	if !sameNonce(current, permit.Nonce) {
		s.fail(c, signed.Type, http.StatusConflict, "Nonce mismatch", gin.H{
			"expected": current.String(),
			"received": permit.Nonce,
		})
		return "", fmt.Errorf("permit nonce mismatch for %s", permit.Owner)
	}

	txHash, err := s.submitter.ExecutePermit(ctx, permit)
	if err != nil {
		s.fail(c, signed.Type, http.StatusBadGateway, "Submission failed", gin.H{"reason": err.Error()})
		return "", err
	}
	return txHash, nil
}

func sameNonce(current *big.Int, received string) bool {
	n, err := mevm.ParseUint256(received)
	return err == nil && current != nil && n.Cmp(current) == 0
}

func (s *Server) fail(c *gin.Context, requestType string, status int, message string, details map[string]interface{}) {
	s.requests.WithLabelValues(requestType, fmt.Sprint(status)).Inc()
	body := gin.H{
		"status":  "error",
		"error":   message,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, body)
}
