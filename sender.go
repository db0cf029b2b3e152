package metatx

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sender routes calls to the relay path when the execution context is
// configured for gasless transactions, and to the standard path otherwise.
type Sender struct {
	relay    *RelayBuilder
	standard *StandardPath
	metrics  *Metrics
	logger   zerolog.Logger

	beforeSendHooks    []BeforeSendHook
	afterSendHooks     []AfterSendHook
	onSendFailureHooks []OnSendFailureHook
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithLogger sets the logger used by the sender and the paths it creates.
func WithLogger(logger zerolog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = logger
	}
}

// WithMetrics records sends on m.
func WithMetrics(m *Metrics) SenderOption {
	return func(s *Sender) {
		s.metrics = m
	}
}

// WithRelayBuilder replaces the default relay builder.
func WithRelayBuilder(b *RelayBuilder) SenderOption {
	return func(s *Sender) {
		s.relay = b
	}
}

// WithBeforeSendHook registers a hook run before every send.
func WithBeforeSendHook(hook BeforeSendHook) SenderOption {
	return func(s *Sender) {
		s.beforeSendHooks = append(s.beforeSendHooks, hook)
	}
}

// WithAfterSendHook registers a hook run after every successful send.
func WithAfterSendHook(hook AfterSendHook) SenderOption {
	return func(s *Sender) {
		s.afterSendHooks = append(s.afterSendHooks, hook)
	}
}

// WithOnSendFailureHook registers a hook run after every failed send.
func WithOnSendFailureHook(hook OnSendFailureHook) SenderOption {
	return func(s *Sender) {
		s.onSendFailureHooks = append(s.onSendFailureHooks, hook)
	}
}

// NewSender creates a sender.
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.relay == nil {
		s.relay = NewRelayBuilder(WithBuilderLogger(s.logger), WithBuilderMetrics(s.metrics))
	}
	s.standard = NewStandardPath(s.logger)
	s.logger = s.logger.With().Str("component", "sender").Logger()
	return s
}

// Send executes the call and returns the mined receipt.
func (s *Sender) Send(ctx context.Context, ec ExecutionContext, call Call) (*TransactionReceipt, error) {
	path := PathStandard
	if ec.Gasless() {
		path = PathRelay
	}

	hookCtx := SendContext{
		Ctx:       ctx,
		Call:      call,
		Path:      path,
		Timestamp: time.Now(),
	}

	for _, hook := range s.beforeSendHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, NewInvariantError(fmt.Sprintf("send aborted: %s", result.Reason))
		}
	}

	start := time.Now()
	var (
		receipt *TransactionReceipt
		err     error
	)
	if path == PathRelay {
		receipt, err = s.relay.Execute(ctx, ec, call)
	} else {
		receipt, err = s.standard.Execute(ctx, ec, call)
	}
	duration := time.Since(start)
	s.metrics.observe(path, err, duration)

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("path", path).
			Str("function", call.Function).
			Msg("send failed")
		for _, hook := range s.onSendFailureHooks {
			hook(SendFailureContext{SendContext: hookCtx, Error: err, Duration: duration})
		}
		return receipt, err
	}

	for _, hook := range s.afterSendHooks {
		if hookErr := hook(SendResultContext{SendContext: hookCtx, Receipt: receipt, Duration: duration}); hookErr != nil {
			s.logger.Warn().Err(hookErr).Msg("after send hook failed")
		}
	}

	return receipt, nil
}
