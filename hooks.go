package metatx

import (
	"context"
	"time"
)

// ============================================================================
// Send Hook Context Types
// ============================================================================

// SendContext contains information passed to send hooks
type SendContext struct {
	Ctx       context.Context
	Call      Call
	Path      string
	Timestamp time.Time
}

// SendResultContext contains the mined receipt and context
type SendResultContext struct {
	SendContext
	Receipt  *TransactionReceipt
	Duration time.Duration
}

// SendFailureContext contains the send failure and context
type SendFailureContext struct {
	SendContext
	Error    error
	Duration time.Duration
}

// ============================================================================
// Send Hook Types
// ============================================================================

// BeforeSendHookResult represents the result of a "before" hook.
// If Abort is true, the send is aborted with the given Reason.
type BeforeSendHookResult struct {
	Abort  bool
	Reason string
}

// BeforeSendHook is called before a call is signed or submitted
type BeforeSendHook func(SendContext) (*BeforeSendHookResult, error)

// AfterSendHook is called after a call is mined successfully
type AfterSendHook func(SendResultContext) error

// OnSendFailureHook is called when a send fails
type OnSendFailureHook func(SendFailureContext)
