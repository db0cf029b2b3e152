package metatx

import "fmt"

// ErrorKind classifies relay failures.
type ErrorKind string

const (
	// KindInvariant is a missing precondition (signer, provider, configuration).
	KindInvariant ErrorKind = "invariant_error"
	// KindRelayRejection is the relay transport rejecting or failing a submission.
	KindRelayRejection ErrorKind = "relay_rejection"
	// KindSigningFailure is the signer declining or failing to sign.
	KindSigningFailure ErrorKind = "signing_failure"
	// KindNonceRace is a stale forwarder nonce reported by the relayer.
	KindNonceRace ErrorKind = "nonce_race_failure"
	// KindTransactionFailed is a mined transaction with status 0.
	KindTransactionFailed ErrorKind = "transaction_failed"
	// KindInvalidRequest is a malformed signed request received by a relayer.
	KindInvalidRequest ErrorKind = "invalid_request"
)

// RelayError is returned by every operation on the relay path.
type RelayError struct {
	Kind    ErrorKind              `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors of the same kind, so errors.Is(err, ErrInvariant)
// works for any invariant failure.
func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is.
var (
	ErrInvariant         = &RelayError{Kind: KindInvariant}
	ErrRelayRejection    = &RelayError{Kind: KindRelayRejection}
	ErrSigningFailure    = &RelayError{Kind: KindSigningFailure}
	ErrNonceRace         = &RelayError{Kind: KindNonceRace}
	ErrTransactionFailed = &RelayError{Kind: KindTransactionFailed}
	ErrInvalidRequest    = &RelayError{Kind: KindInvalidRequest}
)

// NewRelayError creates a new relay error
func NewRelayError(kind ErrorKind, message string, err error, details map[string]interface{}) *RelayError {
	return &RelayError{
		Kind:    kind,
		Message: message,
		Details: details,
		Err:     err,
	}
}

// NewInvariantError reports a missing precondition.
func NewInvariantError(message string) *RelayError {
	return NewRelayError(KindInvariant, message, nil, nil)
}

// NewSigningFailure wraps a signer error.
func NewSigningFailure(message string, err error) *RelayError {
	return NewRelayError(KindSigningFailure, message, err, nil)
}

// NewRelayRejection wraps a relay transport error.
func NewRelayRejection(message string, err error, details map[string]interface{}) *RelayError {
	return NewRelayError(KindRelayRejection, message, err, details)
}
