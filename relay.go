package metatx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
)

// MethodSignTypedData is the JSON-RPC method wallet connectors accept for
// EIP-712 signing.
const MethodSignTypedData = "eth_signTypedData"

// RelayBuilder turns a contract call into a signed forwarder request, hands it
// to the relay transport and waits for the relayed transaction to be mined.
type RelayBuilder struct {
	nonces  *NonceTracker
	metrics *Metrics
	logger  zerolog.Logger
}

// RelayBuilderOption configures a RelayBuilder.
type RelayBuilderOption func(*RelayBuilder)

// WithNonceTracker shares a nonce tracker between builders.
func WithNonceTracker(t *NonceTracker) RelayBuilderOption {
	return func(b *RelayBuilder) {
		b.nonces = t
	}
}

// WithBuilderLogger sets the builder's logger.
func WithBuilderLogger(logger zerolog.Logger) RelayBuilderOption {
	return func(b *RelayBuilder) {
		b.logger = logger
	}
}

// WithBuilderMetrics sets the builder's metrics.
func WithBuilderMetrics(m *Metrics) RelayBuilderOption {
	return func(b *RelayBuilder) {
		b.metrics = m
	}
}

// NewRelayBuilder creates a relay builder with its own nonce tracker unless
// one is supplied.
func NewRelayBuilder(opts ...RelayBuilderOption) *RelayBuilder {
	b := &RelayBuilder{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.nonces == nil {
		b.nonces = NewNonceTracker()
	}
	b.logger = b.logger.With().Str("component", "relay_builder").Logger()
	return b
}

// Nonces returns the builder's nonce tracker.
func (b *RelayBuilder) Nonces() *NonceTracker {
	return b.nonces
}

// checkPreconditions runs before any network call.
func (b *RelayBuilder) checkPreconditions(ec ExecutionContext, call Call) error {
	if ec.Signer() == nil {
		return NewInvariantError("cannot execute gasless transaction without valid signer")
	}
	if ec.Provider() == nil {
		return NewInvariantError("no provider to execute transaction")
	}
	if call.Contract == nil {
		return NewInvariantError("no contract binding for call")
	}
	opts := ec.Options()
	if opts.ForwarderAddress == "" {
		return NewInvariantError("no forwarder address configured")
	}
	if opts.NonceSource == nil {
		return NewInvariantError("no forwarder nonce source configured")
	}
	return nil
}

// Build signs the call without dispatching it. The returned request carries
// either a ForwardRequest or, for approve on a permit-capable token, a
// PermitRequest.
func (b *RelayBuilder) Build(ctx context.Context, ec ExecutionContext, call Call) (*SignedRequest, error) {
	if err := b.checkPreconditions(ec, call); err != nil {
		return nil, err
	}

	signer := ec.Signer()
	opts := ec.Options()

	chainID, err := ec.Provider().ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chain id: %w", err)
	}

	from, err := signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signer address: %w", err)
	}
	to := call.Contract.Address()

	value := "0"
	if call.Overrides != nil && call.Overrides.Value != nil {
		value = call.Overrides.Value.String()
	}

	data, err := call.Contract.EncodeFunctionData(call.Function, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", call.Function, err)
	}

	estimate, err := call.Contract.EstimateGas(ctx, from, call.Function, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas for %s: %w", call.Function, err)
	}
	gas := ForwardedGasLimit(estimate)

	nonce, err := b.nonces.Acquire(ctx, opts.NonceSource, opts.ForwarderAddress, from)
	if err != nil {
		return nil, err
	}
	b.metrics.nonceAcquired()

	b.logger.Debug().
		Str("chain_id", chainID.String()).
		Str("from", from).
		Str("to", to).
		Str("function", call.Function).
		Uint64("gas_estimate", estimate).
		Uint64("gas", gas).
		Str("nonce", nonce.String()).
		Msg("built forward request parameters")

	domain := NewForwarderDomain(chainID, opts.ForwarderAddress)
	sign := b.signFunc(signer, from)

	if isApproveCall(call) {
		// a permit goes to the token, the forwarder nonce stays unused
		b.nonces.Release(opts.ForwarderAddress, from, nonce)
		return b.buildPermit(ctx, opts, chainID, from, to, call, sign)
	}

	req := &ForwardRequest{
		From:  from,
		To:    to,
		Value: value,
		Gas:   new(big.Int).SetUint64(gas).String(),
		Nonce: nonce.String(),
		Data:  BytesToHex(data),
	}

	signature, err := sign(ctx, req.TypedData(domain))
	if err != nil {
		b.nonces.Release(opts.ForwarderAddress, from, nonce)
		return nil, err
	}

	return &SignedRequest{
		Type:             RequestTypeForward,
		Forward:          req,
		Signature:        BytesToHex(signature),
		ForwarderAddress: opts.ForwarderAddress,
	}, nil
}

func (b *RelayBuilder) buildPermit(
	ctx context.Context,
	opts Options,
	chainID *big.Int,
	from string,
	token string,
	call Call,
	sign TypedDataSignFunc,
) (*SignedRequest, error) {
	if opts.PermitSigner == nil {
		return nil, NewInvariantError("approve on a permit token requires a permit signer")
	}

	spender, err := addressString(call.Args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid approve spender: %w", err)
	}
	amount, err := ToBigInt(call.Args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid approve amount: %w", err)
	}

	b.logger.Debug().
		Str("token", token).
		Str("owner", from).
		Str("spender", spender).
		Msg("approve routed through ERC-2612 permit")

	permit, err := opts.PermitSigner.SignPermit(ctx, PermitParams{
		ChainID: chainID,
		Token:   token,
		Owner:   from,
		Spender: spender,
		Value:   amount,
	}, sign)
	if err != nil {
		var relayErr *RelayError
		if errors.As(err, &relayErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to build permit: %w", err)
	}

	signature, err := PackSignature(permit.R, permit.S, permit.V)
	if err != nil {
		return nil, NewSigningFailure("malformed permit signature", err)
	}

	return &SignedRequest{
		Type:             RequestTypePermit,
		Permit:           permit,
		Signature:        signature,
		ForwarderAddress: opts.ForwarderAddress,
	}, nil
}

// signFunc picks the signing entry point from the signer's kind.
func (b *RelayBuilder) signFunc(signer Signer, from string) TypedDataSignFunc {
	return func(ctx context.Context, data TypedData) ([]byte, error) {
		if signer.Kind() != WalletConnectSigner {
			sig, err := signer.SignTypedData(ctx, data)
			if err != nil {
				return nil, NewSigningFailure("failed to sign typed data", err)
			}
			return sig, nil
		}

		rpcSigner, ok := signer.(RawRPCSigner)
		if !ok {
			return nil, NewInvariantError("wallet connector signer does not expose raw JSON-RPC")
		}
		payload, err := json.Marshal(data.Payload())
		if err != nil {
			return nil, NewSigningFailure("failed to encode typed data payload", err)
		}
		raw, err := rpcSigner.SendRPC(ctx, MethodSignTypedData, strings.ToLower(from), string(payload))
		if err != nil {
			return nil, NewSigningFailure("wallet connector refused to sign", err)
		}
		var sigHex string
		if err := json.Unmarshal(raw, &sigHex); err != nil {
			return nil, NewSigningFailure("unexpected eth_signTypedData result", err)
		}
		sig, err := HexToBytes(sigHex)
		if err != nil {
			return nil, NewSigningFailure("invalid signature from wallet connector", err)
		}
		return sig, nil
	}
}

// Execute builds and signs the call, dispatches it through the relay transport
// and blocks until the relayed transaction is mined. A mined transaction with
// status 0 is returned together with a transaction_failed error.
func (b *RelayBuilder) Execute(ctx context.Context, ec ExecutionContext, call Call) (*TransactionReceipt, error) {
	if err := b.checkPreconditions(ec, call); err != nil {
		return nil, err
	}
	relay := ec.Options().Relay
	if relay == nil {
		return nil, NewInvariantError("no relay transport configured")
	}

	req, err := b.Build(ctx, ec, call)
	if err != nil {
		return nil, err
	}

	txHash, err := relay.Relay(ctx, *req)
	if err != nil {
		if req.Forward != nil {
			if nonce, ok := new(big.Int).SetString(req.Forward.Nonce, 10); ok {
				b.nonces.Release(req.ForwarderAddress, req.Forward.From, nonce)
			}
		}
		var relayErr *RelayError
		if errors.As(err, &relayErr) {
			return nil, err
		}
		return nil, NewRelayRejection("relay transaction failed", err, nil)
	}

	b.logger.Info().
		Str("type", req.Type).
		Str("tx_hash", txHash).
		Msg("relayed meta-transaction")

	receipt, err := ec.Provider().WaitForTransaction(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", txHash, err)
	}

	if receipt.Status == TxStatusFailed {
		return receipt, NewRelayError(KindTransactionFailed, "relayed transaction reverted", nil, map[string]interface{}{
			"txHash": txHash,
			"type":   req.Type,
		})
	}

	b.logger.Info().
		Str("tx_hash", txHash).
		Uint64("block", receipt.BlockNumber).
		Msg("relayed transaction mined")

	return receipt, nil
}
