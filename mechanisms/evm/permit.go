package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
)

// PermitBuilder signs ERC-2612 permits, reading the token name and the owner's
// permit nonce from the token contract. It implements metatx.PermitSigner.
type PermitBuilder struct {
	backend  ContractBackend
	deadline *big.Int
	logger   zerolog.Logger
}

// PermitOption configures a PermitBuilder.
type PermitOption func(*PermitBuilder)

// WithPermitDeadline overrides the default MaxUint256 deadline.
func WithPermitDeadline(deadline *big.Int) PermitOption {
	return func(b *PermitBuilder) {
		b.deadline = new(big.Int).Set(deadline)
	}
}

// WithPermitLogger sets the builder's logger.
func WithPermitLogger(logger zerolog.Logger) PermitOption {
	return func(b *PermitBuilder) {
		b.logger = logger
	}
}

// NewPermitBuilder creates a permit builder over backend.
func NewPermitBuilder(backend ContractBackend, opts ...PermitOption) *PermitBuilder {
	b := &PermitBuilder{
		backend:  backend,
		deadline: MaxUint256,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", "permit_builder").Logger()
	return b
}

// SignPermit builds the Permit typed data for params and signs it with sign.
func (b *PermitBuilder) SignPermit(ctx context.Context, params metatx.PermitParams, sign metatx.TypedDataSignFunc) (*metatx.PermitRequest, error) {
	token, err := NewContract(params.Token, ERC20PermitABI, b.backend)
	if err != nil {
		return nil, err
	}
	owner, err := NormalizeAddress(params.Owner)
	if err != nil {
		return nil, err
	}
	spender, err := NormalizeAddress(params.Spender)
	if err != nil {
		return nil, err
	}
	if params.Value == nil {
		return nil, fmt.Errorf("permit value is required")
	}

	out, err := token.Call(ctx, FunctionName)
	if err != nil {
		return nil, fmt.Errorf("failed to read token name: %w", err)
	}
	name, ok := out[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected name result type %T", out[0])
	}

	out, err = token.Call(ctx, FunctionNonces, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read permit nonce: %w", err)
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonces result type %T", out[0])
	}

	permit := metatx.PermitRequest{
		To:       token.Address(),
		Owner:    owner,
		Spender:  spender,
		Value:    params.Value.String(),
		Nonce:    nonce.String(),
		Deadline: b.deadline.String(),
	}

	b.logger.Debug().
		Str("token", permit.To).
		Str("token_name", name).
		Str("owner", owner).
		Str("nonce", permit.Nonce).
		Msg("signing permit")

	data := PermitTypedData(name, permit, metatx.SigningDomain{ChainID: params.ChainID})
	sig, err := sign(ctx, data)
	if err != nil {
		return nil, err
	}

	v, r, s, err := SplitSignature(sig)
	if err != nil {
		return nil, metatx.NewSigningFailure("malformed permit signature", err)
	}
	permit.V = v
	permit.R = hexutil.Encode(r[:])
	permit.S = hexutil.Encode(s[:])

	return &permit, nil
}

// PermitData encodes permit(owner, spender, value, deadline, v, r, s) for a
// signed permit request.
func PermitData(permit metatx.PermitRequest) ([]byte, error) {
	token, err := NewContract(permit.To, ERC20PermitABI, nil)
	if err != nil {
		return nil, err
	}
	value, err := ParseUint256(permit.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	deadline, err := ParseUint256(permit.Deadline)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline: %w", err)
	}
	return token.EncodeFunctionData(FunctionPermit, permit.Owner, permit.Spender, value, deadline, permit.V, permit.R, permit.S)
}

// PermitTypedDataFor rebuilds the typed data a permit request was signed over.
func PermitTypedDataFor(tokenName string, chainID *big.Int, permit metatx.PermitRequest) metatx.TypedData {
	return PermitTypedData(tokenName, permit, metatx.SigningDomain{ChainID: chainID})
}

var _ metatx.PermitSigner = (*PermitBuilder)(nil)
