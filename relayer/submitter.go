package relayer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
	mevm "github.com/dropforge/metatx/go/mechanisms/evm"
)

// Submitter puts verified requests on chain.
type Submitter interface {
	// ExecuteForward calls execute on the forwarder named by domain.
	ExecuteForward(ctx context.Context, req metatx.ForwardRequest, domain metatx.SigningDomain, signature []byte) (string, error)

	// ExecutePermit calls permit on the token.
	ExecutePermit(ctx context.Context, permit metatx.PermitRequest) (string, error)
}

// ChainReader is the on-chain state the relayer checks before submitting.
type ChainReader interface {
	TokenName(ctx context.Context, token string) (string, error)
	PermitNonce(ctx context.Context, token string, owner string) (*big.Int, error)
}

// EthSubmitter submits through a transaction signer holding the relayer key.
type EthSubmitter struct {
	signer  metatx.TransactionSigner
	oracle  metatx.GasPriceOracle
	chainID *big.Int
	logger  zerolog.Logger
}

// SubmitterOption configures an EthSubmitter.
type SubmitterOption func(*EthSubmitter)

// WithSubmitterGasOracle prices relayer transactions from oracle instead of
// the node's suggestion.
func WithSubmitterGasOracle(oracle metatx.GasPriceOracle, chainID *big.Int) SubmitterOption {
	return func(s *EthSubmitter) {
		s.oracle = oracle
		s.chainID = chainID
	}
}

// NewEthSubmitter creates a submitter.
func NewEthSubmitter(signer metatx.TransactionSigner, logger zerolog.Logger, opts ...SubmitterOption) *EthSubmitter {
	s := &EthSubmitter{
		signer: signer,
		logger: logger.With().Str("component", "submitter").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EthSubmitter) send(ctx context.Context, to string, data []byte) (string, error) {
	req := metatx.TransactionRequest{To: to, Data: data}
	if s.oracle != nil {
		price, err := s.oracle.GasPrice(ctx, s.chainID)
		if err != nil {
			return "", fmt.Errorf("failed to get gas price: %w", err)
		}
		req.GasPrice = price
	}
	return s.signer.SendTransaction(ctx, req)
}

// ExecuteForward encodes and sends execute(req, domainSeparator, requestTypeHash, "", sig).
func (s *EthSubmitter) ExecuteForward(ctx context.Context, req metatx.ForwardRequest, domain metatx.SigningDomain, signature []byte) (string, error) {
	forwarder, err := mevm.NewForwarder(domain.VerifyingContract, nil)
	if err != nil {
		return "", err
	}
	data, err := forwarder.ExecuteData(req, domain, signature)
	if err != nil {
		return "", fmt.Errorf("failed to encode execute: %w", err)
	}

	txHash, err := s.send(ctx, forwarder.Address(), data)
	if err != nil {
		return "", err
	}

	s.logger.Info().
		Str("from", req.From).
		Str("to", req.To).
		Str("nonce", req.Nonce).
		Str("tx_hash", txHash).
		Msg("submitted forward request")
	return txHash, nil
}

// ExecutePermit encodes and sends permit(owner, spender, value, deadline, v, r, s).
func (s *EthSubmitter) ExecutePermit(ctx context.Context, permit metatx.PermitRequest) (string, error) {
	data, err := mevm.PermitData(permit)
	if err != nil {
		return "", fmt.Errorf("failed to encode permit: %w", err)
	}

	txHash, err := s.send(ctx, permit.To, data)
	if err != nil {
		return "", err
	}

	s.logger.Info().
		Str("token", permit.To).
		Str("owner", permit.Owner).
		Str("spender", permit.Spender).
		Str("tx_hash", txHash).
		Msg("submitted permit")
	return txHash, nil
}

// TokenReader reads token state through contract calls.
type TokenReader struct {
	backend mevm.ContractBackend
}

// NewTokenReader creates a reader over backend.
func NewTokenReader(backend mevm.ContractBackend) *TokenReader {
	return &TokenReader{backend: backend}
}

// TokenName reads name().
func (r *TokenReader) TokenName(ctx context.Context, token string) (string, error) {
	contract, err := mevm.NewContract(token, mevm.ERC20PermitABI, r.backend)
	if err != nil {
		return "", err
	}
	out, err := contract.Call(ctx, mevm.FunctionName)
	if err != nil {
		return "", err
	}
	name, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected name result type %T", out[0])
	}
	return name, nil
}

// PermitNonce reads nonces(owner).
func (r *TokenReader) PermitNonce(ctx context.Context, token string, owner string) (*big.Int, error) {
	contract, err := mevm.NewContract(token, mevm.ERC20PermitABI, r.backend)
	if err != nil {
		return nil, err
	}
	out, err := contract.Call(ctx, mevm.FunctionNonces, owner)
	if err != nil {
		return nil, err
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonces result type %T", out[0])
	}
	return nonce, nil
}

var (
	_ Submitter   = (*EthSubmitter)(nil)
	_ ChainReader = (*TokenReader)(nil)
)
