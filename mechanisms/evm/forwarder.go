package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	metatx "github.com/dropforge/metatx/go"
)

// ForwardRequestTuple is the ABI shape of the forwarder's ForwardRequest struct.
type ForwardRequestTuple struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Gas   *big.Int
	Nonce *big.Int
	Data  []byte
}

// ToForwardRequestTuple parses a forward request into its ABI tuple.
func ToForwardRequestTuple(req metatx.ForwardRequest) (ForwardRequestTuple, error) {
	if !common.IsHexAddress(req.From) || !common.IsHexAddress(req.To) {
		return ForwardRequestTuple{}, fmt.Errorf("invalid from/to address")
	}
	value, err := ParseUint256(req.Value)
	if err != nil {
		return ForwardRequestTuple{}, fmt.Errorf("invalid value: %w", err)
	}
	gas, err := ParseUint256(req.Gas)
	if err != nil {
		return ForwardRequestTuple{}, fmt.Errorf("invalid gas: %w", err)
	}
	nonce, err := ParseUint256(req.Nonce)
	if err != nil {
		return ForwardRequestTuple{}, fmt.Errorf("invalid nonce: %w", err)
	}
	data, err := metatx.HexToBytes(req.Data)
	if err != nil {
		return ForwardRequestTuple{}, fmt.Errorf("invalid data: %w", err)
	}
	return ForwardRequestTuple{
		From:  common.HexToAddress(req.From),
		To:    common.HexToAddress(req.To),
		Value: value,
		Gas:   gas,
		Nonce: nonce,
		Data:  data,
	}, nil
}

// Forwarder binds the trusted forwarder contract. It serves forwarder nonces to
// the relay builder and encodes execute calls for relayers.
type Forwarder struct {
	contract *Contract
}

// NewForwarder binds the forwarder at address.
func NewForwarder(address string, backend ContractBackend) (*Forwarder, error) {
	contract, err := NewContract(address, ForwarderABI, backend)
	if err != nil {
		return nil, err
	}
	return &Forwarder{contract: contract}, nil
}

// Address returns the checksummed forwarder address.
func (f *Forwarder) Address() string {
	return f.contract.Address()
}

// Contract returns the underlying binding.
func (f *Forwarder) Contract() *Contract {
	return f.contract
}

// Nonce reads getNonce(from).
func (f *Forwarder) Nonce(ctx context.Context, from string) (*big.Int, error) {
	out, err := f.contract.Call(ctx, FunctionGetNonce, from)
	if err != nil {
		return nil, err
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result type %T", out[0])
	}
	return nonce, nil
}

// ExecuteData encodes execute(req, domainSeparator, requestTypeHash, "", sig)
// for a forward request signed under domain.
func (f *Forwarder) ExecuteData(req metatx.ForwardRequest, domain metatx.SigningDomain, signature []byte) ([]byte, error) {
	return f.encode(FunctionExecute, req, domain, signature)
}

// VerifyData encodes the matching verify call.
func (f *Forwarder) VerifyData(req metatx.ForwardRequest, domain metatx.SigningDomain, signature []byte) ([]byte, error) {
	return f.encode(FunctionVerify, req, domain, signature)
}

func (f *Forwarder) encode(fn string, req metatx.ForwardRequest, domain metatx.SigningDomain, signature []byte) ([]byte, error) {
	tuple, err := ToForwardRequestTuple(req)
	if err != nil {
		return nil, err
	}
	separator, err := DomainSeparator(domain)
	if err != nil {
		return nil, err
	}
	return f.contract.EncodeFunctionData(fn, tuple, separator, RequestTypeHash(), []byte{}, signature)
}

// ForwarderNonceSource reads nonces from any forwarder deployment, implementing
// metatx.NonceSource.
type ForwarderNonceSource struct {
	backend ContractBackend
}

// NewForwarderNonceSource creates a nonce source over backend.
func NewForwarderNonceSource(backend ContractBackend) *ForwarderNonceSource {
	return &ForwarderNonceSource{backend: backend}
}

// GetNonce reads getNonce(from) on the forwarder.
func (s *ForwarderNonceSource) GetNonce(ctx context.Context, forwarder string, from string) (*big.Int, error) {
	f, err := NewForwarder(forwarder, s.backend)
	if err != nil {
		return nil, err
	}
	return f.Nonce(ctx, from)
}

var _ metatx.NonceSource = (*ForwarderNonceSource)(nil)
