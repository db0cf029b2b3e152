package metatx

import (
	"context"
	"encoding/json"
	"math/big"
)

// ============================================================================
// Upstream: contract binding
// ============================================================================

// ContractBinding exposes the parts of a contract the relay path needs.
type ContractBinding interface {
	// Address returns the checksummed contract address.
	Address() string

	// EncodeFunctionData ABI-encodes a call. fn is either a method name or a
	// full signature such as "approve(address,uint256)".
	EncodeFunctionData(fn string, args ...interface{}) ([]byte, error)

	// EstimateGas estimates the gas of calling fn from the given sender.
	EstimateGas(ctx context.Context, from string, fn string, args ...interface{}) (uint64, error)

	// HasFunction reports whether the contract interface exposes the signature.
	HasFunction(signature string) bool
}

// ============================================================================
// Downstream: chain provider, signer identity, relay transport
// ============================================================================

// ChainProvider is the read/wait side of a chain connection.
type ChainProvider interface {
	ChainID(ctx context.Context) (*big.Int, error)

	// WaitForTransaction blocks until the transaction is mined or ctx is done.
	WaitForTransaction(ctx context.Context, txHash string) (*TransactionReceipt, error)

	// Send performs a raw JSON-RPC call.
	Send(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// SignerKind tags how a signer produces typed-data signatures.
type SignerKind int

const (
	// StandardSigner signs typed data through its native entry point.
	StandardSigner SignerKind = iota
	// WalletConnectSigner can only sign through raw eth_signTypedData JSON-RPC.
	WalletConnectSigner
)

func (k SignerKind) String() string {
	switch k {
	case WalletConnectSigner:
		return "walletconnect"
	default:
		return "standard"
	}
}

// Signer is the signing identity attached to an execution context.
type Signer interface {
	// Address returns the checksummed signer address.
	Address(ctx context.Context) (string, error)

	// Kind is fixed at construction time by the signer adapter.
	Kind() SignerKind

	// SignTypedData is the native EIP-712 signing entry point. It returns a
	// 65-byte r||s||v signature.
	SignTypedData(ctx context.Context, data TypedData) ([]byte, error)
}

// RawRPCSigner is implemented by WalletConnectSigner adapters: signing goes
// through their connector's raw JSON-RPC method.
type RawRPCSigner interface {
	Signer
	SendRPC(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// TransactionSigner is a signer that can submit transactions directly. Only
// the standard (non-relayed) path uses it.
type TransactionSigner interface {
	Signer
	SendTransaction(ctx context.Context, tx TransactionRequest) (string, error)
}

// RelayTransport dispatches a signed request to a relayer and returns the
// hash of the transaction the relayer submitted.
type RelayTransport interface {
	Relay(ctx context.Context, req SignedRequest) (string, error)
}

// RelayFunc adapts a plain function to RelayTransport.
type RelayFunc func(ctx context.Context, req SignedRequest) (string, error)

// Relay calls f.
func (f RelayFunc) Relay(ctx context.Context, req SignedRequest) (string, error) {
	return f(ctx, req)
}

// NonceSource reads the per-sender nonce tracked by a forwarder contract.
type NonceSource interface {
	GetNonce(ctx context.Context, forwarder string, from string) (*big.Int, error)
}

// TypedDataSignFunc signs typed data on behalf of the caller's signer,
// following the signer's kind.
type TypedDataSignFunc func(ctx context.Context, data TypedData) ([]byte, error)

// PermitParams describes an ERC-2612 permit to sign.
type PermitParams struct {
	ChainID *big.Int
	Token   string
	Owner   string
	Spender string
	Value   *big.Int
}

// PermitSigner builds and signs an ERC-2612 permit for a token.
type PermitSigner interface {
	SignPermit(ctx context.Context, params PermitParams, sign TypedDataSignFunc) (*PermitRequest, error)
}

// GasPriceOracle suggests a gas price for the standard path. A nil price with
// a nil error means no override.
type GasPriceOracle interface {
	GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error)
}
