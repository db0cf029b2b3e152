package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
	mevm "github.com/dropforge/metatx/go/mechanisms/evm"
)

// ErrNativeSigningUnavailable is returned by WalletConnectSigner.SignTypedData:
// connector sessions only sign through raw JSON-RPC.
var ErrNativeSigningUnavailable = errors.New("wallet connector does not expose native typed data signing")

// RPCCaller performs raw JSON-RPC calls against the connector session.
// *rpc.Client satisfies it.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// WalletConnectSigner is a WalletConnectSigner identity: a remote wallet
// reachable over a JSON-RPC session.
type WalletConnectSigner struct {
	address common.Address
	rpc     RPCCaller
	logger  zerolog.Logger
}

// NewWalletConnectSigner wraps a connector session for address.
func NewWalletConnectSigner(address string, rpc RPCCaller, logger zerolog.Logger) (*WalletConnectSigner, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}
	if rpc == nil {
		return nil, fmt.Errorf("wallet connector session is required")
	}
	return &WalletConnectSigner{
		address: common.HexToAddress(address),
		rpc:     rpc,
		logger:  logger.With().Str("component", "walletconnect_signer").Logger(),
	}, nil
}

// Address returns the checksummed account address.
func (s *WalletConnectSigner) Address(ctx context.Context) (string, error) {
	return s.address.Hex(), nil
}

// Kind reports WalletConnectSigner.
func (s *WalletConnectSigner) Kind() metatx.SignerKind {
	return metatx.WalletConnectSigner
}

// SignTypedData always fails; the relay builder signs through SendRPC.
func (s *WalletConnectSigner) SignTypedData(ctx context.Context, data metatx.TypedData) ([]byte, error) {
	return nil, ErrNativeSigningUnavailable
}

// SendRPC forwards a raw JSON-RPC request to the connector session.
func (s *WalletConnectSigner) SendRPC(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	s.logger.Debug().Str("request_id", id).Str("method", method).Msg("sending connector request")

	var result json.RawMessage
	if err := s.rpc.CallContext(ctx, &result, method, params...); err != nil {
		s.logger.Debug().Str("request_id", id).Err(err).Msg("connector request failed")
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	return result, nil
}

// RecoverConnectorSignature checks a connector signature over data against the
// session address. Some wallets return v in {0, 1}; recovery accepts both.
func (s *WalletConnectSigner) RecoverConnectorSignature(data metatx.TypedData, signature []byte) (bool, error) {
	return mevm.VerifyTypedData(data, signature, s.address.Hex())
}

var _ metatx.RawRPCSigner = (*WalletConnectSigner)(nil)
