package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	metatx "github.com/dropforge/metatx/go"
	mevm "github.com/dropforge/metatx/go/mechanisms/evm"
)

// DefaultGasLimit is used when gas estimation for a direct transaction fails.
const DefaultGasLimit uint64 = 500000

// TxBackend is the write side of an Ethereum client. *ethclient.Client
// satisfies it.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// PrivateKeySigner is a StandardSigner backed by an ECDSA private key. It signs
// typed data natively and, when given a backend, submits transactions.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	backend    TxBackend

	// serializes nonce assignment for direct transactions
	mu sync.Mutex
}

// NewPrivateKeySigner creates a signer from a hex-encoded private key (with or
// without "0x"). backend may be nil for a signing-only identity.
func NewPrivateKeySigner(privateKeyHex string, backend TxBackend) (*PrivateKeySigner, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewPrivateKeySignerFromKey(privateKey, backend), nil
}

// NewPrivateKeySignerFromKey creates a signer from an existing key.
func NewPrivateKeySignerFromKey(privateKey *ecdsa.PrivateKey, backend TxBackend) *PrivateKeySigner {
	return &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		backend:    backend,
	}
}

// Address returns the checksummed signer address.
func (s *PrivateKeySigner) Address(ctx context.Context) (string, error) {
	return s.address.Hex(), nil
}

// Kind reports StandardSigner.
func (s *PrivateKeySigner) Kind() metatx.SignerKind {
	return metatx.StandardSigner
}

// SignTypedData signs the EIP-712 digest of data and returns r||s||v with v in {27, 28}.
func (s *PrivateKeySigner) SignTypedData(ctx context.Context, data metatx.TypedData) ([]byte, error) {
	digest, err := mevm.HashTypedData(data)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value for Ethereum (27 or 28)
	signature[64] += 27

	return signature, nil
}

// SendTransaction signs and submits a legacy transaction. Missing gas price
// and limit are filled from the backend.
func (s *PrivateKeySigner) SendTransaction(ctx context.Context, req metatx.TransactionRequest) (string, error) {
	if s.backend == nil {
		return "", fmt.Errorf("signer %s has no transaction backend", s.address.Hex())
	}
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("invalid destination: %s", req.To)
	}
	to := common.HexToAddress(req.To)

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain id: %w", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  s.address,
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			gasLimit = DefaultGasLimit
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

var _ metatx.TransactionSigner = (*PrivateKeySigner)(nil)
