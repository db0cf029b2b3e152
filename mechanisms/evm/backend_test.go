package evm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	metatx "github.com/dropforge/metatx/go"
)

// fakeBackend answers contract calls by selector.
type fakeBackend struct {
	mu        sync.Mutex
	responses map[string][]byte
	calls     []ethereum.CallMsg
	estimate  uint64
	chainID   *big.Int
	chainIDs  int

	receipt       *types.Receipt
	notFoundTimes int
	receiptErr    error
	receiptCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		responses: make(map[string][]byte),
		chainID:   big.NewInt(137),
	}
}

func (b *fakeBackend) respond(t *testing.T, m abi.Method, values ...interface{}) {
	t.Helper()
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("failed to pack %s response: %v", m.Sig, err)
	}
	b.responses[hex.EncodeToString(m.ID)] = out
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, msg)
	if len(msg.Data) < 4 {
		return nil, errors.New("missing selector")
	}
	out, ok := b.responses[hex.EncodeToString(msg.Data[:4])]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return out, nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, msg)
	return b.estimate, nil
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainIDs++
	return new(big.Int).Set(b.chainID), nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiptCalls++
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	if b.receiptCalls <= b.notFoundTimes || b.receipt == nil {
		return nil, ethereum.NotFound
	}
	return b.receipt, nil
}

func mustABI(t *testing.T, abiJSON []byte) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		t.Fatalf("failed to parse ABI: %v", err)
	}
	return parsed
}

func keySignFunc(key *ecdsa.PrivateKey) metatx.TypedDataSignFunc {
	return func(ctx context.Context, data metatx.TypedData) ([]byte, error) {
		digest, err := HashTypedData(data)
		if err != nil {
			return nil, err
		}
		sig, err := crypto.Sign(digest, key)
		if err != nil {
			return nil, err
		}
		sig[64] += 27
		return sig, nil
	}
}

func mustKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}
