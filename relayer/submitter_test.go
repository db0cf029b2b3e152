package relayer

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metatx "github.com/dropforge/metatx/go"
	mevm "github.com/dropforge/metatx/go/mechanisms/evm"
	sevm "github.com/dropforge/metatx/go/signers/evm"
)

type fakeChain struct {
	sent      []*types.Transaction
	responses map[string][]byte
}

func (b *fakeChain) ChainID(ctx context.Context) (*big.Int, error) { return testChainID, nil }

func (b *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return uint64(len(b.sent)), nil
}

func (b *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (b *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 120000, nil
}

func (b *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, ok := b.responses[hex.EncodeToString(msg.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func parseABI(t *testing.T, raw []byte) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(bytes.NewReader(raw))
	require.NoError(t, err)
	return parsed
}

func TestEthSubmitterForward(t *testing.T) {
	chain := &fakeChain{}
	relayerKey, err := sevm.NewPrivateKeySigner(otherKey, chain)
	require.NoError(t, err)
	submitter := NewEthSubmitter(relayerKey, zerolog.Nop())

	signed := signedForward(t, ownerKey, "4")
	signature, err := metatx.HexToBytes(signed.Signature)
	require.NoError(t, err)
	domain := metatx.NewForwarderDomain(testChainID, testForwarder)

	txHash, err := submitter.ExecuteForward(context.Background(), *signed.Forward, domain, signature)
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)

	tx := chain.sent[0]
	assert.Equal(t, tx.Hash().Hex(), txHash)
	assert.Equal(t, common.HexToAddress(testForwarder), *tx.To())
	assert.Equal(t, uint64(120000), tx.Gas())

	forwarderABI := parseABI(t, mevm.ForwarderABI)
	execute := forwarderABI.Methods[mevm.FunctionExecute]
	assert.Equal(t, execute.ID, tx.Data()[:4])

	args, err := execute.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 5)

	separator, err := mevm.DomainSeparator(domain)
	require.NoError(t, err)
	assert.Equal(t, [32]byte(separator), args[1])
	assert.Equal(t, [32]byte(mevm.RequestTypeHash()), args[2])
	assert.Empty(t, args[3])
	assert.Equal(t, signature, args[4])
}

func TestEthSubmitterPermit(t *testing.T) {
	chain := &fakeChain{}
	relayerKey, err := sevm.NewPrivateKeySigner(otherKey, chain)
	require.NoError(t, err)
	submitter := NewEthSubmitter(relayerKey, zerolog.Nop())

	permit := *signedPermit(t, ownerKey, "0").Permit
	_, err = submitter.ExecutePermit(context.Background(), permit)
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)

	tx := chain.sent[0]
	assert.Equal(t, common.HexToAddress(testToken), *tx.To())

	permitMethod := parseABI(t, mevm.ERC20PermitABI).Methods[mevm.FunctionPermit]
	assert.Equal(t, permitMethod.ID, tx.Data()[:4])

	args, err := permitMethod.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(permit.Owner), args[0])
	assert.Equal(t, common.HexToAddress(testSpender), args[1])
	assert.Equal(t, permit.V, args[4])
}

func TestEthSubmitterWithoutBackend(t *testing.T) {
	relayerKey, err := sevm.NewPrivateKeySigner(otherKey, nil)
	require.NoError(t, err)
	submitter := NewEthSubmitter(relayerKey, zerolog.Nop())

	_, err = submitter.ExecutePermit(context.Background(), *signedPermit(t, ownerKey, "0").Permit)
	assert.Error(t, err)
}

func TestTokenReader(t *testing.T) {
	tokenABI := parseABI(t, mevm.ERC20PermitABI)
	nameOut, err := tokenABI.Methods[mevm.FunctionName].Outputs.Pack(testTokenName)
	require.NoError(t, err)
	noncesOut, err := tokenABI.Methods[mevm.FunctionNonces].Outputs.Pack(big.NewInt(9))
	require.NoError(t, err)

	chain := &fakeChain{responses: map[string][]byte{
		hex.EncodeToString(tokenABI.Methods[mevm.FunctionName].ID):   nameOut,
		hex.EncodeToString(tokenABI.Methods[mevm.FunctionNonces].ID): noncesOut,
	}}
	reader := NewTokenReader(chain)

	name, err := reader.TokenName(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, testTokenName, name)

	nonce, err := reader.PermitNonce(context.Background(), testToken, testSpender)
	require.NoError(t, err)
	assert.Equal(t, int64(9), nonce.Int64())

	_, err = NewTokenReader(&fakeChain{}).TokenName(context.Background(), testToken)
	assert.Error(t, err)
}

type fixedOracle struct{ price *big.Int }

func (o fixedOracle) GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	return o.price, nil
}

func TestEthSubmitterGasOracle(t *testing.T) {
	chain := &fakeChain{}
	relayerKey, err := sevm.NewPrivateKeySigner(otherKey, chain)
	require.NoError(t, err)
	submitter := NewEthSubmitter(relayerKey, zerolog.Nop(),
		WithSubmitterGasOracle(fixedOracle{price: big.NewInt(77_000_000_000)}, testChainID))

	_, err = submitter.ExecutePermit(context.Background(), *signedPermit(t, ownerKey, "0").Permit)
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)
	assert.Equal(t, int64(77_000_000_000), chain.sent[0].GasPrice().Int64())

	// a nil oracle price falls back to the node suggestion
	chain = &fakeChain{}
	relayerKey, err = sevm.NewPrivateKeySigner(otherKey, chain)
	require.NoError(t, err)
	submitter = NewEthSubmitter(relayerKey, zerolog.Nop(), WithSubmitterGasOracle(fixedOracle{}, testChainID))

	_, err = submitter.ExecutePermit(context.Background(), *signedPermit(t, ownerKey, "0").Permit)
	require.NoError(t, err)
	assert.Equal(t, int64(30_000_000_000), chain.sent[0].GasPrice().Int64())
}
