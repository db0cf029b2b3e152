package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
)

const (
	// DefaultPollInterval is the delay between receipt lookups.
	DefaultPollInterval = 2 * time.Second
)

// EthBackend is the chain side a Provider needs. *ethclient.Client satisfies it.
type EthBackend interface {
	ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// RPCCaller performs raw JSON-RPC calls. *rpc.Client satisfies it.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Provider implements metatx.ChainProvider over a go-ethereum client.
type Provider struct {
	backend      EthBackend
	rpc          RPCCaller
	pollInterval time.Duration
	pollAttempts uint
	logger       zerolog.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithPollInterval sets the delay between receipt lookups.
func WithPollInterval(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.pollInterval = d
	}
}

// WithPollAttempts bounds the number of receipt lookups. Zero polls until the
// context is done.
func WithPollAttempts(n uint) ProviderOption {
	return func(p *Provider) {
		p.pollAttempts = n
	}
}

// WithProviderLogger sets the provider's logger.
func WithProviderLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a provider. rpcCaller may be nil, in which case Send fails.
func NewProvider(backend EthBackend, rpcCaller RPCCaller, opts ...ProviderOption) *Provider {
	p := &Provider{
		backend:      backend,
		rpc:          rpcCaller,
		pollInterval: DefaultPollInterval,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "evm_provider").Logger()
	return p
}

// DialProvider connects to an RPC endpoint and returns a provider along with
// the underlying client, which also serves as a ContractBackend.
func DialProvider(ctx context.Context, url string, opts ...ProviderOption) (*Provider, *ethclient.Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	client := ethclient.NewClient(rpcClient)
	return NewProvider(client, rpcClient, opts...), client, nil
}

// Backend returns the underlying client.
func (p *Provider) Backend() EthBackend {
	return p.backend
}

// ChainID returns the chain id, cached after the first lookup.
func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chainID == nil {
		id, err := p.backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
		p.chainID = id
	}
	return new(big.Int).Set(p.chainID), nil
}

// WaitForTransaction polls for the receipt until the transaction is mined, the
// attempts run out or ctx is done. Lookup errors other than "not found" end
// the wait immediately.
func (p *Provider) WaitForTransaction(ctx context.Context, txHash string) (*metatx.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)

	var receipt *types.Receipt
	err := retry.Do(
		func() error {
			r, err := p.backend.TransactionReceipt(ctx, hash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					return err
				}
				return retry.Unrecoverable(err)
			}
			receipt = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.pollAttempts),
		retry.Delay(p.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Debug().Uint("attempt", n).Str("tx_hash", txHash).Msg("waiting for receipt")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", txHash, err)
	}

	out := &metatx.TransactionReceipt{
		Status:  receipt.Status,
		TxHash:  receipt.TxHash.Hex(),
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

// Send performs a raw JSON-RPC call.
func (p *Provider) Send(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if p.rpc == nil {
		return nil, fmt.Errorf("provider has no JSON-RPC client for %s", method)
	}
	var result json.RawMessage
	if err := p.rpc.CallContext(ctx, &result, method, params...); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	return result, nil
}

var _ metatx.ChainProvider = (*Provider)(nil)
