package gasprice

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
)

// PriceSuggester is satisfied by *ethclient.Client.
type PriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// NodeOracle asks the connected node for a gas price, capped at a maximum.
type NodeOracle struct {
	client PriceSuggester
	maxWei *big.Int
	logger zerolog.Logger
}

// NewNodeOracle creates a node oracle. maxGwei of zero disables the cap.
func NewNodeOracle(client PriceSuggester, maxGwei float64, logger zerolog.Logger) *NodeOracle {
	o := &NodeOracle{
		client: client,
		logger: logger.With().Str("component", "node_gas_oracle").Logger(),
	}
	if maxGwei > 0 {
		o.maxWei = GweiToWei(maxGwei)
	}
	return o
}

// GasPrice returns the node's suggested price.
func (o *NodeOracle) GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	price, err := o.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if o.maxWei != nil && price.Cmp(o.maxWei) > 0 {
		price = new(big.Int).Set(o.maxWei)
	}

	o.logger.Debug().
		Str("gas_price_wei", price.String()).
		Str("gas_price_gwei", WeiToGwei(price)).
		Msg("fetched gas price")

	return price, nil
}

// FirstOf tries each oracle in order and returns the first non-nil price.
type FirstOf []metatx.GasPriceOracle

// GasPrice implements metatx.GasPriceOracle.
func (f FirstOf) GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	for _, oracle := range f {
		price, err := oracle.GasPrice(ctx, chainID)
		if err != nil {
			return nil, err
		}
		if price != nil {
			return price, nil
		}
	}
	return nil, nil
}

var (
	_ metatx.GasPriceOracle = (*NodeOracle)(nil)
	_ metatx.GasPriceOracle = FirstOf(nil)
)
