package metatx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
)

// StandardPath submits calls directly through the connected signer, with the
// gas price taken from the context's oracle unless overridden.
type StandardPath struct {
	logger zerolog.Logger
}

// NewStandardPath creates a standard path.
func NewStandardPath(logger zerolog.Logger) *StandardPath {
	return &StandardPath{
		logger: logger.With().Str("component", "standard_path").Logger(),
	}
}

// Execute sends the call as a regular transaction and waits for its receipt.
func (p *StandardPath) Execute(ctx context.Context, ec ExecutionContext, call Call) (*TransactionReceipt, error) {
	if ec.Signer() == nil {
		return nil, NewInvariantError("cannot execute transaction without valid signer")
	}
	txSigner, ok := ec.Signer().(TransactionSigner)
	if !ok {
		return nil, NewInvariantError("signer cannot send transactions")
	}
	provider := ec.Provider()
	if provider == nil {
		return nil, NewInvariantError("no provider to execute transaction")
	}
	if call.Contract == nil {
		return nil, NewInvariantError("no contract binding for call")
	}

	data, err := call.Contract.EncodeFunctionData(call.Function, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", call.Function, err)
	}

	tx := TransactionRequest{
		To:   call.Contract.Address(),
		Data: data,
	}
	if o := call.Overrides; o != nil {
		tx.Value = o.Value
		tx.GasPrice = o.GasPrice
		tx.GasLimit = o.GasLimit
	}

	if tx.GasPrice == nil {
		gasPrice, err := p.gasPrice(ctx, ec)
		if err != nil {
			return nil, err
		}
		tx.GasPrice = gasPrice
	}

	txHash, err := txSigner.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", call.Function, err)
	}

	p.logger.Info().
		Str("to", tx.To).
		Str("function", call.Function).
		Str("tx_hash", txHash).
		Msg("sent transaction")

	receipt, err := provider.WaitForTransaction(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", txHash, err)
	}
	if receipt.Status == TxStatusFailed {
		return receipt, NewRelayError(KindTransactionFailed, "transaction reverted", nil, map[string]interface{}{
			"txHash": txHash,
		})
	}
	return receipt, nil
}

func (p *StandardPath) gasPrice(ctx context.Context, ec ExecutionContext) (*big.Int, error) {
	oracle := ec.Options().GasOracle
	if oracle == nil {
		return nil, nil
	}
	chainID, err := ec.Provider().ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chain id: %w", err)
	}
	price, err := oracle.GasPrice(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if price != nil {
		p.logger.Debug().
			Str("chain_id", chainID.String()).
			Str("gas_price_wei", price.String()).
			Msg("applied gas price override")
	}
	return price, nil
}
