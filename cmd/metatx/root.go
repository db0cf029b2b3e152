package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dropforge/metatx/go/config"
	"github.com/dropforge/metatx/go/gasprice"
	metalog "github.com/dropforge/metatx/go/log"
	mevm "github.com/dropforge/metatx/go/mechanisms/evm"
)

const (
	flagConfig    = "config"
	flagEnvFile   = "env-file"
	flagRPCURL    = "rpc-url"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

// app is what every subcommand needs after flags are parsed.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	v := viper.New()
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "metatx",
		Short:         "Gasless meta-transaction relay tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString(flagEnvFile)
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString(flagConfig)
			cfg, err := config.LoadWith(v, path)
			if err != nil {
				return err
			}

			logger, err := metalog.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "config file (yaml, toml or json)")
	flags.String(flagEnvFile, ".env", "dotenv file loaded before reading the environment")
	flags.String(flagRPCURL, "", "JSON-RPC endpoint")
	flags.String(flagLogLevel, "info", "log level")
	flags.String(flagLogFormat, "console", "log format (console or json)")

	// flags override file and environment values only when set
	_ = v.BindPFlag("rpc_url", flags.Lookup(flagRPCURL))
	_ = v.BindPFlag("log.level", flags.Lookup(flagLogLevel))
	_ = v.BindPFlag("log.format", flags.Lookup(flagLogFormat))

	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(nonceCmd(a))
	rootCmd.AddCommand(gasPriceCmd(a))
	rootCmd.AddCommand(sendCmd(a))

	return rootCmd
}

// dial connects the configured RPC endpoint.
func (a *app) dial(ctx context.Context) (*mevm.Provider, *ethclient.Client, error) {
	return mevm.DialProvider(ctx, a.cfg.RPCURL,
		mevm.WithPollInterval(a.cfg.ReceiptPollInterval),
		mevm.WithPollAttempts(a.cfg.ReceiptPollAttempts),
		mevm.WithProviderLogger(a.logger),
	)
}

// chainID returns the configured chain id, or the node's when unset.
func (a *app) chainID(ctx context.Context, provider *mevm.Provider) (*big.Int, error) {
	if a.cfg.ChainID > 0 {
		return big.NewInt(a.cfg.ChainID), nil
	}
	if provider == nil {
		return nil, fmt.Errorf("chain_id is not configured")
	}
	return provider.ChainID(ctx)
}

// gasOracle prefers the chain's gas station and falls back to the node.
func (a *app) gasOracle(node gasprice.PriceSuggester) (gasprice.FirstOf, error) {
	speed, err := gasprice.ParseSpeed(a.cfg.GasSpeed)
	if err != nil {
		return nil, err
	}
	station := gasprice.NewGasStationOracle(gasprice.StationConfig{
		Speed:           speed,
		MaxGasPriceGwei: a.cfg.MaxGasPriceGwei,
		Logger:          &a.logger,
	})
	oracles := gasprice.FirstOf{station}
	if node != nil {
		oracles = append(oracles, gasprice.NewNodeOracle(node, a.cfg.MaxGasPriceGwei, a.logger))
	}
	return oracles, nil
}
