package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	metatx "github.com/dropforge/metatx/go"
	"github.com/dropforge/metatx/go/gasprice"
	metahttp "github.com/dropforge/metatx/go/http"
	mevm "github.com/dropforge/metatx/go/mechanisms/evm"
	"github.com/dropforge/metatx/go/relayer"
	sevm "github.com/dropforge/metatx/go/signers/evm"
)

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference relayer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			provider, client, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			chainID, err := a.chainID(ctx, provider)
			if err != nil {
				return err
			}

			key, err := a.cfg.RelayerKey()
			if err != nil {
				return err
			}
			relayerKey, err := sevm.NewPrivateKeySigner(key, client)
			if err != nil {
				return err
			}
			relayerAddress, _ := relayerKey.Address(ctx)

			oracle, err := a.gasOracle(client)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			server, err := relayer.NewServer(relayer.Config{
				ChainID:    chainID,
				Forwarders: a.cfg.AcceptedForwarders(),
				Nonces:     mevm.NewForwarderNonceSource(client),
				Tokens:     relayer.NewTokenReader(client),
				Submitter: relayer.NewEthSubmitter(relayerKey, a.logger,
					relayer.WithSubmitterGasOracle(oracle, chainID)),
				Registry: registry,
				Logger:   &a.logger,
			})
			if err != nil {
				return err
			}

			a.logger.Info().
				Str("relayer", relayerAddress).
				Str("chain_id", chainID.String()).
				Strs("forwarders", a.cfg.AcceptedForwarders()).
				Msg("starting relayer")

			return server.Run(ctx, a.cfg.Server.ListenAddr)
		},
	}
	return cmd
}

func nonceCmd(a *app) *cobra.Command {
	var forwarder, from string

	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Print the forwarder nonce of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if forwarder == "" {
				forwarder = a.cfg.ForwarderAddress
			}
			if !common.IsHexAddress(forwarder) {
				return fmt.Errorf("--forwarder is required and must be an address")
			}
			if !common.IsHexAddress(from) {
				return fmt.Errorf("--from is required and must be an address")
			}

			_, client, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			nonce, err := mevm.NewForwarderNonceSource(client).GetNonce(cmd.Context(), forwarder, from)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), nonce.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&forwarder, "forwarder", "", "forwarder address (defaults to forwarder_address)")
	cmd.Flags().StringVar(&from, "from", "", "account address")
	return cmd
}

func gasPriceCmd(a *app) *cobra.Command {
	var chainID int64

	cmd := &cobra.Command{
		Use:   "gas-price",
		Short: "Print the gas price the standard path would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			oracle, err := a.gasOracle(client)
			if err != nil {
				return err
			}
			if chainID == 0 {
				chainID = a.cfg.ChainID
			}

			price, err := oracle.GasPrice(cmd.Context(), big.NewInt(chainID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wei (%s gwei)\n", price, gasprice.WeiToGwei(price))
			return nil
		},
	}
	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "chain id (defaults to chain_id)")
	return cmd
}

func sendCmd(a *app) *cobra.Command {
	var abiPath string

	cmd := &cobra.Command{
		Use:   "send <contract> <function> [args...]",
		Short: "Call a contract function, relayed when a relayer is configured",
		Long: `Call a contract function with the key named by private_key_env.

When relayer_url and forwarder_address are configured the call is signed as a
meta-transaction and relayed; otherwise it is sent as a regular transaction.
Arguments are passed as strings: addresses, integers (decimal or 0x), booleans and hex bytes.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			abiJSON, err := os.ReadFile(abiPath)
			if err != nil {
				return fmt.Errorf("failed to read ABI: %w", err)
			}

			provider, client, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			key, err := a.cfg.PrivateKey()
			if err != nil {
				return err
			}
			signer, err := sevm.NewPrivateKeySigner(key, client)
			if err != nil {
				return err
			}
			contract, err := mevm.NewContract(args[0], abiJSON, client)
			if err != nil {
				return err
			}

			oracle, err := a.gasOracle(client)
			if err != nil {
				return err
			}
			opts := []metatx.ContextOption{metatx.WithGasOracle(oracle)}

			if a.cfg.RelayerURL != "" && a.cfg.ForwarderAddress != "" {
				relay, err := metahttp.NewHTTPRelayClient(&metahttp.RelayConfig{
					URL:     a.cfg.RelayerURL,
					Timeout: a.cfg.RelayerTimeout,
					Logger:  &a.logger,
				})
				if err != nil {
					return err
				}
				opts = append(opts,
					metatx.WithForwarder(a.cfg.ForwarderAddress),
					metatx.WithRelay(relay),
					metatx.WithNonceSource(mevm.NewForwarderNonceSource(client)),
					metatx.WithPermitSigner(mevm.NewPermitBuilder(client, mevm.WithPermitLogger(a.logger))),
				)
			}

			callArgs := make([]interface{}, 0, len(args)-2)
			for _, arg := range args[2:] {
				callArgs = append(callArgs, arg)
			}

			sender := metatx.NewSender(metatx.WithLogger(a.logger))
			receipt, err := sender.Send(ctx, metatx.NewExecutionContext(signer, provider, opts...), metatx.Call{
				Contract: contract,
				Function: args[1],
				Args:     callArgs,
			})
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(receipt, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&abiPath, "abi", "", "path to the contract ABI JSON")
	_ = cmd.MarkFlagRequired("abi")
	return cmd
}
