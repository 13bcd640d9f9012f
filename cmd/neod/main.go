// neod is the node entrypoint: load configuration, open storage, wire the
// NeoSystem and run until signalled.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"neo-core/core"
	"neo-core/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "neod",
		Short: "dBFT full node",
	}
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(genesisCmd())
	rootCmd.AddCommand(opcodeCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var configName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configName)
			if err != nil {
				return err
			}
			logger := logrus.New()
			if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
				logger.SetLevel(level)
			}
			protocol, err := cfg.Protocol()
			if err != nil {
				return err
			}
			store, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			ctx := core.NewNodeContext(protocol, logger)
			system, err := core.NewNeoSystem(ctx, store)
			if err != nil {
				return err
			}
			bus, err := core.NewGossipPeerBus(core.GossipConfig{
				ListenAddr:     cfg.Network.ListenAddr,
				BootstrapPeers: cfg.Network.BootstrapPeers,
				DiscoveryTag:   cfg.Network.DiscoveryTag,
			})
			if err != nil {
				return err
			}
			if err := system.StartNetwork(bus); err != nil {
				return err
			}
			if cfg.Consensus.ValidatorIndex >= 0 {
				priv, err := core.PrivateKeyFromHex(cfg.Consensus.PrivateKey)
				if err != nil {
					return fmt.Errorf("validator key: %w", err)
				}
				err = system.StartConsensus(core.ConsensusConfig{
					Validators: protocol.StandbyValidators(),
					MyIndex:    cfg.Consensus.ValidatorIndex,
					PrivateKey: priv,
					Network:    protocol.Network,
					MsPerBlock: protocol.MsPerBlock,
				})
				if err != nil {
					return err
				}
			}
			logger.WithField("height", system.Chain.CurrentIndex()).Info("node running")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return system.Stop()
		},
	}
	cmd.Flags().StringVar(&configName, "config", "", "config file name (without extension)")
	return cmd
}

func genesisCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "genesis"}
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write a config template with a fresh single-node committee",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			priv, err := core.NewPrivateKey()
			if err != nil {
				return err
			}
			pub := core.PublicKeyOf(priv)
			doc := map[string]any{
				"network": map[string]any{
					"magic":       0x334F454E,
					"listen_addr": "/ip4/0.0.0.0/tcp/20333",
				},
				"consensus": map[string]any{
					"ms_per_block":      15000,
					"validators_count":  1,
					"validator_index":   0,
					"standby_committee": []string{fmt.Sprintf("%x", pub.CompressedBytes())},
					"private_key":       fmt.Sprintf("%x", priv.D.Bytes()),
				},
				"storage": map[string]any{"backend": "leveldb", "path": "chain"},
				"mempool": map[string]any{"capacity": 50000},
				"logging": map[string]any{"level": "info"},
			}
			raw, err := yaml.Marshal(doc)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote %s (address %s)\n", path, core.EncodeAddress(pub.ScriptHash()))
			return nil
		},
	}
	cmd.AddCommand(initCmd)
	return cmd
}

func opcodeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "opcode"}
	dump := &cobra.Command{
		Use:   "dump",
		Short: "list the dispatchable opcodes and their base gas costs",
		Run: func(cmd *cobra.Command, args []string) {
			for _, op := range core.RegisteredOpcodes() {
				fmt.Printf("0x%02X  %-14s %d\n", byte(op), op.String(), core.GasCost(op))
			}
		},
	}
	cmd.AddCommand(dump)
	return cmd
}
