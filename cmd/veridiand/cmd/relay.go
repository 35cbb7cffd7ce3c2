package cmd

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stanleykosi/veridian/internal/mpc"
	"github.com/stanleykosi/veridian/internal/relayer"
	"github.com/stanleykosi/veridian/internal/seal"
)

const (
	flagRPC       = "rpc"
	flagClusterID = "cluster-id"
	flagNodeID    = "node-id"
	flagNodeKey   = "node-key"
	flagMXESecret = "mxe-secret"
	flagInterval  = "interval"
	flagDeadline  = "deadline"
	flagWorkers   = "workers"
)

func relayCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a computation node: execute pending requests and deliver their outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			nodeKey, err := decodeNodeKey(v.GetString(flagNodeKey))
			if err != nil {
				return err
			}
			mxe, err := decodeMXE(v.GetString(flagMXESecret))
			if err != nil {
				return err
			}
			cluster, err := mpc.New(mpc.Config{
				ClusterID: v.GetString(flagClusterID),
				MXE:       mxe,
				NodeID:    v.GetString(flagNodeID),
				NodeKey:   nodeKey,
			}, logger)
			if err != nil {
				return err
			}
			chain, err := relayer.NewRPCChain(v.GetString(flagRPC))
			if err != nil {
				return err
			}
			r, err := relayer.New(relayer.Config{
				NodeKey:  nodeKey,
				Interval: v.GetDuration(flagInterval),
				Deadline: v.GetDuration(flagDeadline),
				Workers:  v.GetInt(flagWorkers),
			}, chain, cluster, quartz.NewReal(), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return r.Run(ctx)
		},
	}
	cmd.Flags().String(flagRPC, "http://127.0.0.1:26657", "CometBFT RPC endpoint")
	cmd.Flags().String(flagClusterID, "", "cluster id as registered at genesis")
	cmd.Flags().String(flagNodeID, "", "this node's id within the cluster")
	cmd.Flags().String(flagNodeKey, "", "hex ed25519 seed of the node key")
	cmd.Flags().String(flagMXESecret, "", "hex MXE secret scalar")
	cmd.Flags().Duration(flagInterval, relayer.DefaultInterval, "poll interval")
	cmd.Flags().Duration(flagDeadline, relayer.DefaultDeadline, "per-computation deadline")
	cmd.Flags().Int(flagWorkers, relayer.DefaultWorkers, "concurrent computations")
	return cmd
}

func decodeNodeKey(s string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(s)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%s must be %d hex-encoded bytes", flagNodeKey, ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func decodeMXE(s string) (seal.KeyPair, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return seal.KeyPair{}, fmt.Errorf("%s: %w", flagMXESecret, err)
	}
	return seal.KeyPairFromSecret(b)
}
