package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stanleykosi/veridian/internal/app"
	"github.com/stanleykosi/veridian/internal/computation"
	"github.com/stanleykosi/veridian/internal/seal"
	"github.com/stanleykosi/veridian/internal/state"
)

// KeysOutput is what `keys` prints: the secrets for the relay command and
// the matching genesis app_state.
type KeysOutput struct {
	NodeKey   string      `json:"node_key"`
	MXESecret string      `json:"mxe_secret"`
	Genesis   app.Genesis `json:"genesis"`
}

func keysCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate a single-node cluster: node key, MXE key and genesis app_state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := generateKeys(v.GetString(flagClusterID), v.GetString(flagNodeID))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().String(flagClusterID, "local", "cluster id")
	cmd.Flags().String(flagNodeID, "node-0", "node id")
	return cmd
}

func generateKeys(clusterID, nodeID string) (KeysOutput, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeysOutput{}, err
	}
	mxe, err := seal.GenerateKey(nil)
	if err != nil {
		return KeysOutput{}, err
	}
	cluster := computation.Cluster{
		ID:        clusterID,
		MXEPubKey: mxe.PublicBytes(),
		Nodes:     []computation.Node{{ID: nodeID, PubKey: pub}},
	}
	if err := cluster.Validate(); err != nil {
		return KeysOutput{}, err
	}
	return KeysOutput{
		NodeKey:   hex.EncodeToString(priv.Seed()),
		MXESecret: hex.EncodeToString(mxe.Secret.Bytes()),
		Genesis:   app.Genesis{Params: state.Params{Cluster: cluster}},
	}, nil
}
