package relayer

import (
	"context"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/stanleykosi/veridian/internal/computation"
)

// Chain is the relayer's view of the ledger.
type Chain interface {
	Query(ctx context.Context, path string) ([]byte, error)
	Broadcast(ctx context.Context, tx []byte) error
}

// RPCChain talks to a CometBFT node over its RPC endpoint.
type RPCChain struct {
	client *rpchttp.HTTP
}

func NewRPCChain(remote string) (*RPCChain, error) {
	c, err := rpchttp.New(remote)
	if err != nil {
		return nil, errorsmod.Wrapf(ErrConfig, "rpc %s: %v", remote, err)
	}
	return &RPCChain{client: c}, nil
}

func (c *RPCChain) Query(ctx context.Context, path string) ([]byte, error) {
	res, err := c.client.ABCIQuery(ctx, path, nil)
	if err != nil {
		return nil, errorsmod.Wrapf(ErrQuery, "%s: %v", path, err)
	}
	if res.Response.Code != 0 {
		return nil, errorsmod.Wrapf(ErrQuery, "%s: %s/%d %s", path, res.Response.Codespace, res.Response.Code, res.Response.Log)
	}
	return res.Response.Value, nil
}

func (c *RPCChain) Broadcast(ctx context.Context, tx []byte) error {
	res, err := c.client.BroadcastTxSync(ctx, cmttypes.Tx(tx))
	if err != nil {
		return errorsmod.Wrap(ErrBroadcast, err.Error())
	}
	if res.Code != 0 {
		return errorsmod.Wrapf(ErrBroadcast, "%s/%d %s", res.Codespace, res.Code, res.Log)
	}
	return nil
}

func queryJSON(ctx context.Context, chain Chain, path string, v any) error {
	b, err := chain.Query(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errorsmod.Wrapf(ErrQuery, "%s: decode: %v", path, err)
	}
	return nil
}

// chainRefs resolves by-reference arguments through the session queries.
type chainRefs struct {
	chain Chain
}

func (r chainRefs) ResolveRef(ctx context.Context, ref computation.Ref) ([]computation.Ciphertext, error) {
	var e computation.Encrypted
	if err := queryJSON(ctx, r.chain, "/"+ref.Account, &e); err != nil {
		return nil, err
	}
	end := uint64(ref.Offset) + uint64(ref.Length)
	if end > uint64(len(e.Ciphertexts)) {
		return nil, errorsmod.Wrapf(ErrQuery, "%s holds %d ciphertexts, want [%d,%d)", ref.Account, len(e.Ciphertexts), ref.Offset, end)
	}
	return e.Ciphertexts[ref.Offset:end], nil
}
