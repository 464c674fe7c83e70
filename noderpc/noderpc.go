// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package noderpc is the authoritative row source: a substrate RPC client
// querying full nodes for extended rows by header hash.
package noderpc

import (
	"context"
	"fmt"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	flag "github.com/spf13/pflag"
)

type Config struct {
	URL string `koanf:"url"`
}

var DefaultConfig = Config{
	URL: "",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultConfig.URL, "websocket URL of a full node, e.g. ws://localhost:9944")
}

// Client implements appclient.FallbackFetcher over substrate JSON-RPC.
type Client struct {
	api *gsrpc.SubstrateAPI
}

func Dial(url string) (*Client, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to node at %s: %w", url, err)
	}
	return &Client{api: api}, nil
}

// QueryRows asks the node for the given extended rows of the block identified
// by headerHash. The result has one entry per requested index; nil marks a row
// the node did not return. The underlying RPC client does not take a context,
// so ctx only gates the call from starting.
func (c *Client) QueryRows(ctx context.Context, rows []uint32, headerHash common.Hash) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res []*string
	err := c.api.Client.Call(&res, "kate_queryRows", rows, headerHash.Hex())
	if err != nil {
		return nil, fmt.Errorf("kate_queryRows for block %s: %w", headerHash.Hex(), err)
	}
	if len(res) != len(rows) {
		return nil, fmt.Errorf("kate_queryRows returned %d rows, requested %d", len(res), len(rows))
	}
	result := make([][]byte, len(rows))
	for i, encoded := range res {
		if encoded == nil {
			continue
		}
		data, err := hexutil.Decode(*encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding row %d from node: %w", rows[i], err)
		}
		result[i] = data
	}
	return result, nil
}
