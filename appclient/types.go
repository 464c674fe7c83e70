// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

package appclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/gridlight-io/gridlight/appdata"
	"github.com/gridlight-io/gridlight/matrix"
)

// BlockVerified describes one block whose header has already been verified by
// the outer light client: everything the pipeline needs to fetch, check and
// decode the block's application data.
type BlockVerified struct {
	BlockNumber uint32             `json:"blockNumber"`
	HeaderHash  common.Hash        `json:"headerHash"`
	Dimensions  matrix.Dimensions  `json:"dimensions"`
	Commitments []common.Hash      `json:"commitments"`
	Lookup      appdata.AppLookup  `json:"lookup"`
}

// Config is the per-instance application client configuration, static for the
// client's lifetime.
type Config struct {
	AppID      uint32 `koanf:"app-id"`
	DisableRPC bool   `koanf:"disable-rpc"`
	Threshold  uint64 `koanf:"threshold"`
}

var DefaultConfig = Config{
	AppID:      0,
	DisableRPC: false,
	Threshold:  5000,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Uint32(prefix+".app-id", DefaultConfig.AppID, "application id whose data to fetch and decode")
	f.Bool(prefix+".disable-rpc", DefaultConfig.DisableRPC, "never fall back to the authoritative RPC source")
	f.Uint64(prefix+".threshold", DefaultConfig.Threshold, "maximum number of missing extended cells before a block is abandoned")
}

// GridFetcher is the distributed-cache retrieval source. Both calls partition
// requests into found and absent; failures of individual positions surface as
// absence, never as errors.
type GridFetcher interface {
	// FetchCells returns the cells it could retrieve plus the positions still
	// absent.
	FetchCells(ctx context.Context, blockNumber uint32, positions []matrix.Position) ([]matrix.Cell, []matrix.Position)

	// FetchRows returns one entry per requested row index, in the same order;
	// nil marks an absent row.
	FetchRows(ctx context.Context, blockNumber uint32, dims matrix.Dimensions, rows []uint32) [][]byte
}

// FallbackFetcher is the authoritative row source, keyed by header hash.
// Unlike the grid source a call can fail structurally, which is distinct from
// a row being absent (nil entry).
type FallbackFetcher interface {
	QueryRows(ctx context.Context, rows []uint32, headerHash common.Hash) ([][]byte, error)
}

// Store persists decoded application data. Writes must be idempotent under
// repeated identical input.
type Store interface {
	StoreAppData(ctx context.Context, appID uint32, blockNumber uint32, data [][]byte) error
}
