// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package appclient fetches, verifies, reconstructs and decodes one
// application's data from an erasure-coded, commitment-verified data grid.
//
// For every verified block the pipeline retrieves the app's rows from the
// distributed-cache source, falls back to the authoritative RPC source for
// rows the cache could not serve, verifies everything against the per-row
// commitments, reconstructs rows that neither source produced from column
// redundancy, and finally decodes and persists the application extrinsics
// under the app-id:block-number key.
package appclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/gridlight-io/gridlight/appdata"
	"github.com/gridlight-io/gridlight/commitments"
	"github.com/gridlight-io/gridlight/erasure"
	"github.com/gridlight-io/gridlight/matrix"
	"github.com/gridlight-io/gridlight/util/pretty"
)

var (
	ErrTooManyCellsMissing = errors.New("too many cells are missing")
	ErrInvalidRowSize      = errors.New("row size is not valid after reconstruction")
	ErrDataCellNotFound    = errors.New("data cell not found")
)

// AppClient runs the per-block recovery pipeline for a single application id.
// All handles are shared and read-only; every invocation owns its own
// block-scoped state, so one AppClient per app id may run concurrently with
// others over the same sources.
type AppClient struct {
	config   Config
	pp       *commitments.PublicParams
	grid     GridFetcher
	fallback FallbackFetcher
	store    Store
}

func NewAppClient(config Config, pp *commitments.PublicParams, grid GridFetcher, fallback FallbackFetcher, store Store) *AppClient {
	return &AppClient{
		config:   config,
		pp:       pp,
		grid:     grid,
		fallback: fallback,
		store:    store,
	}
}

// fetchVerified fetches candidate cells from the grid source and partitions
// the result into cryptographically verified cells and positions still
// needing recovery (never returned, or returned but failing verification).
func (c *AppClient) fetchVerified(
	ctx context.Context,
	blockNumber uint32,
	dims matrix.Dimensions,
	comms []common.Hash,
	positions []matrix.Position,
) ([]matrix.Cell, []matrix.Position, error) {
	fetched, unfetched := c.grid.FetchCells(ctx, blockNumber, positions)

	verified, unverified, err := commitments.VerifyCells(blockNumber, dims, fetched, comms, c.pp)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify fetched cells: %w", err)
	}

	verifiedSet := make(map[matrix.Position]struct{}, len(verified))
	for _, position := range verified {
		verifiedSet[position] = struct{}{}
	}
	kept := make([]matrix.Cell, 0, len(verified))
	for _, cell := range fetched {
		if _, ok := verifiedSet[cell.Position]; ok {
			kept = append(kept, cell)
		}
	}
	unfetched = append(unfetched, unverified...)
	return kept, unfetched, nil
}

type reconstructedRow struct {
	row  uint32
	data []byte
}

// reconstructRowsFromDHT recovers the given missing row indices using only
// redundancy already present in the extended matrix: one fetch/verify round
// over the rows' own cells, a second round over enough of the affected
// columns to erasure-decode them, then row assembly from the merged cells.
func (c *AppClient) reconstructRowsFromDHT(
	ctx context.Context,
	blockNumber uint32,
	dims matrix.Dimensions,
	comms []common.Hash,
	missingRows []uint32,
) ([]reconstructedRow, error) {
	missingCells := dims.ExtendedRowPositions(missingRows)
	if len(missingCells) == 0 {
		return nil, nil
	}

	log.Debug("Fetching missing row cells from grid", "blockNumber", blockNumber, "cells", len(missingCells))
	fetched, unfetched, err := c.fetchVerified(ctx, blockNumber, dims, comms, missingCells)
	if err != nil {
		return nil, err
	}
	log.Debug("Fetched row cells", "blockNumber", blockNumber, "fetched", len(fetched), "missing", len(unfetched))

	columnCells := dims.ColumnPositions(unfetched, matrix.ColumnCoverageFactor)
	columnFetched, _, err := c.fetchVerified(ctx, blockNumber, dims, comms, columnCells)
	if err != nil {
		return nil, err
	}

	reconstructedCols, err := erasure.ReconstructColumns(dims, columnFetched)
	if err != nil {
		return nil, fmt.Errorf("reconstructing columns: %w", err)
	}
	log.Debug("Reconstructed columns", "blockNumber", blockNumber, "columns", len(reconstructedCols))

	dataCells := make([]matrix.DataCell, 0, len(fetched)+len(unfetched))
	for _, cell := range fetched {
		dataCells = append(dataCells, cell.ToDataCell())
	}
	for _, position := range unfetched {
		column, ok := reconstructedCols[position.Col]
		// The reconstructed column is de-extended, locate the position's slot.
		slot := int(position.Row / matrix.ExtensionFactor)
		if !ok || slot >= len(column) {
			return nil, fmt.Errorf("%w: %d:%d", ErrDataCellNotFound, position.Row, position.Col)
		}
		dataCells = append(dataCells, matrix.DataCell{Position: position, Data: column[slot]})
	}

	// Row assembly concatenates in column order, the sort is a correctness
	// requirement.
	matrix.SortDataCells(dataCells)

	rows := make([]reconstructedRow, 0, len(missingRows))
	for _, row := range missingRows {
		data := make([]byte, 0, dims.RowSize())
		for _, cell := range dataCells {
			if cell.Position.Row == row {
				data = append(data, cell.Data[:]...)
			}
		}
		if len(data) != dims.RowSize() {
			return nil, fmt.Errorf("%w: row %d has %d bytes, want %d",
				ErrInvalidRowSize, row, len(data), dims.RowSize())
		}
		rows = append(rows, reconstructedRow{row: row, data: data})
	}
	return rows, nil
}

// ProcessBlock runs the whole pipeline for one block. Any error aborts the
// block; nothing is persisted for a failed block.
func (c *AppClient) ProcessBlock(ctx context.Context, block *BlockVerified) error {
	blockNumber := block.BlockNumber
	dims := block.Dimensions
	comms := block.Commitments
	lookup := &block.Lookup
	appID := c.config.AppID

	appRows := appdata.AppRows(lookup, dims, appID)
	log.Debug("Fetching app rows from grid", "blockNumber", blockNumber, "rows", len(appRows))

	fetchedRows := c.grid.FetchRows(ctx, blockNumber, dims, appRows)
	if len(fetchedRows) != len(appRows) {
		return fmt.Errorf("grid source returned %d rows for %d requested", len(fetchedRows), len(appRows))
	}
	extendedRows := dims.ExtendedRows()
	dhtRows := make([][]byte, extendedRows)
	fetchedCount := 0
	for i, row := range appRows {
		if fetchedRows[i] != nil {
			dhtRows[row] = fetchedRows[i]
			fetchedCount++
		}
	}
	log.Debug("Fetched app rows from grid", "blockNumber", blockNumber, "count", fetchedCount)

	dhtVerifiedRows, dhtMissingRows, err := commitments.VerifyEquality(c.pp, comms, dhtRows, lookup, dims, appID)
	if err != nil {
		return fmt.Errorf("verifying grid rows: %w", err)
	}
	log.Debug("Verified app rows from grid", "blockNumber", blockNumber,
		"verified", len(dhtVerifiedRows), "missing", len(dhtMissingRows))

	rpcRows := make([][]byte, extendedRows)
	if !c.config.DisableRPC && c.fallback == nil && len(dhtMissingRows) > 0 {
		log.Debug("No RPC source configured, skipping fallback", "blockNumber", blockNumber, "rows", len(dhtMissingRows))
	}
	if !c.config.DisableRPC && c.fallback != nil && len(dhtMissingRows) > 0 {
		log.Debug("Fetching missing app rows from RPC", "blockNumber", blockNumber, "rows", len(dhtMissingRows))
		rows, err := c.fallback.QueryRows(ctx, dhtMissingRows, block.HeaderHash)
		if err != nil {
			return fmt.Errorf("fetching rows from RPC: %w", err)
		}
		if len(rows) != len(dhtMissingRows) {
			return fmt.Errorf("RPC source returned %d rows for %d requested", len(rows), len(dhtMissingRows))
		}
		for i, row := range dhtMissingRows {
			rpcRows[row] = rows[i]
		}
	}

	rpcVerifiedRows, missingRows, err := commitments.VerifyEquality(c.pp, comms, rpcRows, lookup, dims, appID)
	if err != nil {
		return fmt.Errorf("verifying RPC rows: %w", err)
	}
	// VerifyEquality reports every unserved app row, a row already verified
	// against the grid source is not missing.
	dhtVerifiedSet := make(map[uint32]struct{}, len(dhtVerifiedRows))
	for _, row := range dhtVerifiedRows {
		dhtVerifiedSet[row] = struct{}{}
	}
	retained := missingRows[:0]
	for _, row := range missingRows {
		if _, ok := dhtVerifiedSet[row]; !ok {
			retained = append(retained, row)
		}
	}
	missingRows = retained
	log.Debug("Verified app rows from RPC", "blockNumber", blockNumber,
		"verified", len(rpcVerifiedRows), "missing", len(missingRows))

	verifiedSet := dhtVerifiedSet
	for _, row := range rpcVerifiedRows {
		verifiedSet[row] = struct{}{}
	}

	// Verification status, not mere presence, gates row selection.
	rows := make([][]byte, extendedRows)
	rowsCount := 0
	for i := uint32(0); i < extendedRows; i++ {
		row := dhtRows[i]
		if row == nil {
			row = rpcRows[i]
		}
		if row == nil {
			continue
		}
		if _, ok := verifiedSet[i]; ok {
			rows[i] = row
			rowsCount++
		}
	}
	log.Debug("Selected verified rows", "blockNumber", blockNumber,
		"rows", rowsCount, "verified", len(verifiedSet), "missing", len(missingRows))

	if uint64(len(missingRows))*uint64(dims.Cols) > c.config.Threshold {
		return fmt.Errorf("%w: %d rows of %d columns, threshold %d",
			ErrTooManyCellsMissing, len(missingRows), dims.Cols, c.config.Threshold)
	}

	reconstructed, err := c.reconstructRowsFromDHT(ctx, blockNumber, dims, comms, missingRows)
	if err != nil {
		return fmt.Errorf("reconstructing missing rows: %w", err)
	}
	if len(reconstructed) > 0 {
		metrics.GetOrRegisterCounter("gridlight/appclient/rows/reconstructed", nil).Inc(int64(len(reconstructed)))
		log.Debug("Reconstructed app rows", "blockNumber", blockNumber, "rows", len(reconstructed))
	}
	for _, row := range reconstructed {
		if row.row >= extendedRows {
			return fmt.Errorf("reconstructed row %d out of range", row.row)
		}
		rows[row.row] = row.data
	}

	var dataCells []matrix.DataCell
	for i, row := range rows {
		if row == nil {
			continue
		}
		cells, err := matrix.DataCellsFromRow(dims, uint32(i), row)
		if err != nil {
			return fmt.Errorf("materializing data cells: %w", err)
		}
		dataCells = append(dataCells, cells...)
	}

	data, err := appdata.DecodeAppExtrinsics(lookup, dims, dataCells, appID)
	if err != nil {
		return fmt.Errorf("failed to decode app extrinsics: %w", err)
	}

	log.Debug("Storing app data", "blockNumber", blockNumber)
	if err := c.store.StoreAppData(ctx, appID, blockNumber, data); err != nil {
		return fmt.Errorf("failed to store app data: %w", err)
	}
	bytesCount := 0
	for _, extrinsic := range data {
		bytesCount += len(extrinsic)
	}
	log.Debug("Stored app data", "blockNumber", blockNumber, "bytes", bytesCount)

	return nil
}

// Run consumes verified blocks sequentially until the channel closes or the
// context is canceled. A block that fails to process is logged and dropped,
// it never halts the loop.
func (c *AppClient) Run(ctx context.Context, blocks <-chan BlockVerified) {
	log.Info("Starting app client", "appId", c.config.AppID)

	for {
		var block BlockVerified
		var ok bool
		select {
		case <-ctx.Done():
			return
		case block, ok = <-blocks:
			if !ok {
				return
			}
		}

		blockNumber := block.BlockNumber
		log.Info("Block available", "blockNumber", blockNumber,
			"headerHash", pretty.PrettyHash(block.HeaderHash),
			"rows", block.Dimensions.Rows, "cols", block.Dimensions.Cols)

		if block.Dimensions.Cols == 0 {
			log.Info("Skipping empty block", "blockNumber", blockNumber)
			continue
		}
		if !block.Lookup.HasRows(c.config.AppID) {
			log.Info("Skipping block with no cells for app", "blockNumber", blockNumber, "appId", c.config.AppID)
			continue
		}

		if err := c.ProcessBlock(ctx, &block); err != nil {
			metrics.GetOrRegisterCounter("gridlight/appclient/blocks/failure", nil).Inc(1)
			log.Error("Cannot process block", "blockNumber", blockNumber, "err", err)
		} else {
			metrics.GetOrRegisterCounter("gridlight/appclient/blocks/success", nil).Inc(1)
			log.Debug("Block processed", "blockNumber", blockNumber)
		}
	}
}
