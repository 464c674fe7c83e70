// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package appdata maps application identifiers to their rows in a block and
// decodes application extrinsics from verified data cells.
//
// The block header carries a lookup table: entries (appID, start) sorted by
// start, plus the total cell count. An app's payload occupies the original
// matrix cells [start, end) in row-major order, where end is the next entry's
// start (or the total). The payload itself is an RLP list of byte strings,
// zero-padded to a chunk boundary.
package appdata

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/gridlight-io/gridlight/matrix"
)

var (
	ErrMissingDataCell = errors.New("data cell not found")
	ErrAppOutOfRange   = errors.New("app data range exceeds matrix")
)

// IndexEntry marks where an application's cell range begins.
type IndexEntry struct {
	AppID uint32 `json:"appId"`
	Start uint32 `json:"start"`
}

// AppLookup is the per-block table mapping application ids to cell ranges.
// Immutable for the block's lifetime.
type AppLookup struct {
	Size  uint32       `json:"size"`
	Index []IndexEntry `json:"index"`
}

// RangeOf returns the half-open original cell range [start, end) of appID.
func (l *AppLookup) RangeOf(appID uint32) (uint32, uint32, bool) {
	for i, entry := range l.Index {
		if entry.AppID != appID {
			continue
		}
		end := l.Size
		if i+1 < len(l.Index) {
			end = l.Index[i+1].Start
		}
		if entry.Start >= end {
			return 0, 0, false
		}
		return entry.Start, end, true
	}
	return 0, 0, false
}

// HasRows reports whether the block contains any cells for appID.
func (l *AppLookup) HasRows(appID uint32) bool {
	_, _, ok := l.RangeOf(appID)
	return ok
}

// AppRows returns the extended row indices carrying appID's data, ascending.
// Data lives on even extended rows only; odd rows are parity.
func AppRows(lookup *AppLookup, dims matrix.Dimensions, appID uint32) []uint32 {
	start, end, ok := lookup.RangeOf(appID)
	if !ok || dims.Cols == 0 {
		return nil
	}
	cols := uint32(dims.Cols)
	firstRow := start / cols
	lastRow := (end - 1) / cols
	rows := make([]uint32, 0, lastRow-firstRow+1)
	for row := firstRow; row <= lastRow; row++ {
		rows = append(rows, row*matrix.ExtensionFactor)
	}
	return rows
}

// DecodeAppExtrinsics assembles the app's cell range from verified data cells
// and decodes the RLP extrinsic list. Every cell of the range must be present.
func DecodeAppExtrinsics(
	lookup *AppLookup,
	dims matrix.Dimensions,
	cells []matrix.DataCell,
	appID uint32,
) ([][]byte, error) {
	start, end, ok := lookup.RangeOf(appID)
	if !ok {
		return nil, nil
	}
	cols := uint32(dims.Cols)
	if cols == 0 || (end-1)/cols >= uint32(dims.Rows) {
		return nil, fmt.Errorf("%w: cells [%d, %d) in %dx%d matrix",
			ErrAppOutOfRange, start, end, dims.Rows, dims.Cols)
	}

	byPosition := make(map[matrix.Position]matrix.Chunk, len(cells))
	for _, cell := range cells {
		byPosition[cell.Position] = cell.Data
	}

	payload := make([]byte, 0, int(end-start)*matrix.ChunkSize)
	for i := start; i < end; i++ {
		position := matrix.Position{
			Row: (i / cols) * matrix.ExtensionFactor,
			Col: uint16(i % cols),
		}
		chunk, ok := byPosition[position]
		if !ok {
			return nil, fmt.Errorf("%w: %d:%d", ErrMissingDataCell, position.Row, position.Col)
		}
		payload = append(payload, chunk[:]...)
	}

	// The payload is zero-padded past the RLP list, so decode from a stream
	// rather than requiring an exact fit.
	var extrinsics [][]byte
	stream := rlp.NewStream(bytes.NewReader(payload), 0)
	if err := stream.Decode(&extrinsics); err != nil {
		return nil, fmt.Errorf("decoding app extrinsics: %w", err)
	}
	return extrinsics, nil
}

// EncodeAppExtrinsics is the producer-side inverse of DecodeAppExtrinsics:
// RLP-encode the extrinsic list and zero-pad to a whole number of chunks.
func EncodeAppExtrinsics(extrinsics [][]byte) ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(extrinsics)
	if err != nil {
		return nil, err
	}
	if rem := len(encoded) % matrix.ChunkSize; rem != 0 {
		encoded = append(encoded, make([]byte, matrix.ChunkSize-rem)...)
	}
	return encoded, nil
}
