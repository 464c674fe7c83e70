// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package commitments implements the per-row commitment scheme of the data
// grid and the verification contracts the pipeline consumes.
//
// A row commitment is the keccak merkle root over the row's chunks, with
// domain-separation tag bytes for leaves and inner nodes. Leaves are padded to
// the next power of two with the empty-leaf hash, so every cell has an
// inclusion branch of uniform depth.
package commitments

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gridlight-io/gridlight/appdata"
	"github.com/gridlight-io/gridlight/matrix"
)

const (
	LeafTag byte = 0xfe
	NodeTag byte = 0xff
)

var (
	ErrMalformedCommitments = errors.New("commitment set does not cover the extended matrix")
	ErrInvalidRowSize       = errors.New("row byte length does not match dimensions")
)

// PublicParams is the scheme-wide setup shared read-only by every block and
// every app-id instance.
type PublicParams struct {
	LeafTag byte
	NodeTag byte
}

func DefaultPublicParams() *PublicParams {
	return &PublicParams{LeafTag: LeafTag, NodeTag: NodeTag}
}

func (pp *PublicParams) leafHash(chunk []byte) common.Hash {
	return crypto.Keccak256Hash([]byte{pp.LeafTag}, chunk)
}

func (pp *PublicParams) nodeHash(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{pp.NodeTag}, left.Bytes(), right.Bytes())
}

func paddedLeafCount(cols uint16) int {
	count := 1
	for count < int(cols) {
		count *= 2
	}
	return count
}

// rowLeaves hashes a row's chunks and pads to a power of two with the
// empty-leaf hash.
func (pp *PublicParams) rowLeaves(dims matrix.Dimensions, row []byte) ([]common.Hash, error) {
	if len(row) != dims.RowSize() {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidRowSize, len(row), dims.RowSize())
	}
	padded := paddedLeafCount(dims.Cols)
	leaves := make([]common.Hash, padded)
	for col := 0; col < int(dims.Cols); col++ {
		leaves[col] = pp.leafHash(row[col*matrix.ChunkSize : (col+1)*matrix.ChunkSize])
	}
	empty := pp.leafHash(nil)
	for col := int(dims.Cols); col < padded; col++ {
		leaves[col] = empty
	}
	return leaves, nil
}

// RowCommitment computes the commitment of one full extended row.
func RowCommitment(pp *PublicParams, dims matrix.Dimensions, row []byte) (common.Hash, error) {
	layer, err := pp.rowLeaves(dims, row)
	if err != nil {
		return common.Hash{}, err
	}
	for len(layer) > 1 {
		next := make([]common.Hash, len(layer)/2)
		for i := range next {
			next[i] = pp.nodeHash(layer[2*i], layer[2*i+1])
		}
		layer = next
	}
	return layer[0], nil
}

// CellProof produces the merkle inclusion branch for the chunk at column col,
// sibling hashes bottom-up.
func CellProof(pp *PublicParams, dims matrix.Dimensions, row []byte, col uint16) ([]common.Hash, error) {
	if col >= dims.Cols {
		return nil, fmt.Errorf("column %d out of range for %d columns", col, dims.Cols)
	}
	layer, err := pp.rowLeaves(dims, row)
	if err != nil {
		return nil, err
	}
	var proof []common.Hash
	index := int(col)
	for len(layer) > 1 {
		proof = append(proof, layer[index^1])
		next := make([]common.Hash, len(layer)/2)
		for i := range next {
			next[i] = pp.nodeHash(layer[2*i], layer[2*i+1])
		}
		layer = next
		index /= 2
	}
	return proof, nil
}

// VerifyCellInclusion folds a cell's chunk up its proof and compares the
// result with the row commitment.
func VerifyCellInclusion(pp *PublicParams, dims matrix.Dimensions, commitment common.Hash, cell matrix.Cell) bool {
	if cell.Position.Col >= dims.Cols {
		return false
	}
	depth := 0
	for count := 1; count < paddedLeafCount(dims.Cols); count *= 2 {
		depth++
	}
	if len(cell.Proof) != depth {
		return false
	}
	acc := pp.leafHash(cell.Data[:])
	index := int(cell.Position.Col)
	for _, sibling := range cell.Proof {
		if index%2 == 0 {
			acc = pp.nodeHash(acc, sibling)
		} else {
			acc = pp.nodeHash(sibling, acc)
		}
		index /= 2
	}
	return acc == commitment
}

// VerifyCells partitions cells into provably correct positions and positions
// that are absent or failed verification. A cell failing its proof is not an
// error; a commitment set that does not cover the extended matrix is.
func VerifyCells(
	blockNumber uint32,
	dims matrix.Dimensions,
	cells []matrix.Cell,
	comms []common.Hash,
	pp *PublicParams,
) ([]matrix.Position, []matrix.Position, error) {
	if err := dims.Valid(); err != nil {
		return nil, nil, err
	}
	extendedRows := dims.ExtendedRows()
	if uint32(len(comms)) < extendedRows {
		return nil, nil, fmt.Errorf("%w: %d commitments for %d extended rows (block %d)",
			ErrMalformedCommitments, len(comms), extendedRows, blockNumber)
	}

	var verified, unverified []matrix.Position
	for _, cell := range cells {
		if cell.Position.Row >= extendedRows {
			unverified = append(unverified, cell.Position)
			continue
		}
		if VerifyCellInclusion(pp, dims, comms[cell.Position.Row], cell) {
			verified = append(verified, cell.Position)
		} else {
			unverified = append(unverified, cell.Position)
		}
	}
	return verified, unverified, nil
}

// VerifyEquality checks every app row present in rows against its commitment.
// The rows slice is indexed by extended row number; nil entries are absent.
// Returns the app row indices that verified and those still missing.
func VerifyEquality(
	pp *PublicParams,
	comms []common.Hash,
	rows [][]byte,
	lookup *appdata.AppLookup,
	dims matrix.Dimensions,
	appID uint32,
) ([]uint32, []uint32, error) {
	if err := dims.Valid(); err != nil {
		return nil, nil, err
	}
	extendedRows := dims.ExtendedRows()
	if uint32(len(comms)) < extendedRows {
		return nil, nil, fmt.Errorf("%w: %d commitments for %d extended rows",
			ErrMalformedCommitments, len(comms), extendedRows)
	}
	if uint32(len(rows)) != extendedRows {
		return nil, nil, fmt.Errorf("%w: %d row slots for %d extended rows",
			ErrMalformedCommitments, len(rows), extendedRows)
	}

	var verified, missing []uint32
	for _, row := range appdata.AppRows(lookup, dims, appID) {
		data := rows[row]
		if data == nil {
			missing = append(missing, row)
			continue
		}
		commitment, err := RowCommitment(pp, dims, data)
		if err != nil || commitment != comms[row] {
			missing = append(missing, row)
			continue
		}
		verified = append(verified, row)
	}
	return verified, missing, nil
}
