// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

package erasure

import (
	"errors"
	"fmt"

	"github.com/gridlight-io/gridlight/matrix"
)

var (
	ErrInsufficientCells = errors.New("not enough verified cells to reconstruct column")
	ErrInvalidColumn     = errors.New("column does not match dimensions")
)

// ExtendColumn extends one original column to the interleaved extended layout:
// out[2i] = col[i], out[2i+1] = parity. Parity chunks are evaluations of the
// column polynomial at the odd-row points, making the code systematic.
func ExtendColumn(col []matrix.Chunk) ([]matrix.Chunk, error) {
	rows := len(col)
	if rows == 0 || rows > matrix.MaxRows {
		return nil, fmt.Errorf("%w: %d original rows", ErrInvalidColumn, rows)
	}

	xs := make([]byte, rows)
	for i := 0; i < rows; i++ {
		xs[i] = evalPoint(uint32(i) * matrix.ExtensionFactor)
	}

	extended := make([]matrix.Chunk, rows*matrix.ExtensionFactor)
	for i := 0; i < rows; i++ {
		extended[i*matrix.ExtensionFactor] = col[i]
	}

	ys := make([]byte, rows)
	for b := 0; b < matrix.ChunkSize; b++ {
		for i := 0; i < rows; i++ {
			ys[i] = col[i][b]
		}
		for i := 0; i < rows; i++ {
			parityRow := uint32(i)*matrix.ExtensionFactor + 1
			extended[parityRow][b] = lagrangeEval(xs, ys, evalPoint(parityRow))
		}
	}
	return extended, nil
}

// ReconstructColumns recovers the de-extended chunk sequence of every column
// present in the verified cell set. A column needs at least dims.Rows cells
// with distinct row indices; fewer is an error. Columns with no cells at all
// are simply absent from the result.
func ReconstructColumns(dims matrix.Dimensions, cells []matrix.Cell) (map[uint16][]matrix.Chunk, error) {
	if err := dims.Valid(); err != nil {
		return nil, err
	}
	extendedRows := dims.ExtendedRows()

	byColumn := make(map[uint16]map[uint32]matrix.Chunk)
	for _, cell := range cells {
		if cell.Position.Row >= extendedRows || cell.Position.Col >= dims.Cols {
			return nil, fmt.Errorf("%w: position %d:%d out of range", ErrInvalidColumn,
				cell.Position.Row, cell.Position.Col)
		}
		column, ok := byColumn[cell.Position.Col]
		if !ok {
			column = make(map[uint32]matrix.Chunk)
			byColumn[cell.Position.Col] = column
		}
		// Duplicate rows carry identical verified data, keep the first.
		if _, ok := column[cell.Position.Row]; !ok {
			column[cell.Position.Row] = cell.Data
		}
	}

	required := int(dims.Rows)
	reconstructed := make(map[uint16][]matrix.Chunk, len(byColumn))
	for col, column := range byColumn {
		if len(column) < required {
			return nil, fmt.Errorf("%w: column %d has %d cells, need %d",
				ErrInsufficientCells, col, len(column), required)
		}

		xs := make([]byte, 0, required)
		rows := make([]uint32, 0, required)
		for row := uint32(0); row < extendedRows && len(xs) < required; row++ {
			if _, ok := column[row]; ok {
				xs = append(xs, evalPoint(row))
				rows = append(rows, row)
			}
		}

		chunks := make([]matrix.Chunk, dims.Rows)
		ys := make([]byte, required)
		for b := 0; b < matrix.ChunkSize; b++ {
			for i, row := range rows {
				chunk := column[row]
				ys[i] = chunk[b]
			}
			for i := 0; i < int(dims.Rows); i++ {
				chunks[i][b] = lagrangeEval(xs, ys, evalPoint(uint32(i)*matrix.ExtensionFactor))
			}
		}
		reconstructed[col] = chunks
	}
	return reconstructed, nil
}
