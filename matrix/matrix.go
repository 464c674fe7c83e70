// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package matrix defines the geometry of the extended data grid: dimensions,
// cell positions, and the retrieved/verified cell value types.
//
// A block's payload is published as a rows x cols matrix of fixed-size chunks,
// extended row-wise by ExtensionFactor. The layout is interleaved: extended
// row 2i carries original row i, odd extended rows carry parity produced by
// the column erasure code.
package matrix

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// ChunkSize is the byte size of a single matrix cell.
	ChunkSize = 32

	// ExtensionFactor relates extended rows to original rows.
	ExtensionFactor = 2

	// ColumnCoverageFactor is the fraction of a column's extended cells that
	// must be targeted during reconstruction to guarantee recoverability.
	// Tied to the code's redundancy ratio, not a tunable.
	ColumnCoverageFactor = 0.66

	// MaxRows bounds the original row count so that every extended row has a
	// distinct non-zero GF(2^8) evaluation point.
	MaxRows = 127
)

var ErrInvalidDimensions = errors.New("invalid matrix dimensions")

// Chunk is the fixed-size payload of a single cell.
type Chunk [ChunkSize]byte

// Dimensions describes the grid of one block. Rows is the original
// (pre-extension) row count.
type Dimensions struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

func NewDimensions(rows, cols uint16) (Dimensions, error) {
	dims := Dimensions{Rows: rows, Cols: cols}
	if err := dims.Valid(); err != nil {
		return Dimensions{}, err
	}
	return dims, nil
}

func (d Dimensions) Valid() error {
	if d.Rows == 0 || d.Cols == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, d.Rows, d.Cols)
	}
	if d.Rows > MaxRows {
		return fmt.Errorf("%w: %d rows exceed maximum of %d", ErrInvalidDimensions, d.Rows, MaxRows)
	}
	return nil
}

// ExtendedRows returns the row count of the extended matrix.
func (d Dimensions) ExtendedRows() uint32 {
	return uint32(d.Rows) * ExtensionFactor
}

// RowSize returns the byte length of one full row.
func (d Dimensions) RowSize() int {
	return int(d.Cols) * ChunkSize
}

// ExtendedRowPositions expands row indices into the full set of positions of
// those rows in the extended matrix.
func (d Dimensions) ExtendedRowPositions(rows []uint32) []Position {
	positions := make([]Position, 0, len(rows)*int(d.Cols))
	for _, row := range rows {
		for col := uint16(0); col < d.Cols; col++ {
			positions = append(positions, Position{Row: row, Col: col})
		}
	}
	return positions
}

// ColumnPositions returns, for every distinct column appearing in positions,
// a random selection of ceil(ExtendedRows * factor) positions of that column.
// Fetching the selection is sufficient to reconstruct the column whenever the
// factor meets ColumnCoverageFactor.
func (d Dimensions) ColumnPositions(positions []Position, factor float64) []Position {
	columns := make(map[uint16]struct{})
	for _, position := range positions {
		columns[position.Col] = struct{}{}
	}
	sorted := make([]uint16, 0, len(columns))
	for col := range columns {
		sorted = append(sorted, col)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	extendedRows := d.ExtendedRows()
	count := int(math.Ceil(float64(extendedRows) * factor))
	if count > int(extendedRows) {
		count = int(extendedRows)
	}

	selected := make([]Position, 0, count*len(sorted))
	for _, col := range sorted {
		column := make([]Position, extendedRows)
		for row := uint32(0); row < extendedRows; row++ {
			column[row] = Position{Row: row, Col: col}
		}
		rand.Shuffle(len(column), func(i, j int) {
			column[i], column[j] = column[j], column[i]
		})
		selected = append(selected, column[:count]...)
	}
	return selected
}

// Position addresses one cell of the extended matrix.
type Position struct {
	Row uint32 `json:"row"`
	Col uint16 `json:"col"`
}

// Less orders positions by (row, col) ascending. Row assembly depends on this
// ordering.
func (p Position) Less(other Position) bool {
	if p.Row != other.Row {
		return p.Row < other.Row
	}
	return p.Col < other.Col
}

// Cell is a retrieved chunk plus its inclusion proof, as returned by a
// retrieval source. Its content has not been checked against the block
// commitments yet.
type Cell struct {
	Position Position
	Data     Chunk
	Proof    []common.Hash
}

// DataCell is a chunk that passed verification or was reconstructed. DataCells
// are the unit consumed by decoding.
type DataCell struct {
	Position Position
	Data     Chunk
}

// ToDataCell strips the proof off a verified cell.
func (c Cell) ToDataCell() DataCell {
	return DataCell{Position: c.Position, Data: c.Data}
}

// SortDataCells sorts cells by (row, col) ascending in place.
func SortDataCells(cells []DataCell) {
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].Position.Less(cells[j].Position)
	})
}

// DataCellsFromRow slices a full row into per-column DataCells. The row must
// be exactly RowSize bytes.
func DataCellsFromRow(dims Dimensions, row uint32, data []byte) ([]DataCell, error) {
	if len(data) != dims.RowSize() {
		return nil, fmt.Errorf("row %d has %d bytes, want %d", row, len(data), dims.RowSize())
	}
	cells := make([]DataCell, dims.Cols)
	for col := uint16(0); col < dims.Cols; col++ {
		cell := DataCell{Position: Position{Row: row, Col: col}}
		copy(cell.Data[:], data[int(col)*ChunkSize:])
		cells[col] = cell
	}
	return cells, nil
}
