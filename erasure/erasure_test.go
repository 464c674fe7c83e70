// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

package erasure

import (
	"errors"
	"testing"

	"github.com/gridlight-io/gridlight/matrix"
	"github.com/gridlight-io/gridlight/util/testhelpers"
)

func randomColumn(t *testing.T, rows int) []matrix.Chunk {
	t.Helper()
	column := make([]matrix.Chunk, rows)
	for i := range column {
		copy(column[i][:], testhelpers.RandomSlice(matrix.ChunkSize))
	}
	return column
}

func TestExtendColumnSystematic(t *testing.T) {
	column := randomColumn(t, 4)
	extended, err := ExtendColumn(column)
	Require(t, err)
	if len(extended) != 8 {
		Fail(t, "expected 8 extended chunks, got", len(extended))
	}
	for i, chunk := range column {
		if extended[i*matrix.ExtensionFactor] != chunk {
			Fail(t, "original chunk", i, "not preserved at even index")
		}
	}

	if _, err := ExtendColumn(nil); !errors.Is(err, ErrInvalidColumn) {
		Fail(t, "expected invalid column error, got", err)
	}
}

func TestReconstructFromAnySubset(t *testing.T) {
	dims := matrix.Dimensions{Rows: 4, Cols: 1}
	column := randomColumn(t, int(dims.Rows))
	extended, err := ExtendColumn(column)
	Require(t, err)

	// Any dims.Rows distinct extended cells recover the column; exercise a
	// parity-only subset and a mixed one.
	for _, rows := range [][]uint32{
		{1, 3, 5, 7},
		{0, 3, 4, 7},
		{0, 2, 4, 6},
	} {
		cells := make([]matrix.Cell, 0, len(rows))
		for _, row := range rows {
			cells = append(cells, matrix.Cell{
				Position: matrix.Position{Row: row, Col: 0},
				Data:     extended[row],
			})
		}
		reconstructed, err := ReconstructColumns(dims, cells)
		Require(t, err, "subset", rows)
		got, ok := reconstructed[0]
		if !ok || len(got) != int(dims.Rows) {
			Fail(t, "column 0 not reconstructed from subset", rows)
		}
		for i := range column {
			if got[i] != column[i] {
				Fail(t, "chunk", i, "differs after reconstruction from subset", rows)
			}
		}
	}
}

func TestReconstructInsufficientCells(t *testing.T) {
	dims := matrix.Dimensions{Rows: 4, Cols: 2}
	column := randomColumn(t, int(dims.Rows))
	extended, err := ExtendColumn(column)
	Require(t, err)

	cells := []matrix.Cell{
		{Position: matrix.Position{Row: 0, Col: 0}, Data: extended[0]},
		{Position: matrix.Position{Row: 1, Col: 0}, Data: extended[1]},
		{Position: matrix.Position{Row: 2, Col: 0}, Data: extended[2]},
	}
	if _, err := ReconstructColumns(dims, cells); !errors.Is(err, ErrInsufficientCells) {
		Fail(t, "expected insufficient cells error, got", err)
	}

	// Duplicates of one row do not count towards the quorum.
	cells = append(cells, matrix.Cell{Position: matrix.Position{Row: 2, Col: 0}, Data: extended[2]})
	if _, err := ReconstructColumns(dims, cells); !errors.Is(err, ErrInsufficientCells) {
		Fail(t, "expected insufficient cells error with duplicate, got", err)
	}
}

func TestReconstructOutOfRange(t *testing.T) {
	dims := matrix.Dimensions{Rows: 2, Cols: 2}
	cells := []matrix.Cell{
		{Position: matrix.Position{Row: 4, Col: 0}},
	}
	if _, err := ReconstructColumns(dims, cells); !errors.Is(err, ErrInvalidColumn) {
		Fail(t, "expected invalid column error, got", err)
	}
}

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}
