// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

package commitments

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gridlight-io/gridlight/appdata"
	"github.com/gridlight-io/gridlight/matrix"
	"github.com/gridlight-io/gridlight/util/testhelpers"
)

func randomRow(t *testing.T, dims matrix.Dimensions) []byte {
	t.Helper()
	return testhelpers.RandomSlice(uint64(dims.RowSize()))
}

func TestCellInclusionRoundtrip(t *testing.T) {
	pp := DefaultPublicParams()
	// Non-power-of-two column count exercises leaf padding.
	dims := matrix.Dimensions{Rows: 2, Cols: 5}
	row := randomRow(t, dims)

	commitment, err := RowCommitment(pp, dims, row)
	Require(t, err)

	for col := uint16(0); col < dims.Cols; col++ {
		proof, err := CellProof(pp, dims, row, col)
		Require(t, err)
		cell := matrix.Cell{
			Position: matrix.Position{Row: 0, Col: col},
			Proof:    proof,
		}
		copy(cell.Data[:], row[int(col)*matrix.ChunkSize:])
		if !VerifyCellInclusion(pp, dims, commitment, cell) {
			Fail(t, "valid cell at column", col, "failed verification")
		}
		cell.Data[0] ^= 0xff
		if VerifyCellInclusion(pp, dims, commitment, cell) {
			Fail(t, "tampered cell at column", col, "passed verification")
		}
	}

	if _, err := CellProof(pp, dims, row, dims.Cols); err == nil {
		Fail(t, "expected error for out-of-range column")
	}
}

func TestVerifyCellsPartition(t *testing.T) {
	pp := DefaultPublicParams()
	dims := matrix.Dimensions{Rows: 1, Cols: 4}
	row0 := randomRow(t, dims)
	row1 := randomRow(t, dims)

	comm0, err := RowCommitment(pp, dims, row0)
	Require(t, err)
	comm1, err := RowCommitment(pp, dims, row1)
	Require(t, err)
	comms := []common.Hash{comm0, comm1}

	goodProof, err := CellProof(pp, dims, row0, 1)
	Require(t, err)
	good := matrix.Cell{Position: matrix.Position{Row: 0, Col: 1}, Proof: goodProof}
	copy(good.Data[:], row0[matrix.ChunkSize:])

	bad := good
	bad.Position = matrix.Position{Row: 1, Col: 1} // proven against the wrong row

	outOfRange := good
	outOfRange.Position = matrix.Position{Row: 7, Col: 1}

	verified, unverified, err := VerifyCells(42, dims, []matrix.Cell{good, bad, outOfRange}, comms, pp)
	Require(t, err)
	if len(verified) != 1 || verified[0] != good.Position {
		Fail(t, "expected only the good cell verified, got", verified)
	}
	if len(unverified) != 2 {
		Fail(t, "expected 2 unverified positions, got", unverified)
	}

	_, _, err = VerifyCells(42, dims, nil, comms[:1], pp)
	if !errors.Is(err, ErrMalformedCommitments) {
		Fail(t, "expected malformed commitments error, got", err)
	}
}

func TestVerifyEquality(t *testing.T) {
	pp := DefaultPublicParams()
	dims := matrix.Dimensions{Rows: 2, Cols: 2}
	lookup := &appdata.AppLookup{
		Size:  4,
		Index: []appdata.IndexEntry{{AppID: 7, Start: 0}},
	}

	rows := make([][]byte, dims.ExtendedRows())
	comms := make([]common.Hash, dims.ExtendedRows())
	for i := range rows {
		rows[i] = randomRow(t, dims)
		comm, err := RowCommitment(pp, dims, rows[i])
		Require(t, err)
		comms[i] = comm
	}

	// App 7 occupies both original rows, extended rows 0 and 2. Drop row 2 and
	// corrupt nothing.
	present := make([][]byte, len(rows))
	present[0] = rows[0]

	verified, missing, err := VerifyEquality(pp, comms, present, lookup, dims, 7)
	Require(t, err)
	if len(verified) != 1 || verified[0] != 0 {
		Fail(t, "expected row 0 verified, got", verified)
	}
	if len(missing) != 1 || missing[0] != 2 {
		Fail(t, "expected row 2 missing, got", missing)
	}

	// A present row that does not match its commitment counts as missing.
	present[2] = randomRow(t, dims)
	_, missing, err = VerifyEquality(pp, comms, present, lookup, dims, 7)
	Require(t, err)
	if len(missing) != 1 || missing[0] != 2 {
		Fail(t, "expected corrupted row 2 missing, got", missing)
	}

	_, _, err = VerifyEquality(pp, comms[:1], present, lookup, dims, 7)
	if !errors.Is(err, ErrMalformedCommitments) {
		Fail(t, "expected malformed commitments error, got", err)
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
