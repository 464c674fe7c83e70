// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

package appdata

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gridlight-io/gridlight/matrix"
	"github.com/gridlight-io/gridlight/util/testhelpers"
)

func TestAppLookupRanges(t *testing.T) {
	lookup := &AppLookup{
		Size: 12,
		Index: []IndexEntry{
			{AppID: 1, Start: 0},
			{AppID: 4, Start: 5},
			{AppID: 9, Start: 5}, // empty range
		},
	}

	start, end, ok := lookup.RangeOf(1)
	if !ok || start != 0 || end != 5 {
		Fail(t, "app 1 range is", start, end, ok)
	}
	// 4's range ends where 9's begins, so it is empty and reports absent.
	if _, _, ok := lookup.RangeOf(4); ok {
		Fail(t, "app 4 has an empty range but reported present")
	}
	start, end, ok = lookup.RangeOf(9)
	if !ok || start != 5 || end != 12 {
		Fail(t, "app 9 range is", start, end, ok)
	}
	if lookup.HasRows(2) {
		Fail(t, "app 2 should have no rows")
	}
	if lookup.HasRows(4) {
		Fail(t, "app 4 has an empty range")
	}
}

func TestAppRows(t *testing.T) {
	dims := matrix.Dimensions{Rows: 4, Cols: 3}
	lookup := &AppLookup{
		Size: 12,
		Index: []IndexEntry{
			{AppID: 1, Start: 0},
			{AppID: 4, Start: 4},
		},
	}

	// App 1: cells [0, 4) span original rows 0-1, extended rows 0 and 2.
	rows := AppRows(lookup, dims, 1)
	if len(rows) != 2 || rows[0] != 0 || rows[1] != 2 {
		Fail(t, "app 1 rows are", rows)
	}
	// App 4: cells [4, 12) span original rows 1-3, extended rows 2, 4, 6.
	rows = AppRows(lookup, dims, 4)
	if len(rows) != 3 || rows[0] != 2 || rows[1] != 4 || rows[2] != 6 {
		Fail(t, "app 4 rows are", rows)
	}
	if rows := AppRows(lookup, dims, 2); rows != nil {
		Fail(t, "app 2 rows are", rows)
	}
}

func payloadCells(t *testing.T, dims matrix.Dimensions, start uint32, payload []byte) []matrix.DataCell {
	t.Helper()
	if len(payload)%matrix.ChunkSize != 0 {
		Fail(t, "payload is not chunk aligned")
	}
	cells := make([]matrix.DataCell, 0, len(payload)/matrix.ChunkSize)
	cols := uint32(dims.Cols)
	for i := 0; i < len(payload)/matrix.ChunkSize; i++ {
		index := start + uint32(i)
		cell := matrix.DataCell{Position: matrix.Position{
			Row: (index / cols) * matrix.ExtensionFactor,
			Col: uint16(index % cols),
		}}
		copy(cell.Data[:], payload[i*matrix.ChunkSize:])
		cells = append(cells, cell)
	}
	return cells
}

func TestExtrinsicsRoundtrip(t *testing.T) {
	dims := matrix.Dimensions{Rows: 2, Cols: 4}
	extrinsics := [][]byte{
		testhelpers.RandomSlice(40),
		testhelpers.RandomSlice(90),
		{},
	}

	payload, err := EncodeAppExtrinsics(extrinsics)
	Require(t, err)
	if len(payload)%matrix.ChunkSize != 0 {
		Fail(t, "encoded payload not chunk aligned:", len(payload))
	}

	cellCount := uint32(len(payload) / matrix.ChunkSize)
	lookup := &AppLookup{
		Size:  uint32(dims.Rows) * uint32(dims.Cols),
		Index: []IndexEntry{{AppID: 3, Start: 0}, {AppID: 5, Start: cellCount}},
	}
	cells := payloadCells(t, dims, 0, payload)

	decoded, err := DecodeAppExtrinsics(lookup, dims, cells, 3)
	Require(t, err)
	if len(decoded) != len(extrinsics) {
		Fail(t, "decoded", len(decoded), "extrinsics, want", len(extrinsics))
	}
	for i := range extrinsics {
		if !bytes.Equal(decoded[i], extrinsics[i]) {
			Fail(t, "extrinsic", i, "differs after roundtrip")
		}
	}
}

func TestDecodeMissingCell(t *testing.T) {
	dims := matrix.Dimensions{Rows: 2, Cols: 4}
	payload, err := EncodeAppExtrinsics([][]byte{testhelpers.RandomSlice(70)})
	Require(t, err)

	lookup := &AppLookup{
		Size:  uint32(len(payload) / matrix.ChunkSize),
		Index: []IndexEntry{{AppID: 3, Start: 0}},
	}
	cells := payloadCells(t, dims, 0, payload)

	_, err = DecodeAppExtrinsics(lookup, dims, cells[:len(cells)-1], 3)
	if !errors.Is(err, ErrMissingDataCell) {
		Fail(t, "expected missing data cell error, got", err)
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	dims := matrix.Dimensions{Rows: 1, Cols: 2}
	lookup := &AppLookup{
		Size:  8,
		Index: []IndexEntry{{AppID: 3, Start: 0}},
	}
	_, err := DecodeAppExtrinsics(lookup, dims, nil, 3)
	if !errors.Is(err, ErrAppOutOfRange) {
		Fail(t, "expected out of range error, got", err)
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
