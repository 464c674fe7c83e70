// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gridlight-io/gridlight/util/testhelpers"
)

func openTestStorage(t *testing.T) *DBStorage {
	t.Helper()
	db, err := NewDBStorage(Config{DataDir: t.TempDir()})
	Require(t, err)
	t.Cleanup(func() {
		Require(t, db.Close(context.Background()))
	})
	return db
}

func TestStoreFetchRoundtrip(t *testing.T) {
	ctx := context.Background()
	db := openTestStorage(t)

	data := [][]byte{
		testhelpers.RandomSlice(64),
		testhelpers.RandomSlice(7),
		{},
	}
	Require(t, db.StoreAppData(ctx, 3, 100, data))

	fetched, err := db.FetchAppData(ctx, 3, 100)
	Require(t, err)
	if len(fetched) != len(data) {
		Fail(t, "fetched", len(fetched), "extrinsics, want", len(data))
	}
	for i := range data {
		if !bytes.Equal(fetched[i], data[i]) {
			Fail(t, "extrinsic", i, "differs after roundtrip")
		}
	}
}

func TestFetchNotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestStorage(t)

	if _, err := db.FetchAppData(ctx, 3, 100); !errors.Is(err, ErrNotFound) {
		Fail(t, "expected not found error, got", err)
	}

	// Keys are scoped by both app id and block number.
	Require(t, db.StoreAppData(ctx, 3, 100, [][]byte{{1}}))
	if _, err := db.FetchAppData(ctx, 4, 100); !errors.Is(err, ErrNotFound) {
		Fail(t, "expected not found error for other app, got", err)
	}
	if _, err := db.FetchAppData(ctx, 3, 101); !errors.Is(err, ErrNotFound) {
		Fail(t, "expected not found error for other block, got", err)
	}
}

func TestStoreIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestStorage(t)

	data := [][]byte{testhelpers.RandomSlice(32)}
	Require(t, db.StoreAppData(ctx, 3, 100, data))
	Require(t, db.StoreAppData(ctx, 3, 100, data))

	fetched, err := db.FetchAppData(ctx, 3, 100)
	Require(t, err)
	if len(fetched) != 1 || !bytes.Equal(fetched[0], data[0]) {
		Fail(t, "repeated store changed the persisted data")
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
