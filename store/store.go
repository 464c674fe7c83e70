// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package store persists decoded application data in a local Badger database,
// keyed by (appID, blockNumber). Writes are idempotent: storing the same
// payload twice leaves the database unchanged.
package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	flag "github.com/spf13/pflag"
)

var ErrNotFound = errors.New("no app data for block")

type Config struct {
	DataDir string `koanf:"data-dir"`
}

var DefaultConfig = Config{
	DataDir: "",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".data-dir", DefaultConfig.DataDir, "directory for the local app data database")
}

// DBStorage implements appclient.Store on top of Badger.
type DBStorage struct {
	db *badger.DB
}

func NewDBStorage(config Config) (*DBStorage, error) {
	if config.DataDir == "" {
		return nil, errors.New("store data-dir must be set")
	}
	options := badger.DefaultOptions(config.DataDir).WithLogger(nil)
	db, err := badger.Open(options)
	if err != nil {
		return nil, err
	}
	return &DBStorage{db: db}, nil
}

func appDataKey(appID uint32, blockNumber uint32) []byte {
	return []byte(fmt.Sprintf("%d:%d", appID, blockNumber))
}

// StoreAppData writes the decoded extrinsic list for one block. Replaying a
// block overwrites the entry with identical bytes.
func (s *DBStorage) StoreAppData(ctx context.Context, appID uint32, blockNumber uint32, data [][]byte) error {
	value, err := rlp.EncodeToBytes(data)
	if err != nil {
		return err
	}
	log.Trace("store.DBStorage.StoreAppData", "appId", appID, "blockNumber", blockNumber, "bytes", len(value))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(appDataKey(appID, blockNumber), value)
	})
}

// FetchAppData reads back the extrinsic list stored for one block.
func (s *DBStorage) FetchAppData(ctx context.Context, appID uint32, blockNumber uint32) ([][]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(appDataKey(appID, blockNumber))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: app %d block %d", ErrNotFound, appID, blockNumber)
	}
	if err != nil {
		return nil, err
	}
	var data [][]byte
	if err := rlp.DecodeBytes(value, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *DBStorage) Sync(ctx context.Context) error {
	return s.db.Sync()
}

func (s *DBStorage) Close(ctx context.Context) error {
	return s.db.Close()
}
