// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store persists network definitions in Badger.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/lnsim/ln-network-runner/network"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

var _ network.Store = (*BadgerStore)(nil)

const networkPrefix = "network:"

// BadgerStore implements network.Store.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) the store in directory [path].
func Open(path string, log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path)).
		WithValueLogFileSize(1 << 20).
		WithLogger(newBadgerLogger(log))
	return open(opts)
}

// OpenInMemory opens a store that keeps nothing on disk.
func OpenInMemory(log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(newBadgerLogger(log))
	return open(opts)
}

func open(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("couldn't open store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Keys are zero padded so iteration order is id order.
func networkKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", networkPrefix, id))
}

func (s *BadgerStore) SaveNetwork(_ context.Context, id uint64, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(networkKey(id), data)
	})
}

func (s *BadgerStore) GetNetwork(_ context.Context, id uint64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(networkKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: network %d", ErrNotFound, id)
			}
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNetwork of a network that isn't stored is a no-op.
func (s *BadgerStore) DeleteNetwork(_ context.Context, id uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(networkKey(id))
	})
}

func (s *BadgerStore) ListNetworks(ctx context.Context) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(networkPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// badgerLogger routes badger's logs to zap. Badger is chatty at info level,
// so info and debug both go to debug.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func newBadgerLogger(log *zap.Logger) badger.Logger {
	if log == nil {
		log = zap.L()
	}
	return badgerLogger{log: log.Named("badger").Sugar()}
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
