package storage

import (
	"os"

	"github.com/Connor1996/badger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// BadgerStore implements Store on an embedded Badger LSM tree.
// Every write runs in its own Badger transaction and is durable when it returns.
type BadgerStore struct {
	db     *badger.DB
	dir    string
	logger *log.Entry
}

// NewBadgerStore opens (or creates) a Badger database under dir
func NewBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "create store dir %s", dir)
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger at %s", dir)
	}
	return &BadgerStore{
		db:     db,
		dir:    dir,
		logger: log.WithField("store", dir),
	}, nil
}

// Get retrieves a value by key
func (b *BadgerStore) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %q", key)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Put stores a value with the given key
func (b *BadgerStore) Put(key string, value []byte) error {
	if err := checkPut(key, value); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return errors.Wrapf(err, "put %q", key)
}

// Delete removes a key-value pair. Existence is checked in the same transaction.
func (b *BadgerStore) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err == badger.ErrKeyNotFound {
		return ErrKeyNotFound
	}
	return errors.Wrapf(err, "delete %q", key)
}

// CheckPut validates key and value sizes
func (b *BadgerStore) CheckPut(key string, value []byte) error {
	return checkPut(key, value)
}

// CheckDelete fails with ErrKeyNotFound when the key is absent
func (b *BadgerStore) CheckDelete(key string) error {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return ErrKeyNotFound
	}
	return errors.Wrapf(err, "check delete %q", key)
}

// Stats returns storage statistics
func (b *BadgerStore) Stats() StoreStats {
	var st StoreStats
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.Keys++
			st.Bytes += it.Item().ValueSize()
		}
		return nil
	})
	if err != nil {
		b.logger.WithError(err).Warn("stats scan failed")
	}
	return st
}

// Close flushes and closes the database
func (b *BadgerStore) Close() error {
	return errors.Wrap(b.db.Close(), "close badger")
}
