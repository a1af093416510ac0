// Package badger stores journal entries in an embedded BadgerDB database,
// msgpack-encoded and keyed by time so iteration order is chronological.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrWong99/dawvox/internal/journal"
)

var prefix = []byte("journal/")

// Store is a BadgerDB-backed journal.Store. Safe for concurrent use.
type Store struct {
	db *badgerdb.DB
}

var _ journal.Store = (*Store)(nil)

// Options configures Open.
type Options struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("journal badger: directory is required")
	}
	dbOpts := badgerdb.DefaultOptions(opts.Dir).WithLogger(slogLogger{})
	if opts.InMemory {
		dbOpts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(slogLogger{})
	}
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("journal badger: open: %w", err)
	}
	return &Store{db: db}, nil
}

// key orders entries by time and keeps same-instant entries distinct.
func key(e journal.Entry) []byte {
	k := make([]byte, 0, len(prefix)+8+len(e.ID))
	k = append(k, prefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(e.At.UnixNano()))
	return append(k, e.ID...)
}

// Append implements [journal.Store].
func (s *Store) Append(_ context.Context, e journal.Entry) error {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal badger: encode: %w", err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(e), data)
	})
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return journal.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("journal badger: append: %w", err)
	}
	return nil
}

// Recent implements [journal.Store]. n <= 0 returns every entry.
func (s *Store) Recent(ctx context.Context, n int) ([]journal.Entry, error) {
	var out []journal.Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key not greater than the seek
		// key, so seek past every possible suffix.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e journal.Entry
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &e)
			})
			if err != nil {
				slog.Warn("journal badger: skipping undecodable entry", "key", string(it.Item().Key()), "err", err)
				continue
			}
			out = append(out, e)
			if n > 0 && len(out) == n {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal badger: recent: %w", err)
	}
	return out, nil
}

// Close implements [journal.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

// slogLogger routes badger's log output to slog, dropping info and debug.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...any)   { slog.Error(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Warningf(f string, v ...any) { slog.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (slogLogger) Infof(string, ...any)        {}
func (slogLogger) Debugf(string, ...any)       {}
