package forward

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const cursorKeyPrefix = "cursor:"

// BadgerCursorConfig configures a BadgerCursor.
type BadgerCursorConfig struct {
	// DBPath is the directory of the BadgerDB database.
	DBPath string

	// Name distinguishes several forwarders sharing one database
	// (default: "default").
	Name string

	// InMemory runs BadgerDB without touching disk. Used by tests.
	InMemory bool
}

// BadgerCursor persists the forwarder position in BadgerDB so a restarted
// forwarder resumes where it stopped.
type BadgerCursor struct {
	db  *badger.DB
	key []byte
}

// NewBadgerCursor opens (or creates) the cursor database.
func NewBadgerCursor(ctx context.Context, cfg BadgerCursorConfig) (*BadgerCursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger cursor: db path is required")
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// A single small key: keep the footprint and log noise low.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)
	opts = opts.WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &BadgerCursor{
		db:  db,
		key: []byte(cursorKeyPrefix + cfg.Name),
	}, nil
}

// Load returns the saved position, or 0 when nothing was saved yet.
func (c *BadgerCursor) Load(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var id uint64
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt cursor value (%d bytes)", len(val))
			}
			id = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	return id, nil
}

// Save durably records id as the last forwarded unit.
func (c *BadgerCursor) Save(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, id)

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key, val)
	})
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *BadgerCursor) Close() error {
	return c.db.Close()
}
