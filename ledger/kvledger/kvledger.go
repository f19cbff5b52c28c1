// Package kvledger implements a brick ledger in a badger key-value store.
package kvledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"

	"github.com/zephyrtronium/brick/ledger"
)

/*
Key structure:
"brick" \x00 Guild \x00 User
Guild and user IDs never contain \x00, so keys for distinct identities are
distinct and all records for a guild share a prefix.

Values are JSON objects encoding entry.
*/

// Ledger is a ledger.Store backed by badger.
type Ledger struct {
	db *badger.DB
}

var _ ledger.Store = (*Ledger)(nil)

// New returns a ledger using the given database.
// The db must remain open for the lifetime of the ledger.
func New(db *badger.DB) *Ledger {
	return &Ledger{db: db}
}

type entry struct {
	Bricks   int    `json:"bricks"`
	Burning  bool   `json:"burning,omitzero"`
	LastSlap int64  `json:"last_slap,omitzero"`
	ClaimDay string `json:"claim_day,omitzero"`
}

const prefix = "brick\x00"

func key(id ledger.Identity) []byte {
	b := make([]byte, 0, len(prefix)+len(id.Guild)+1+len(id.User))
	b = append(b, prefix...)
	b = append(b, id.Guild...)
	b = append(b, 0)
	b = append(b, id.User...)
	return b
}

func load(txn *badger.Txn, k []byte) (entry, bool, error) {
	var e entry
	item, err := txn.Get(k)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return e, false, nil
		}
		return e, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return e, false, fmt.Errorf("couldn't decode ledger entry %q: %w", k, err)
	}
	return e, true, nil
}

func store(txn *badger.Txn, k []byte, e *entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		// Should be impossible.
		panic(fmt.Errorf("kvledger: couldn't encode entry %#v: %w", e, err))
	}
	return txn.Set(k, b)
}

// update runs f on the entry for id inside a read-write transaction, retrying
// on conflicts with concurrent writers. f reports whether to write the entry
// back. If the identity has no entry, f is not called and update returns
// ledger.ErrNotFound.
func (l *Ledger) update(ctx context.Context, id ledger.Identity, f func(e *entry) bool) error {
	k := key(id)
	for {
		err := l.db.Update(func(txn *badger.Txn) error {
			e, ok, err := load(txn, k)
			if err != nil {
				return err
			}
			if !ok {
				return ledger.ErrNotFound
			}
			if !f(&e) {
				return nil
			}
			return store(txn, k, &e)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Get returns the record for an identity.
func (l *Ledger) Get(ctx context.Context, id ledger.Identity) (ledger.Record, bool, error) {
	var e entry
	var ok bool
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		e, ok, err = load(txn, key(id))
		return err
	})
	if err != nil {
		return ledger.Record{}, false, fmt.Errorf("couldn't read ledger record: %w", err)
	}
	if !ok {
		return ledger.Record{}, false, nil
	}
	r := ledger.Record{
		Identity: id,
		Bricks:   e.Bricks,
		Burning:  e.Burning,
		ClaimDay: e.ClaimDay,
	}
	if e.LastSlap != 0 {
		r.LastSlap = time.Unix(e.LastSlap, 0)
	}
	return r, true, nil
}

// Create inserts a new record.
func (l *Ledger) Create(ctx context.Context, id ledger.Identity, bricks int) error {
	if bricks < 0 {
		return fmt.Errorf("couldn't create ledger record with %d bricks", bricks)
	}
	k := key(id)
	for {
		err := l.db.Update(func(txn *badger.Txn) error {
			_, ok, err := load(txn, k)
			if err != nil {
				return err
			}
			if ok {
				return ledger.ErrExists
			}
			return store(txn, k, &entry{Bricks: bricks})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Adjust adds delta to an identity's bricks, clamped to [0, cap].
func (l *Ledger) Adjust(ctx context.Context, id ledger.Identity, delta, cap int) (int, error) {
	var n int
	err := l.update(ctx, id, func(e *entry) bool {
		e.Bricks = ledger.Clamp(e.Bricks+delta, cap)
		n = e.Bricks
		return true
	})
	return n, err
}

// Spend removes one brick and records the slap time.
func (l *Ledger) Spend(ctx context.Context, id ledger.Identity, now time.Time) (int, bool, error) {
	var n int
	var ok bool
	err := l.update(ctx, id, func(e *entry) bool {
		if e.Bricks <= 0 {
			return false
		}
		e.Bricks--
		e.LastSlap = now.Unix()
		n, ok = e.Bricks, true
		return true
	})
	if errors.Is(err, ledger.ErrNotFound) {
		return 0, false, nil
	}
	return n, ok, err
}

// SetBurning sets the burning flag.
func (l *Ledger) SetBurning(ctx context.Context, id ledger.Identity, burning bool) error {
	return l.update(ctx, id, func(e *entry) bool {
		e.Burning = burning
		return true
	})
}

// SetLastSlap sets the last slap time.
func (l *Ledger) SetLastSlap(ctx context.Context, id ledger.Identity, t time.Time) error {
	return l.update(ctx, id, func(e *entry) bool {
		e.LastSlap = 0
		if !t.IsZero() {
			e.LastSlap = t.Unix()
		}
		return true
	})
}

// SetClaimDay sets the last claim day.
func (l *Ledger) SetClaimDay(ctx context.Context, id ledger.Identity, day string) error {
	return l.update(ctx, id, func(e *entry) bool {
		e.ClaimDay = day
		return true
	})
}

// ResetBurning clears every burning flag.
func (l *Ledger) ResetBurning(ctx context.Context) error {
	// Collect the keys first so that a large ledger doesn't need to fit in
	// one transaction.
	var keys [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var e entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("couldn't decode ledger entry %q: %w", item.Key(), err)
			}
			if e.Burning {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("couldn't scan ledger: %w", err)
	}
	for _, k := range keys {
		err := l.db.Update(func(txn *badger.Txn) error {
			e, ok, err := load(txn, k)
			if err != nil || !ok {
				return err
			}
			e.Burning = false
			return store(txn, k, &e)
		})
		if err != nil {
			return fmt.Errorf("couldn't reset burning: %w", err)
		}
	}
	return nil
}
