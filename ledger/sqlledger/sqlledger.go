// Package sqlledger implements a brick ledger in an SQLite database.
package sqlledger

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/brick/ledger"
)

// Ledger is a ledger.Store backed by an SQLite database.
type Ledger struct {
	db *sqlitex.Pool
}

var _ ledger.Store = (*Ledger)(nil)

//go:embed schema.sql
var schemaSQL string

// Open returns a ledger within the given database, creating its table if
// needed. The db must remain open for the lifetime of the ledger.
func Open(ctx context.Context, db *sqlitex.Pool) (*Ledger, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Init creates the ledger table in an SQLite database if it does not exist.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get connection from pool: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize ledger schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecommendedPrep is an [sqlitex.ConnPrepareFunc] that sets options
// recommended for a ledger.
func RecommendedPrep(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			return fmt.Errorf("couldn't run %s: %w", p, err)
		}
	}
	return nil
}

func named(id ledger.Identity) map[string]any {
	return map[string]any{
		":guild": id.Guild,
		":user":  id.User,
	}
}

// Get returns the record for an identity.
func (l *Ledger) Get(ctx context.Context, id ledger.Identity) (ledger.Record, bool, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return ledger.Record{}, false, fmt.Errorf("couldn't get connection to read ledger: %w", err)
	}
	const sel = `SELECT bricks, burning, last_slap, claim_day FROM brick WHERE guild=:guild AND user=:user`
	var r ledger.Record
	var ok bool
	opts := sqlitex.ExecOptions{
		Named: named(id),
		ResultFunc: func(st *sqlite.Stmt) error {
			ok = true
			r = ledger.Record{
				Identity: id,
				Bricks:   st.ColumnInt(0),
				Burning:  st.ColumnInt64(1) != 0,
				LastSlap: unixtime(st.ColumnInt64(2)),
				ClaimDay: st.ColumnText(3),
			}
			return nil
		},
	}
	if err := sqlitex.Execute(conn, sel, &opts); err != nil {
		return ledger.Record{}, false, fmt.Errorf("couldn't read ledger record: %w", err)
	}
	return r, ok, nil
}

// Create inserts a new record.
func (l *Ledger) Create(ctx context.Context, id ledger.Identity, bricks int) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to create ledger record: %w", err)
	}
	const ins = `INSERT INTO brick (guild, user, bricks) VALUES (:guild, :user, :bricks) ON CONFLICT DO NOTHING`
	args := named(id)
	args[":bricks"] = bricks
	if err := sqlitex.Execute(conn, ins, &sqlitex.ExecOptions{Named: args}); err != nil {
		return fmt.Errorf("couldn't create ledger record: %w", err)
	}
	if conn.Changes() == 0 {
		return ledger.ErrExists
	}
	return nil
}

// Adjust adds delta to an identity's bricks, clamped to [0, cap].
func (l *Ledger) Adjust(ctx context.Context, id ledger.Identity, delta, cap int) (int, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get connection to adjust bricks: %w", err)
	}
	const upd = `UPDATE brick SET bricks = MAX(0, MIN(:cap, bricks + :delta)) WHERE guild=:guild AND user=:user RETURNING bricks`
	args := named(id)
	args[":cap"] = cap
	args[":delta"] = delta
	n, ok := 0, false
	opts := sqlitex.ExecOptions{
		Named: args,
		ResultFunc: func(st *sqlite.Stmt) error {
			n, ok = st.ColumnInt(0), true
			return nil
		},
	}
	if err := sqlitex.Execute(conn, upd, &opts); err != nil {
		return 0, fmt.Errorf("couldn't adjust bricks: %w", err)
	}
	if !ok {
		return 0, ledger.ErrNotFound
	}
	return n, nil
}

// Spend removes one brick and records the slap time.
func (l *Ledger) Spend(ctx context.Context, id ledger.Identity, now time.Time) (int, bool, error) {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return 0, false, fmt.Errorf("couldn't get connection to spend brick: %w", err)
	}
	const upd = `UPDATE brick SET bricks = bricks - 1, last_slap = :now WHERE guild=:guild AND user=:user AND bricks > 0 RETURNING bricks`
	args := named(id)
	args[":now"] = now.Unix()
	n, ok := 0, false
	opts := sqlitex.ExecOptions{
		Named: args,
		ResultFunc: func(st *sqlite.Stmt) error {
			n, ok = st.ColumnInt(0), true
			return nil
		},
	}
	if err := sqlitex.Execute(conn, upd, &opts); err != nil {
		return 0, false, fmt.Errorf("couldn't spend brick: %w", err)
	}
	return n, ok, nil
}

// SetBurning sets the burning flag.
func (l *Ledger) SetBurning(ctx context.Context, id ledger.Identity, burning bool) error {
	return l.set(ctx, id, `UPDATE brick SET burning=:v WHERE guild=:guild AND user=:user`, burning)
}

// SetLastSlap sets the last slap time.
func (l *Ledger) SetLastSlap(ctx context.Context, id ledger.Identity, t time.Time) error {
	var v int64
	if !t.IsZero() {
		v = t.Unix()
	}
	return l.set(ctx, id, `UPDATE brick SET last_slap=:v WHERE guild=:guild AND user=:user`, v)
}

// SetClaimDay sets the last claim day.
func (l *Ledger) SetClaimDay(ctx context.Context, id ledger.Identity, day string) error {
	return l.set(ctx, id, `UPDATE brick SET claim_day=:v WHERE guild=:guild AND user=:user`, day)
}

func (l *Ledger) set(ctx context.Context, id ledger.Identity, upd string, v any) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to update ledger: %w", err)
	}
	args := named(id)
	args[":v"] = v
	if err := sqlitex.Execute(conn, upd, &sqlitex.ExecOptions{Named: args}); err != nil {
		return fmt.Errorf("couldn't update ledger: %w", err)
	}
	if conn.Changes() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// ResetBurning clears every burning flag.
func (l *Ledger) ResetBurning(ctx context.Context) error {
	conn, err := l.db.Take(ctx)
	defer l.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get connection to reset burning: %w", err)
	}
	if err := sqlitex.Execute(conn, `UPDATE brick SET burning=0 WHERE burning!=0`, nil); err != nil {
		return fmt.Errorf("couldn't reset burning: %w", err)
	}
	return nil
}

func unixtime(s int64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0)
}
