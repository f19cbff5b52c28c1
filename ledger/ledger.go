// Package ledger defines the durable per-user, per-guild brick records and the
// storage interface that backends implement.
//
// A record is identified by the pair of a user and the guild in which they
// play. Bricks never cross guilds.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by operations that require an existing record when
// the identity has none.
var ErrNotFound = errors.New("no ledger record")

// ErrExists is returned by Create when the identity already has a record.
var ErrExists = errors.New("ledger record already exists")

// Identity is a user within a guild.
type Identity struct {
	User  string
	Guild string
}

// Record is a ledger entry.
type Record struct {
	Identity
	// Bricks is the number of bricks held. It is always in [0, max] for the
	// max of the game which wrote it.
	Bricks int
	// LastSlap is the time of the most recent slap attempt, with second
	// precision. The zero time means never.
	LastSlap time.Time
	// Burning indicates a crafting session was active when last written.
	Burning bool
	// ClaimDay is the day key of the last successful daily claim, or empty.
	ClaimDay string
}

// Store is durable storage of ledger records.
// Every method touches at most one record, except ResetBurning.
// Methods which modify an existing record return ErrNotFound if there is none.
type Store interface {
	// Get returns the record for an identity. If there is none, the result is
	// the zero record with ok false and a nil error.
	Get(ctx context.Context, id Identity) (rec Record, ok bool, err error)
	// Create inserts a new record with the given brick count.
	// If the identity already has a record, it returns ErrExists.
	Create(ctx context.Context, id Identity, bricks int) error
	// Adjust adds delta to an identity's bricks, clamping the result to
	// [0, cap], and returns the new count.
	Adjust(ctx context.Context, id Identity, delta, cap int) (int, error)
	// Spend removes one brick and records the slap time in a single write.
	// If the identity has no record or holds no bricks, nothing changes and
	// ok is false.
	Spend(ctx context.Context, id Identity, now time.Time) (left int, ok bool, err error)
	// SetBurning sets the burning flag.
	SetBurning(ctx context.Context, id Identity, burning bool) error
	// SetLastSlap sets the last slap time.
	SetLastSlap(ctx context.Context, id Identity, t time.Time) error
	// SetClaimDay sets the last claim day.
	SetClaimDay(ctx context.Context, id Identity, day string) error
	// ResetBurning clears the burning flag on every record.
	ResetBurning(ctx context.Context) error
}

// Clamp limits n to [0, cap].
func Clamp(n, cap int) int {
	return max(0, min(n, cap))
}
