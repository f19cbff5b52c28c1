// Package ledgertest provides integration testing facilities for ledger stores.
package ledgertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zephyrtronium/brick/ledger"
)

// Test runs the integration test suite against stores produced by new.
//
// If a store cannot be created without error, new should call t.Fatal.
func Test(ctx context.Context, t *testing.T, new func(context.Context) ledger.Store) {
	t.Run("create", testCreate(ctx, new(ctx)))
	t.Run("adjust", testAdjust(ctx, new(ctx)))
	t.Run("spend", testSpend(ctx, new(ctx)))
	t.Run("fields", testFields(ctx, new(ctx)))
	t.Run("missing", testMissing(ctx, new(ctx)))
	t.Run("reset", testReset(ctx, new(ctx)))
	t.Run("guilds", testGuilds(ctx, new(ctx)))
}

var (
	bocchi = ledger.Identity{User: "bocchi", Guild: "kessoku"}
	ryou   = ledger.Identity{User: "ryou", Guild: "kessoku"}
	kita   = ledger.Identity{User: "kita", Guild: "kessoku"}
	// elsewhere is bocchi in another guild.
	elsewhere = ledger.Identity{User: "bocchi", Guild: "starry"}
)

func get(ctx context.Context, t *testing.T, s ledger.Store, id ledger.Identity) ledger.Record {
	t.Helper()
	r, ok, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("couldn't get %v: %v", id, err)
	}
	if !ok {
		t.Fatalf("no record for %v", id)
	}
	return r
}

func testCreate(ctx context.Context, s ledger.Store) func(t *testing.T) {
	return func(t *testing.T) {
		if err := s.Create(ctx, bocchi, 2); err != nil {
			t.Fatalf("couldn't create: %v", err)
		}
		want := ledger.Record{Identity: bocchi, Bricks: 2}
		if diff := cmp.Diff(want, get(ctx, t, s, bocchi)); diff != "" {
			t.Errorf("wrong record after create (-want +got):\n%s", diff)
		}
		if err := s.Create(ctx, bocchi, 1); !errors.Is(err, ledger.ErrExists) {
			t.Errorf("second create: want ErrExists, got %v", err)
		}
		if got := get(ctx, t, s, bocchi).Bricks; got != 2 {
			t.Errorf("second create modified record: want 2 bricks, got %d", got)
		}
	}
}

func testAdjust(ctx context.Context, s ledger.Store) func(t *testing.T) {
	return func(t *testing.T) {
		if err := s.Create(ctx, bocchi, 0); err != nil {
			t.Fatalf("couldn't create: %v", err)
		}
		cases := []struct {
			delta, cap int
			want       int
		}{
			{1, 3, 1},
			{1, 3, 2},
			{5, 3, 3},
			{-1, 3, 2},
			{-10, 3, 0},
			{-1, 3, 0},
			{2, 1, 1},
		}
		for _, c := range cases {
			n, err := s.Adjust(ctx, bocchi, c.delta, c.cap)
			if err != nil {
				t.Fatalf("couldn't adjust by %d cap %d: %v", c.delta, c.cap, err)
			}
			if n != c.want {
				t.Errorf("wrong result adjusting by %d cap %d: want %d, got %d", c.delta, c.cap, c.want, n)
			}
			if got := get(ctx, t, s, bocchi).Bricks; got != c.want {
				t.Errorf("wrong stored bricks adjusting by %d cap %d: want %d, got %d", c.delta, c.cap, c.want, got)
			}
		}
	}
}

func testSpend(ctx context.Context, s ledger.Store) func(t *testing.T) {
	return func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		if err := s.Create(ctx, bocchi, 2); err != nil {
			t.Fatalf("couldn't create: %v", err)
		}
		n, ok, err := s.Spend(ctx, bocchi, now)
		if err != nil || !ok || n != 1 {
			t.Errorf("first spend: want (1, true, nil), got (%d, %t, %v)", n, ok, err)
		}
		want := ledger.Record{Identity: bocchi, Bricks: 1, LastSlap: now}
		if diff := cmp.Diff(want, get(ctx, t, s, bocchi)); diff != "" {
			t.Errorf("wrong record after spend (-want +got):\n%s", diff)
		}
		later := now.Add(time.Minute)
		n, ok, err = s.Spend(ctx, bocchi, later)
		if err != nil || !ok || n != 0 {
			t.Errorf("second spend: want (0, true, nil), got (%d, %t, %v)", n, ok, err)
		}
		n, ok, err = s.Spend(ctx, bocchi, later.Add(time.Minute))
		if err != nil || ok || n != 0 {
			t.Errorf("empty spend: want (0, false, nil), got (%d, %t, %v)", n, ok, err)
		}
		want = ledger.Record{Identity: bocchi, Bricks: 0, LastSlap: later}
		if diff := cmp.Diff(want, get(ctx, t, s, bocchi)); diff != "" {
			t.Errorf("empty spend modified record (-want +got):\n%s", diff)
		}
		n, ok, err = s.Spend(ctx, ryou, now)
		if err != nil || ok || n != 0 {
			t.Errorf("spend without record: want (0, false, nil), got (%d, %t, %v)", n, ok, err)
		}
	}
}

func testFields(ctx context.Context, s ledger.Store) func(t *testing.T) {
	return func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		if err := s.Create(ctx, kita, 1); err != nil {
			t.Fatalf("couldn't create: %v", err)
		}
		if err := s.SetBurning(ctx, kita, true); err != nil {
			t.Errorf("couldn't set burning: %v", err)
		}
		if err := s.SetLastSlap(ctx, kita, now); err != nil {
			t.Errorf("couldn't set last slap: %v", err)
		}
		if err := s.SetClaimDay(ctx, kita, "2024-11-20"); err != nil {
			t.Errorf("couldn't set claim day: %v", err)
		}
		want := ledger.Record{Identity: kita, Bricks: 1, Burning: true, LastSlap: now, ClaimDay: "2024-11-20"}
		if diff := cmp.Diff(want, get(ctx, t, s, kita)); diff != "" {
			t.Errorf("wrong record after setting fields (-want +got):\n%s", diff)
		}
		if err := s.SetBurning(ctx, kita, false); err != nil {
			t.Errorf("couldn't clear burning: %v", err)
		}
		if err := s.SetLastSlap(ctx, kita, time.Time{}); err != nil {
			t.Errorf("couldn't clear last slap: %v", err)
		}
		want = ledger.Record{Identity: kita, Bricks: 1, ClaimDay: "2024-11-20"}
		if diff := cmp.Diff(want, get(ctx, t, s, kita)); diff != "" {
			t.Errorf("wrong record after clearing fields (-want +got):\n%s", diff)
		}
	}
}

func testMissing(ctx context.Context, s ledger.Store) func(t *testing.T) {
	return func(t *testing.T) {
		r, ok, err := s.Get(ctx, ryou)
		if err != nil {
			t.Errorf("get on missing record: %v", err)
		}
		if ok || r != (ledger.Record{}) {
			t.Errorf("get on missing record: want zero and false, got %+v and %t", r, ok)
		}
		if _, err := s.Adjust(ctx, ryou, 1, 1); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("adjust on missing record: want ErrNotFound, got %v", err)
		}
		if err := s.SetBurning(ctx, ryou, true); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("set burning on missing record: want ErrNotFound, got %v", err)
		}
		if err := s.SetLastSlap(ctx, ryou, time.Unix(1, 0)); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("set last slap on missing record: want ErrNotFound, got %v", err)
		}
		if err := s.SetClaimDay(ctx, ryou, "2024-11-20"); !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("set claim day on missing record: want ErrNotFound, got %v", err)
		}
		if _, ok, _ := s.Get(ctx, ryou); ok {
			t.Errorf("failed updates created a record")
		}
	}
}

func testReset(ctx context.Context, s ledger.Store) func(t *testing.T) {
	return func(t *testing.T) {
		for _, id := range []ledger.Identity{bocchi, ryou, kita, elsewhere} {
			if err := s.Create(ctx, id, 0); err != nil {
				t.Fatalf("couldn't create %v: %v", id, err)
			}
		}
		for _, id := range []ledger.Identity{bocchi, kita, elsewhere} {
			if err := s.SetBurning(ctx, id, true); err != nil {
				t.Fatalf("couldn't set burning on %v: %v", id, err)
			}
		}
		if err := s.ResetBurning(ctx); err != nil {
			t.Fatalf("couldn't reset: %v", err)
		}
		for _, id := range []ledger.Identity{bocchi, ryou, kita, elsewhere} {
			if get(ctx, t, s, id).Burning {
				t.Errorf("%v still burning after reset", id)
			}
		}
	}
}

func testGuilds(ctx context.Context, s ledger.Store) func(t *testing.T) {
	return func(t *testing.T) {
		if err := s.Create(ctx, bocchi, 1); err != nil {
			t.Fatalf("couldn't create: %v", err)
		}
		if err := s.Create(ctx, elsewhere, 0); err != nil {
			t.Fatalf("couldn't create same user in another guild: %v", err)
		}
		if _, err := s.Adjust(ctx, elsewhere, 3, 3); err != nil {
			t.Fatalf("couldn't adjust: %v", err)
		}
		if got := get(ctx, t, s, bocchi).Bricks; got != 1 {
			t.Errorf("bricks crossed guilds: want 1, got %d", got)
		}
		if got := get(ctx, t, s, elsewhere).Bricks; got != 3 {
			t.Errorf("wrong bricks in other guild: want 3, got %d", got)
		}
	}
}
