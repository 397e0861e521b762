package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trackvote/pkg/errs"
)

func TestCreateAllocatesUniqueCodes(t *testing.T) {
	r := New(6)
	owner := uuid.New()
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		room, err := r.Create("Party", owner, false)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if len(room.Code) != 6 {
			t.Fatalf("expected 6-char code, got %q", room.Code)
		}
		if seen[room.Code] {
			t.Fatalf("duplicate code %q", room.Code)
		}
		seen[room.Code] = true
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	r := New(6)
	_, err := r.Create("   ", uuid.New(), false)
	if errs.KindOf(err) != errs.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateFailsWhenCodeSpaceExhausted(t *testing.T) {
	// One-character codes over a 36-symbol alphabet saturate quickly; once
	// they do, create must fail with a conflict instead of spinning.
	r := New(1)
	owner := uuid.New()

	var sawConflict bool
	for i := 0; i < 200; i++ {
		_, err := r.Create("Party", owner, false)
		if err != nil {
			if errs.KindOf(err) != errs.KindConflict {
				t.Fatalf("expected conflict, got %v", err)
			}
			sawConflict = true
			break
		}
	}
	if !sawConflict {
		t.Fatal("expected code allocation to eventually fail with conflict")
	}
}

func TestResolveByCodeIsCaseInsensitive(t *testing.T) {
	r := New(6)
	room, err := r.Create("Party", uuid.New(), false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := r.ResolveByCode(strings.ToLower(room.Code))
	if err != nil {
		t.Fatalf("lowercase resolve failed: %v", err)
	}
	if got.ID != room.ID {
		t.Fatalf("resolved wrong room: %s != %s", got.ID, room.ID)
	}
}

func TestResolveUnknownRoom(t *testing.T) {
	r := New(6)
	if _, err := r.ResolveByCode("NOPE12"); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := r.ResolveByID(uuid.New()); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMembershipUpsertIsIdempotent(t *testing.T) {
	r := New(6)
	user := uuid.New()
	room, err := r.Create("Party", uuid.New(), false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := r.RecordMembership(room.ID, user); err != nil {
			t.Fatalf("membership upsert %d failed: %v", i, err)
		}
	}
	if !r.IsMember(room.ID, user) {
		t.Fatal("expected user to be a member")
	}
}

func TestCloseFreesCodeForReuse(t *testing.T) {
	r := New(6)
	room, err := r.Create("Party", uuid.New(), false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	closed, err := r.Close(room.ID)
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if closed.Active {
		t.Fatal("closed room still marked active")
	}

	if _, err := r.ResolveByCode(room.Code); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected closed room to be unresolvable, got %v", err)
	}

	// The code is free again for a future room.
	if err := r.Restore(*room); err != nil {
		t.Fatalf("expected code to be reusable after close: %v", err)
	}
}

func TestSweepIdleClosesStaleRooms(t *testing.T) {
	r := New(6)
	stale, err := r.Create("Stale", uuid.New(), false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	fresh, err := r.Create("Fresh", uuid.New(), false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Age the first room, keep the second active.
	r.mu.Lock()
	r.lastActive[stale.ID] = time.Now().Add(-time.Hour)
	r.mu.Unlock()
	r.Touch(fresh.ID)

	closed := r.SweepIdle(30 * time.Minute)
	if len(closed) != 1 || closed[0].ID != stale.ID {
		t.Fatalf("expected only the stale room to close, got %+v", closed)
	}
	if _, err := r.ResolveByID(fresh.ID); err != nil {
		t.Fatalf("fresh room should survive sweep: %v", err)
	}
}
