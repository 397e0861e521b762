package room

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trackvote/internal/registry"
	"github.com/trackvote/internal/ws"
	"github.com/trackvote/pkg/errs"
)

// newTestService wires the in-memory engine without persistence, caching
// or the relay, the way a single-instance deployment without MySQL runs.
func newTestService() (*Service, *ws.Gateway) {
	reg := registry.New(6)
	gateway := ws.New(func(id uuid.UUID) bool {
		_, err := reg.ResolveByID(id)
		return err == nil
	}, slog.Default())
	svc := NewService(reg, gateway, nil, nil, nil, 10, slog.Default())
	return svc, gateway
}

func TestCollaborativeQueueScenario(t *testing.T) {
	svc, gateway := newTestService()
	ctx := context.Background()

	owner := uuid.New().String()
	u1 := uuid.New().String()
	u2 := uuid.New().String()

	room, err := svc.CreateRoom(ctx, owner, "Party", false)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	if len(room.Code) != 6 {
		t.Fatalf("expected a 6-char join code, got %q", room.Code)
	}

	if _, err := svc.JoinRoomByCode(ctx, room.Code, u1); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := svc.JoinRoomByCode(ctx, room.Code, u2); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	// Watch change signals as a connected client would.
	subID, eventsCh, err := gateway.Subscribe(room.ID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer gateway.Unsubscribe(room.ID, subID)

	roomID := room.ID.String()
	if _, err := svc.AddTrack(ctx, roomID, "t1", "Song A", "Artist A", u1); err != nil {
		t.Fatalf("add t1 failed: %v", err)
	}
	if _, err := svc.AddTrack(ctx, roomID, "t2", "Song B", "Artist B", u2); err != nil {
		t.Fatalf("add t2 failed: %v", err)
	}
	if _, err := svc.CastVote(ctx, roomID, "t2", u1, 1); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if _, err := svc.CastVote(ctx, roomID, "t2", u2, 1); err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if _, err := svc.CastVote(ctx, roomID, "t1", u1, 1); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	snap, err := svc.Queue(ctx, roomID)
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if len(snap) != 2 || snap[0].TrackID != "t2" || snap[1].TrackID != "t1" {
		t.Fatalf("expected [t2 t1], got %+v", snap)
	}
	if snap[0].Score != 2 || snap[1].Score != 1 {
		t.Fatalf("expected scores [2 1], got [%d %d]", snap[0].Score, snap[1].Score)
	}

	next, err := svc.AdvanceQueue(ctx, roomID, owner)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if next == nil || next.TrackID != "t2" {
		t.Fatalf("expected advance to return t2, got %+v", next)
	}

	snap, err = svc.Queue(ctx, roomID)
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if len(snap) != 1 || snap[0].TrackID != "t1" {
		t.Fatalf("expected only t1 to remain, got %+v", snap)
	}

	history, err := svc.History(ctx, roomID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0].TrackID != "t2" {
		t.Fatalf("expected history [t2], got %+v", history)
	}

	// The subscriber saw one signal per successful mutation, in order.
	wantSeq := uint64(0)
	for i := 0; i < 6; i++ {
		select {
		case ev := <-eventsCh:
			wantSeq++
			if ev.Seq != wantSeq {
				t.Fatalf("expected seq %d, got %d", wantSeq, ev.Seq)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing change signal %d", i+1)
		}
	}
}

func TestAdvanceOnEmptyRoomIsNotAnError(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	owner := uuid.New().String()
	room, err := svc.CreateRoom(ctx, owner, "Party", false)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		entry, err := svc.AdvanceQueue(ctx, room.ID.String(), owner)
		if err != nil {
			t.Fatalf("advance on empty queue errored: %v", err)
		}
		if entry != nil {
			t.Fatalf("expected empty result, got %+v", entry)
		}
	}
}

func TestDuplicateTrackLeavesVotesUntouched(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	owner := uuid.New().String()
	room, err := svc.CreateRoom(ctx, owner, "Party", false)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	roomID := room.ID.String()

	if _, err := svc.AddTrack(ctx, roomID, "t1", "Song A", "Artist A", owner); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.CastVote(ctx, roomID, "t1", owner, 1); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	_, err = svc.AddTrack(ctx, roomID, "t1", "Song A", "Artist A", owner)
	if errs.KindOf(err) != errs.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	snap, err := svc.Queue(ctx, roomID)
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if len(snap) != 1 || snap[0].Score != 1 {
		t.Fatalf("existing item changed by failed add: %+v", snap)
	}
}

func TestMembersOnlyPolicy(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	owner := uuid.New().String()
	stranger := uuid.New().String()

	room, err := svc.CreateRoom(ctx, owner, "Private Party", true)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	roomID := room.ID.String()

	_, err = svc.AddTrack(ctx, roomID, "t1", "Song A", "Artist A", stranger)
	if errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("expected unauthorized for non-member, got %v", err)
	}

	if _, err := svc.JoinRoomByCode(ctx, room.Code, stranger); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if _, err := svc.AddTrack(ctx, roomID, "t1", "Song A", "Artist A", stranger); err != nil {
		t.Fatalf("add after joining failed: %v", err)
	}
}

func TestCloseRoomSemantics(t *testing.T) {
	svc, gateway := newTestService()
	ctx := context.Background()

	owner := uuid.New().String()
	other := uuid.New().String()

	room, err := svc.CreateRoom(ctx, owner, "Party", false)
	if err != nil {
		t.Fatalf("create room failed: %v", err)
	}
	roomID := room.ID.String()

	if err := svc.CloseRoom(ctx, roomID, other); errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("expected unauthorized for non-owner close, got %v", err)
	}
	if err := svc.CloseRoom(ctx, roomID, owner); err != nil {
		t.Fatalf("owner close failed: %v", err)
	}

	if _, err := svc.AddTrack(ctx, roomID, "t1", "Song", "Artist", owner); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected not found after close, got %v", err)
	}
	if _, err := svc.JoinRoomByCode(ctx, room.Code, other); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected code to stop resolving, got %v", err)
	}
	if _, _, err := gateway.Subscribe(room.ID); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected subscribe to fail on closed room, got %v", err)
	}
}

func TestRoomsMutateIndependently(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ownerA := uuid.New().String()
	ownerB := uuid.New().String()

	roomA, err := svc.CreateRoom(ctx, ownerA, "Room A", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	roomB, err := svc.CreateRoom(ctx, ownerB, "Room B", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.AddTrack(ctx, roomA.ID.String(), "t1", "Song", "Artist", ownerA); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	snapB, err := svc.Queue(ctx, roomB.ID.String())
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if len(snapB) != 0 {
		t.Fatalf("room B should be untouched, got %+v", snapB)
	}
}
