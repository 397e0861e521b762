package hub

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/trackvote/internal/queue"
	"github.com/trackvote/pkg/errs"
	"github.com/trackvote/pkg/models"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []ChangeKind
	seqs  []uint64
}

func (n *recordingNotifier) Notify(roomID uuid.UUID, kind ChangeKind, seq uint64) {
	n.mu.Lock()
	n.kinds = append(n.kinds, kind)
	n.seqs = append(n.seqs, seq)
	n.mu.Unlock()
}

func TestMutationsAreSerializedInSubmissionOrder(t *testing.T) {
	m := NewManager(&recordingNotifier{}, 10)
	roomID := uuid.New()
	h := m.Open(roomID)
	defer m.Close(roomID)

	user := uuid.New()
	ctx := context.Background()

	// Add must land before the vote that targets it, because the hub
	// executes in submission order.
	if _, err := h.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
		return s.Add("t1", "Song A", "Artist A", user)
	}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := h.Do(ctx, ChangeVoteCast, func(s *queue.Store) (any, error) {
		return s.CastVote("t1", user, 1)
	}); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	v, err := h.View(ctx, func(s *queue.Store) (any, error) {
		return s.Snapshot(), nil
	})
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	snap := v.([]models.QueueEntry)
	if len(snap) != 1 || snap[0].Score != 1 {
		t.Fatalf("expected one item at score 1, got %+v", snap)
	}
}

func TestConcurrentVotesConverge(t *testing.T) {
	m := NewManager(&recordingNotifier{}, 10)
	roomID := uuid.New()
	h := m.Open(roomID)
	defer m.Close(roomID)

	ctx := context.Background()
	if _, err := h.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
		return s.Add("t1", "Song A", "Artist A", uuid.New())
	}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	const voters = 32
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		user := uuid.New()
		go func() {
			defer wg.Done()
			// Each voter flips once; only the final value may count.
			h.Do(ctx, ChangeVoteCast, func(s *queue.Store) (any, error) {
				return s.CastVote("t1", user, -1)
			})
			h.Do(ctx, ChangeVoteCast, func(s *queue.Store) (any, error) {
				return s.CastVote("t1", user, 1)
			})
		}()
	}
	wg.Wait()

	v, err := h.View(ctx, func(s *queue.Store) (any, error) {
		return s.Snapshot(), nil
	})
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	snap := v.([]models.QueueEntry)
	if snap[0].Score != voters {
		t.Fatalf("expected converged score %d, got %d", voters, snap[0].Score)
	}
}

func TestFailedMutationDoesNotBlockLaterOnes(t *testing.T) {
	m := NewManager(&recordingNotifier{}, 10)
	roomID := uuid.New()
	h := m.Open(roomID)
	defer m.Close(roomID)

	ctx := context.Background()
	user := uuid.New()

	add := func(trackID string) error {
		_, err := h.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
			return s.Add(trackID, "Song "+trackID, "Artist", user)
		})
		return err
	}

	if err := add("t1"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := add("t1"); errs.KindOf(err) != errs.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := add("t2"); err != nil {
		t.Fatalf("add after failed mutation should succeed: %v", err)
	}
}

func TestNotifierSeesEverySuccessfulMutationInOrder(t *testing.T) {
	n := &recordingNotifier{}
	m := NewManager(n, 10)
	roomID := uuid.New()
	h := m.Open(roomID)

	ctx := context.Background()
	user := uuid.New()

	h.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
		return s.Add("t1", "Song A", "Artist A", user)
	})
	h.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
		return s.Add("t1", "Song A", "Artist A", user) // conflict, no signal
	})
	h.Do(ctx, ChangeVoteCast, func(s *queue.Store) (any, error) {
		return s.CastVote("t1", user, 1)
	})
	m.Close(roomID)

	n.mu.Lock()
	defer n.mu.Unlock()
	want := []ChangeKind{ChangeTrackAdded, ChangeVoteCast}
	if len(n.kinds) != len(want) {
		t.Fatalf("expected %d signals, got %v", len(want), n.kinds)
	}
	for i := range want {
		if n.kinds[i] != want[i] {
			t.Fatalf("signal %d: expected %s, got %s", i, want[i], n.kinds[i])
		}
		if n.seqs[i] != uint64(i+1) {
			t.Fatalf("signal %d: expected seq %d, got %d", i, i+1, n.seqs[i])
		}
	}
}

func TestCloseDrainsThenRejects(t *testing.T) {
	m := NewManager(&recordingNotifier{}, 10)
	roomID := uuid.New()
	h := m.Open(roomID)

	ctx := context.Background()
	user := uuid.New()

	const adds = 16
	var wg sync.WaitGroup
	errsCh := make(chan error, adds)
	for i := 0; i < adds; i++ {
		wg.Add(1)
		trackID := uuid.New().String()
		go func() {
			defer wg.Done()
			_, err := h.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
				return s.Add(trackID, "Song", "Artist", user)
			})
			errsCh <- err
		}()
	}
	wg.Wait()
	m.Close(roomID)
	close(errsCh)

	// Every accepted mutation completed with a definitive result.
	for err := range errsCh {
		if err != nil && errs.KindOf(err) != errs.KindClosed {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if _, err := h.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
		return s.Add("late", "Song", "Artist", user)
	}); errs.KindOf(err) != errs.KindClosed {
		t.Fatalf("expected closed error after close, got %v", err)
	}

	if _, err := m.Get(roomID); errs.KindOf(err) != errs.KindClosed {
		t.Fatalf("expected closed error from manager, got %v", err)
	}
}

func TestRoomsDoNotShareState(t *testing.T) {
	m := NewManager(&recordingNotifier{}, 10)
	a, b := uuid.New(), uuid.New()
	ha, hb := m.Open(a), m.Open(b)
	defer m.CloseAll()

	ctx := context.Background()
	user := uuid.New()

	if _, err := ha.Do(ctx, ChangeTrackAdded, func(s *queue.Store) (any, error) {
		return s.Add("t1", "Song A", "Artist A", user)
	}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	v, err := hb.View(ctx, func(s *queue.Store) (any, error) {
		return s.Snapshot(), nil
	})
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap := v.([]models.QueueEntry); len(snap) != 0 {
		t.Fatalf("room b should be empty, got %+v", snap)
	}
}
