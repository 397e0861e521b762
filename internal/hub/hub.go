// Package hub provides the per-room serialization boundary. Each live room
// has exactly one Hub whose goroutine owns that room's queue.Store; every
// mutation and snapshot runs inside that goroutine, in submission order.
// Rooms never share a hub, so unrelated rooms proceed fully in parallel.
package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/trackvote/internal/queue"
	"github.com/trackvote/pkg/errs"
)

type ChangeKind string

const (
	ChangeTrackAdded ChangeKind = "track_added"
	ChangeVoteCast   ChangeKind = "vote_cast"
	ChangeAdvanced   ChangeKind = "queue_advanced"
	ChangeRoomClosed ChangeKind = "room_closed"
)

// Notifier receives a change signal after every successful mutation. Seq is
// the room's monotonic change counter; clients use it to detect missed
// signals and re-fetch the snapshot.
type Notifier interface {
	Notify(roomID uuid.UUID, kind ChangeKind, seq uint64)
}

// Op runs inside the hub goroutine with exclusive access to the store.
type Op func(s *queue.Store) (any, error)

type request struct {
	op     Op
	kind   ChangeKind
	mutate bool
	reply  chan response
}

type response struct {
	value any
	err   error
}

type Hub struct {
	roomID   uuid.UUID
	store    *queue.Store
	notifier Notifier

	requests chan request
	done     chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	seq      uint64
}

func newHub(roomID uuid.UUID, store *queue.Store, notifier Notifier) *Hub {
	h := &Hub{
		roomID:   roomID,
		store:    store,
		notifier: notifier,
		requests: make(chan request, 64),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// run is the room's single writer. It executes requests one at a time in
// arrival order and emits a change signal after each successful mutation. A
// failed request is reported to its caller only; the loop moves on.
func (h *Hub) run() {
	defer close(h.done)

	for req := range h.requests {
		value, err := req.op(h.store)
		if err == nil && req.mutate && value != nil {
			h.seq++
			if h.notifier != nil {
				h.notifier.Notify(h.roomID, req.kind, h.seq)
			}
		}
		req.reply <- response{value: value, err: err}
	}
}

// Do submits a mutation. Once accepted it always executes, even if the
// caller's context expires first; in that case the result is discarded and
// the context error returned. An op that succeeds with a nil value is a
// no-op (advancing an empty queue) and produces no change signal.
func (h *Hub) Do(ctx context.Context, kind ChangeKind, op Op) (any, error) {
	return h.submit(ctx, request{op: op, kind: kind, mutate: true, reply: make(chan response, 1)})
}

// View submits a read-only operation. It is serialized with mutations, so
// the result is always a fully applied state, never a partial one.
func (h *Hub) View(ctx context.Context, op Op) (any, error) {
	return h.submit(ctx, request{op: op, reply: make(chan response, 1)})
}

func (h *Hub) submit(ctx context.Context, req request) (any, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errs.Closed("room is closed")
	}
	h.inflight.Add(1)
	h.mu.Unlock()
	defer h.inflight.Done()

	h.requests <- req

	select {
	case resp := <-req.reply:
		return resp.value, resp.err
	case <-ctx.Done():
		// The operation still lands in serialized order; only the
		// response delivery is abandoned.
		return nil, ctx.Err()
	}
}

// Close transitions the hub to its terminal state. New submissions fail
// with a closed error immediately; requests already accepted are drained
// before the goroutine stops, so no mutation is dropped mid-flight.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.inflight.Wait()
	close(h.requests)
	<-h.done
}
