// Package ws is the realtime notification gateway: it tracks the live
// subscribers of each room and fans change signals out to them. Events are
// signal-only; clients re-fetch the authoritative snapshot over HTTP.
package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trackvote/internal/hub"
	"github.com/trackvote/pkg/errs"
)

// Event tells a client that its room changed. Seq is the room's change
// counter; a gap means the client missed a signal and should re-fetch.
type Event struct {
	Type      string    `json:"type"`
	RoomID    uuid.UUID `json:"room_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer bounds each subscriber's pending signals. A subscriber
// that falls further behind loses signals rather than delaying publishers;
// the seq gap tells it to re-sync.
const subscriberBuffer = 16

type Gateway struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[uuid.UUID]chan Event
	live  func(roomID uuid.UUID) bool
	log   *slog.Logger
}

// New creates a gateway. live reports whether a room currently accepts
// subscribers; subscribing to anything else fails with not found.
func New(live func(roomID uuid.UUID) bool, log *slog.Logger) *Gateway {
	return &Gateway{
		rooms: make(map[uuid.UUID]map[uuid.UUID]chan Event),
		live:  live,
		log:   log,
	}
}

// Subscribe registers a listener for a live room and returns its event
// channel plus the handle used to unsubscribe.
func (g *Gateway) Subscribe(roomID uuid.UUID) (uuid.UUID, <-chan Event, error) {
	if g.live != nil && !g.live(roomID) {
		return uuid.Nil, nil, errs.NotFound("room not found")
	}

	subID := uuid.New()
	ch := make(chan Event, subscriberBuffer)

	g.mu.Lock()
	if g.rooms[roomID] == nil {
		g.rooms[roomID] = make(map[uuid.UUID]chan Event)
	}
	g.rooms[roomID][subID] = ch
	g.mu.Unlock()

	return subID, ch, nil
}

// Unsubscribe removes a listener. Idempotent; called on every disconnect
// path.
func (g *Gateway) Unsubscribe(roomID, subID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	subs, ok := g.rooms[roomID]
	if !ok {
		return
	}
	if ch, ok := subs[subID]; ok {
		delete(subs, subID)
		close(ch)
	}
	if len(subs) == 0 {
		delete(g.rooms, roomID)
	}
}

// Publish delivers the event to every current subscriber of the room. The
// send never blocks: a subscriber with a full buffer is skipped. Within a
// room, subscribers that keep up observe events in publish order.
func (g *Gateway) Publish(roomID uuid.UUID, event Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for subID, ch := range g.rooms[roomID] {
		select {
		case ch <- event:
		default:
			g.log.Debug("dropping event for slow subscriber",
				"room_id", roomID, "subscriber_id", subID, "seq", event.Seq)
		}
	}
}

// Notify implements hub.Notifier, turning serialized mutation results into
// client signals.
func (g *Gateway) Notify(roomID uuid.UUID, kind hub.ChangeKind, seq uint64) {
	g.Publish(roomID, Event{
		Type:      string(kind),
		RoomID:    roomID,
		Seq:       seq,
		Timestamp: time.Now(),
	})
}

// CloseRoom sends a final room_closed signal and disconnects every
// subscriber of the room.
func (g *Gateway) CloseRoom(roomID uuid.UUID) {
	g.mu.Lock()
	subs := g.rooms[roomID]
	delete(g.rooms, roomID)
	g.mu.Unlock()

	final := Event{Type: string(hub.ChangeRoomClosed), RoomID: roomID, Timestamp: time.Now()}
	for _, ch := range subs {
		select {
		case ch <- final:
		default:
		}
		close(ch)
	}
}

// SubscriberCount reports the number of live listeners for a room.
func (g *Gateway) SubscriberCount(roomID uuid.UUID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[roomID])
}
