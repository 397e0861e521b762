package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trackvote/internal/hub"
	"github.com/trackvote/internal/queue"
	"github.com/trackvote/internal/registry"
	"github.com/trackvote/internal/ws"
	"github.com/trackvote/pkg/database"
	"github.com/trackvote/pkg/errs"
	"github.com/trackvote/pkg/events"
	"github.com/trackvote/pkg/models"
	"github.com/trackvote/pkg/redis"
)

const relayBuffer = 256

// Service composes the registry, the per-room hubs, the notification
// gateway and the optional durability/relay layers into the operations the
// HTTP surface exposes. All queue mutations flow through the owning room's
// hub; nothing here touches queue state directly.
type Service struct {
	registry *registry.Registry
	hubs     *hub.Manager
	gateway  *ws.Gateway
	db       *database.MySQLDB   // nil when persistence is off
	cache    *redis.RoomCache    // nil when redis caching is off
	relay    *events.KafkaClient // nil when the relay is off
	relayCh  chan events.ChangeSignal
	log      *slog.Logger
}

func NewService(
	reg *registry.Registry,
	gateway *ws.Gateway,
	db *database.MySQLDB,
	cache *redis.RoomCache,
	relay *events.KafkaClient,
	historyLimit int,
	log *slog.Logger,
) *Service {
	s := &Service{
		registry: reg,
		gateway:  gateway,
		db:       db,
		cache:    cache,
		relay:    relay,
		relayCh:  make(chan events.ChangeSignal, relayBuffer),
		log:      log,
	}
	s.hubs = hub.NewManager(s, historyLimit)
	return s
}

// Notify implements hub.Notifier. It runs on the hub goroutine, so
// everything here must be non-blocking: local fan-out drops on slow
// subscribers, the Kafka publish is queued to a relay goroutine.
func (s *Service) Notify(roomID uuid.UUID, kind hub.ChangeKind, seq uint64) {
	s.registry.Touch(roomID)
	s.gateway.Notify(roomID, kind, seq)

	if s.relay != nil {
		signal := events.ChangeSignal{
			Type:      string(kind),
			RoomID:    roomID,
			Seq:       seq,
			Timestamp: time.Now(),
		}
		select {
		case s.relayCh <- signal:
		default:
			s.log.Warn("relay buffer full, dropping signal", "room_id", roomID, "seq", seq)
		}
	}
}

// RunRelay pumps outbound signals to Kafka and fans inbound signals from
// other instances out to local subscribers. Blocks until ctx is cancelled.
func (s *Service) RunRelay(ctx context.Context) {
	if s.relay == nil {
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case signal := <-s.relayCh:
				if err := s.relay.PublishChange(ctx, signal); err != nil {
					s.log.Warn("failed to publish change signal", "room_id", signal.RoomID, "error", err)
				}
			}
		}
	}()

	err := s.relay.Consume(ctx, func(signal events.ChangeSignal) error {
		s.gateway.Publish(signal.RoomID, ws.Event{
			Type:      signal.Type,
			RoomID:    signal.RoomID,
			Seq:       signal.Seq,
			Timestamp: signal.Timestamp,
		})
		return nil
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("relay consumer stopped", "error", err)
	}
}

// CreateRoom registers a room, opens its hub and, when persistence is
// configured, writes it through to storage before it becomes reachable.
func (s *Service) CreateRoom(ctx context.Context, ownerID string, name string, membersOnly bool) (*models.Room, error) {
	owner, err := parseID(ownerID, "owner id")
	if err != nil {
		return nil, err
	}

	room, err := s.registry.Create(name, owner, membersOnly)
	if err != nil {
		return nil, err
	}

	if s.db != nil {
		if err := s.db.CreateRoom(room); err != nil {
			s.registry.Close(room.ID)
			return nil, errs.Unavailable("failed to persist room", err)
		}
		member := &models.Member{RoomID: room.ID, UserID: owner, JoinedAt: room.CreatedAt}
		if err := s.db.UpsertMember(member); err != nil {
			s.log.Warn("failed to persist owner membership", "room_id", room.ID, "error", err)
		}
	}

	s.hubs.Open(room.ID)
	s.cacheRoom(ctx, room)

	s.log.Info("room created", "room_id", room.ID, "code", room.Code, "owner_id", owner)
	return room, nil
}

// GetRoom resolves a room by id, trying the cache first.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	id, err := parseID(roomID, "room id")
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if room, err := s.cache.Get(ctx, roomID); err == nil && room.Active {
			return room, nil
		}
	}

	room, err := s.registry.ResolveByID(id)
	if err != nil {
		return nil, err
	}

	s.cacheRoom(ctx, room)
	return room, nil
}

// JoinRoomByCode resolves a room by its join code and records the caller's
// membership.
func (s *Service) JoinRoomByCode(ctx context.Context, code string, userID string) (*models.Room, error) {
	user, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}

	room, err := s.registry.ResolveByCode(code)
	if err != nil {
		return nil, err
	}

	if err := s.registry.RecordMembership(room.ID, user); err != nil {
		return nil, err
	}
	s.persistMembership(room.ID, user)
	s.cacheRoom(ctx, room)

	return room, nil
}

// AddTrack queues a track through the room's hub and persists it
// write-behind.
func (s *Service) AddTrack(ctx context.Context, roomID, trackID, trackName, artist, userID string) (*models.QueueEntry, error) {
	room, user, err := s.authorizeMutation(roomID, userID)
	if err != nil {
		return nil, err
	}

	h, err := s.hubs.Get(room.ID)
	if err != nil {
		return nil, err
	}

	v, err := h.Do(ctx, hub.ChangeTrackAdded, func(q *queue.Store) (any, error) {
		return q.Add(trackID, trackName, artist, user)
	})
	if err != nil {
		return nil, err
	}
	entry := v.(models.QueueEntry)

	if s.db != nil {
		row := &models.QueueItem{
			ID:          entry.ID,
			RoomID:      room.ID,
			TrackID:     entry.TrackID,
			TrackName:   entry.TrackName,
			Artist:      entry.Artist,
			SubmittedBy: entry.SubmittedBy,
			Seq:         entry.Seq,
			CreatedAt:   entry.SubmittedAt,
			UpdatedAt:   entry.SubmittedAt,
		}
		if err := s.db.AddQueueItem(row); err != nil {
			s.log.Warn("failed to persist queue item", "room_id", room.ID, "track_id", trackID, "error", err)
		}
	}

	return &entry, nil
}

// CastVote upserts the caller's vote on a queued track.
func (s *Service) CastVote(ctx context.Context, roomID, trackID, userID string, value int) (*models.QueueEntry, error) {
	room, user, err := s.authorizeMutation(roomID, userID)
	if err != nil {
		return nil, err
	}

	h, err := s.hubs.Get(room.ID)
	if err != nil {
		return nil, err
	}

	v, err := h.Do(ctx, hub.ChangeVoteCast, func(q *queue.Store) (any, error) {
		return q.CastVote(trackID, user, value)
	})
	if err != nil {
		return nil, err
	}
	entry := v.(models.QueueEntry)

	if s.db != nil {
		now := time.Now()
		vote := &models.Vote{QueueItemID: entry.ID, UserID: user, Value: value, CreatedAt: now, UpdatedAt: now}
		if err := s.db.UpsertVote(vote); err != nil {
			s.log.Warn("failed to persist vote", "room_id", room.ID, "track_id", trackID, "error", err)
		}
	}

	return &entry, nil
}

// AdvanceQueue pops the top-ranked track. A nil entry with a nil error
// means the queue was empty; callers must distinguish that from failure.
func (s *Service) AdvanceQueue(ctx context.Context, roomID, userID string) (*models.QueueEntry, error) {
	room, _, err := s.authorizeMutation(roomID, userID)
	if err != nil {
		return nil, err
	}

	h, err := s.hubs.Get(room.ID)
	if err != nil {
		return nil, err
	}

	v, err := h.Do(ctx, hub.ChangeAdvanced, func(q *queue.Store) (any, error) {
		entry, ok := q.Advance()
		if !ok {
			return nil, nil
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	entry := v.(models.QueueEntry)

	if s.db != nil {
		if err := s.db.MarkPlayed(entry.ID); err != nil {
			s.log.Warn("failed to persist advance", "room_id", room.ID, "track_id", entry.TrackID, "error", err)
		}
	}

	return &entry, nil
}

// Queue returns the room's ranked snapshot.
func (s *Service) Queue(ctx context.Context, roomID string) ([]models.QueueEntry, error) {
	id, err := parseID(roomID, "room id")
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.ResolveByID(id); err != nil {
		return nil, err
	}

	h, err := s.hubs.Get(id)
	if err != nil {
		return nil, err
	}

	v, err := h.View(ctx, func(q *queue.Store) (any, error) {
		return q.Snapshot(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.QueueEntry), nil
}

// History returns the room's play history, oldest first.
func (s *Service) History(ctx context.Context, roomID string) ([]models.PlayedTrack, error) {
	id, err := parseID(roomID, "room id")
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.ResolveByID(id); err != nil {
		return nil, err
	}

	h, err := s.hubs.Get(id)
	if err != nil {
		return nil, err
	}

	v, err := h.View(ctx, func(q *queue.Store) (any, error) {
		return q.History(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.PlayedTrack), nil
}

// CloseRoom shuts a room down: registry first so nothing new resolves,
// then the hub drain, then subscriber disconnect.
func (s *Service) CloseRoom(ctx context.Context, roomID, userID string) error {
	id, err := parseID(roomID, "room id")
	if err != nil {
		return err
	}
	user, err := parseID(userID, "user id")
	if err != nil {
		return err
	}

	room, err := s.registry.ResolveByID(id)
	if err != nil {
		return err
	}
	if room.OwnerID != user {
		return errs.Unauthorized("only the room owner can close it")
	}

	closed, err := s.registry.Close(id)
	if err != nil {
		return err
	}
	s.teardown(ctx, closed)

	s.log.Info("room closed", "room_id", id, "owner_id", user)
	return nil
}

// SweepIdleRooms runs the configurable inactivity horizon. Blocks until
// ctx is cancelled; a zero ttl disables it.
func (s *Service) SweepIdleRooms(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, room := range s.registry.SweepIdle(ttl) {
				s.teardown(ctx, room)
				s.log.Info("idle room closed", "room_id", room.ID, "code", room.Code)
			}
		}
	}
}

// Restore reloads all active rooms, members, queue items and votes from
// storage after a restart. No-op without persistence.
func (s *Service) Restore(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	rooms, err := s.db.ActiveRooms()
	if err != nil {
		return errs.Unavailable("failed to load rooms", err)
	}

	for _, room := range rooms {
		if err := s.registry.Restore(room); err != nil {
			s.log.Warn("skipping room on restore", "room_id", room.ID, "error", err)
			continue
		}

		members, err := s.db.Members(room.ID)
		if err != nil {
			return errs.Unavailable("failed to load members", err)
		}
		for _, m := range members {
			s.registry.RecordMembership(m.RoomID, m.UserID)
		}

		items, err := s.db.ActiveQueue(room.ID)
		if err != nil {
			return errs.Unavailable("failed to load queue", err)
		}
		itemIDs := make([]uuid.UUID, len(items))
		for i, item := range items {
			itemIDs[i] = item.ID
		}
		votes, err := s.db.VotesForItems(itemIDs)
		if err != nil {
			return errs.Unavailable("failed to load votes", err)
		}

		store := queue.New(s.historyLimit())
		for _, item := range items {
			store.Restore(item, votes[item.ID])
		}
		s.hubs.OpenWith(room.ID, store)
	}

	s.log.Info("state restored", "rooms", len(rooms))
	return nil
}

// Shutdown drains every hub.
func (s *Service) Shutdown() {
	s.hubs.CloseAll()
}

func (s *Service) teardown(ctx context.Context, room *models.Room) {
	s.hubs.Close(room.ID)
	s.gateway.CloseRoom(room.ID)

	if s.cache != nil {
		if err := s.cache.Delete(ctx, room.ID.String()); err != nil {
			s.log.Warn("failed to evict cached room", "room_id", room.ID, "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.CloseRoom(room.ID); err != nil {
			s.log.Warn("failed to persist room close", "room_id", room.ID, "error", err)
		}
	}
	if s.relay != nil {
		signal := events.ChangeSignal{Type: string(hub.ChangeRoomClosed), RoomID: room.ID, Timestamp: time.Now()}
		select {
		case s.relayCh <- signal:
		default:
		}
	}
}

// authorizeMutation resolves the room and applies the membership policy:
// open rooms implicitly admit any authenticated caller, members-only rooms
// require a prior join.
func (s *Service) authorizeMutation(roomID, userID string) (*models.Room, uuid.UUID, error) {
	id, err := parseID(roomID, "room id")
	if err != nil {
		return nil, uuid.Nil, err
	}
	user, err := parseID(userID, "user id")
	if err != nil {
		return nil, uuid.Nil, err
	}

	room, err := s.registry.ResolveByID(id)
	if err != nil {
		return nil, uuid.Nil, err
	}

	if room.MembersOnly {
		if !s.registry.IsMember(room.ID, user) {
			return nil, uuid.Nil, errs.Unauthorized("room requires joining before queueing or voting")
		}
	} else if !s.registry.IsMember(room.ID, user) {
		// Open policy: the first mutation doubles as a join.
		if err := s.registry.RecordMembership(room.ID, user); err == nil {
			s.persistMembership(room.ID, user)
		}
	}

	return room, user, nil
}

func (s *Service) persistMembership(roomID, userID uuid.UUID) {
	if s.db == nil {
		return
	}
	member := &models.Member{RoomID: roomID, UserID: userID, JoinedAt: time.Now()}
	if err := s.db.UpsertMember(member); err != nil {
		s.log.Warn("failed to persist membership", "room_id", roomID, "user_id", userID, "error", err)
	}
}

func (s *Service) cacheRoom(ctx context.Context, room *models.Room) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, room); err != nil {
		s.log.Warn("failed to cache room", "room_id", room.ID, "error", err)
	}
}

func (s *Service) historyLimit() int {
	return s.hubs.HistoryLimit()
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.InvalidInput("invalid " + what)
	}
	return id, nil
}
