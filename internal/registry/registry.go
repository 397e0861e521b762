// Package registry owns room lifecycle and membership. It is the only
// structure shared across rooms; its mutex is never held while a room hub
// executes a mutation.
package registry

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trackvote/pkg/errs"
	"github.com/trackvote/pkg/models"
)

const (
	defaultCodeLength = 6
	codeCharset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts      = 5
)

type memberKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

type Registry struct {
	mu         sync.RWMutex
	rooms      map[uuid.UUID]*models.Room
	byCode     map[string]uuid.UUID
	members    map[memberKey]time.Time
	lastActive map[uuid.UUID]time.Time
	codeLength int
}

func New(codeLength int) *Registry {
	if codeLength <= 0 {
		codeLength = defaultCodeLength
	}
	return &Registry{
		rooms:      make(map[uuid.UUID]*models.Room),
		byCode:     make(map[string]uuid.UUID),
		members:    make(map[memberKey]time.Time),
		lastActive: make(map[uuid.UUID]time.Time),
		codeLength: codeLength,
	}
}

// Create registers a new room under a freshly allocated join code. Code
// generation retries on collision a bounded number of times and fails with
// a conflict once the attempts are spent.
func (r *Registry) Create(name string, ownerID uuid.UUID, membersOnly bool) (*models.Room, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errs.InvalidInput("room name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.allocateCodeLocked()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	room := &models.Room{
		ID:          uuid.New(),
		Code:        code,
		OwnerID:     ownerID,
		Name:        name,
		MembersOnly: membersOnly,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.rooms[room.ID] = room
	r.byCode[code] = room.ID
	r.members[memberKey{room.ID, ownerID}] = now
	r.lastActive[room.ID] = now

	return cloned(room), nil
}

// Restore re-registers a persisted room after a restart. Collisions are a
// storage-consistency bug, not a retry case, so they surface as conflicts.
func (r *Registry) Restore(room models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCode[room.Code]; exists {
		return errs.Conflict("join code already registered")
	}
	stored := room
	r.rooms[stored.ID] = &stored
	r.byCode[stored.Code] = stored.ID
	r.lastActive[stored.ID] = time.Now()
	return nil
}

func (r *Registry) allocateCodeLocked() (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := randomCode(r.codeLength)
		if _, taken := r.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", errs.Conflict("join code space exhausted")
}

func randomCode(length int) string {
	code := make([]byte, length)
	for i := range code {
		code[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(code)
}

// ResolveByCode looks up a live room by join code, case-insensitively.
func (r *Registry) ResolveByCode(code string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, errs.NotFound("room not found")
	}
	return cloned(r.rooms[id]), nil
}

// ResolveByID looks up a live room by id.
func (r *Registry) ResolveByID(id uuid.UUID) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, errs.NotFound("room not found")
	}
	return cloned(room), nil
}

// RecordMembership upserts a (room, user) membership. Joining twice keeps
// the original join time.
func (r *Registry) RecordMembership(roomID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; !ok {
		return errs.NotFound("room not found")
	}
	key := memberKey{roomID, userID}
	if _, ok := r.members[key]; !ok {
		r.members[key] = time.Now()
	}
	return nil
}

// IsMember reports whether the user has joined the room.
func (r *Registry) IsMember(roomID, userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[memberKey{roomID, userID}]
	return ok
}

// Touch records mutation activity for the idle sweep. Activity on a room
// that has already closed is ignored.
func (r *Registry) Touch(roomID uuid.UUID) {
	r.mu.Lock()
	if _, ok := r.rooms[roomID]; ok {
		r.lastActive[roomID] = time.Now()
	}
	r.mu.Unlock()
}

// Close removes a room from the live indexes and frees its join code for
// future rooms. Resolution of the room fails from this point on.
func (r *Registry) Close(roomID uuid.UUID) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked(roomID)
}

func (r *Registry) closeLocked(roomID uuid.UUID) (*models.Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, errs.NotFound("room not found")
	}

	delete(r.rooms, roomID)
	delete(r.byCode, room.Code)
	delete(r.lastActive, roomID)
	for key := range r.members {
		if key.roomID == roomID {
			delete(r.members, key)
		}
	}

	room.Active = false
	room.UpdatedAt = time.Now()
	return cloned(room), nil
}

// SweepIdle closes every room with no recorded activity since the cutoff
// and returns them so the caller can drain their hubs.
func (r *Registry) SweepIdle(olderThan time.Duration) []*models.Room {
	cutoff := time.Now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()

	var closed []*models.Room
	for id, last := range r.lastActive {
		if last.Before(cutoff) {
			if room, err := r.closeLocked(id); err == nil {
				closed = append(closed, room)
			}
		}
	}
	return closed
}

// LiveRooms returns a copy of every live room.
func (r *Registry) LiveRooms() []*models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, cloned(room))
	}
	return out
}

func cloned(room *models.Room) *models.Room {
	c := *room
	return &c
}
