// Package queue holds the per-room queue state: queued tracks, per-user
// votes and the bounded play history. A Store is not safe for concurrent
// use; every room's store is owned by that room's session hub, which
// serializes all access to it.
package queue

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trackvote/pkg/errs"
	"github.com/trackvote/pkg/models"
)

type item struct {
	id          uuid.UUID
	trackID     string
	trackName   string
	artist      string
	submittedBy uuid.UUID
	seq         uint64
	submittedAt time.Time
	votes       map[uuid.UUID]int
}

func (it *item) score() int {
	total := 0
	for _, v := range it.votes {
		total += v
	}
	return total
}

func (it *item) entry() models.QueueEntry {
	return models.QueueEntry{
		ID:          it.id,
		TrackID:     it.trackID,
		TrackName:   it.trackName,
		Artist:      it.artist,
		SubmittedBy: it.submittedBy,
		Seq:         it.seq,
		Score:       it.score(),
		SubmittedAt: it.submittedAt,
	}
}

// Store is one room's active queue plus its play history.
type Store struct {
	items   []*item
	byTrack map[string]*item
	seq     uint64
	played  *history
}

func New(historyLimit int) *Store {
	return &Store{
		byTrack: make(map[string]*item),
		played:  newHistory(historyLimit),
	}
}

// Add inserts a new track with an empty vote map and the next sequence
// number. A track id already in the active queue is a conflict; ids of
// already-played tracks may be added again.
func (s *Store) Add(trackID, trackName, artist string, submittedBy uuid.UUID) (models.QueueEntry, error) {
	if trackID == "" || trackName == "" {
		return models.QueueEntry{}, errs.InvalidInput("track_id and track_name are required")
	}
	if _, exists := s.byTrack[trackID]; exists {
		return models.QueueEntry{}, errs.Conflict("track already queued")
	}

	s.seq++
	it := &item{
		id:          uuid.New(),
		trackID:     trackID,
		trackName:   trackName,
		artist:      artist,
		submittedBy: submittedBy,
		seq:         s.seq,
		submittedAt: time.Now(),
		votes:       make(map[uuid.UUID]int),
	}
	s.items = append(s.items, it)
	s.byTrack[trackID] = it

	return it.entry(), nil
}

// Restore re-inserts a persisted item with its votes, used when rebuilding
// room state after a restart. The sequence counter is bumped so new adds
// keep sorting after restored ones.
func (s *Store) Restore(row models.QueueItem, votes map[uuid.UUID]int) {
	if votes == nil {
		votes = make(map[uuid.UUID]int)
	}
	it := &item{
		id:          row.ID,
		trackID:     row.TrackID,
		trackName:   row.TrackName,
		artist:      row.Artist,
		submittedBy: row.SubmittedBy,
		seq:         row.Seq,
		submittedAt: row.CreatedAt,
		votes:       votes,
	}
	s.items = append(s.items, it)
	s.byTrack[row.TrackID] = it
	if row.Seq > s.seq {
		s.seq = row.Seq
	}
}

// CastVote upserts the user's vote on a track. Repeating the same value is
// a no-op; the opposite value flips the vote. Returns the entry as it
// stands after the vote.
func (s *Store) CastVote(trackID string, userID uuid.UUID, value int) (models.QueueEntry, error) {
	if value != 1 && value != -1 {
		return models.QueueEntry{}, errs.InvalidInput("vote value must be 1 or -1")
	}
	it, ok := s.byTrack[trackID]
	if !ok {
		return models.QueueEntry{}, errs.NotFound("track not in queue")
	}

	it.votes[userID] = value
	return it.entry(), nil
}

// Snapshot returns the active queue ranked by descending score, with the
// lower sequence number winning ties. The order is recomputed from the
// vote maps on every call; it is a pure function of (score, seq) and never
// depends on vote arrival order.
func (s *Store) Snapshot() []models.QueueEntry {
	entries := make([]models.QueueEntry, len(s.items))
	for i, it := range s.items {
		entries[i] = it.entry()
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries
}

// Advance removes the top-ranked item, records it in the play history and
// returns it. On an empty queue it returns ok=false; that is a normal
// outcome, not an error, and repeating it stays empty.
func (s *Store) Advance() (models.QueueEntry, bool) {
	if len(s.items) == 0 {
		return models.QueueEntry{}, false
	}

	top := s.items[0]
	for _, it := range s.items[1:] {
		ts, is := top.score(), it.score()
		if is > ts || (is == ts && it.seq < top.seq) {
			top = it
		}
	}

	for i, it := range s.items {
		if it == top {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	delete(s.byTrack, top.trackID)

	s.played.push(models.PlayedTrack{
		TrackID:   top.trackID,
		TrackName: top.trackName,
		Artist:    top.artist,
		Score:     top.score(),
		PlayedAt:  time.Now(),
	})

	return top.entry(), true
}

// History returns the play history, oldest first.
func (s *Store) History() []models.PlayedTrack {
	return s.played.snapshot()
}

// Len returns the number of active items.
func (s *Store) Len() int {
	return len(s.items)
}
