package queue

import "github.com/trackvote/pkg/models"

// history is a fixed-capacity ring of played tracks. When full, the oldest
// entry is overwritten. It is only ever touched by the owning store's
// caller, so it carries no lock of its own.
type history struct {
	buf   []models.PlayedTrack
	head  int
	count int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]models.PlayedTrack, capacity)}
}

func (h *history) push(t models.PlayedTrack) {
	idx := (h.head + h.count) % len(h.buf)
	h.buf[idx] = t
	if h.count == len(h.buf) {
		h.head = (h.head + 1) % len(h.buf)
	} else {
		h.count++
	}
}

// snapshot returns a copy of all entries, oldest first.
func (h *history) snapshot() []models.PlayedTrack {
	out := make([]models.PlayedTrack, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}
