package player

import (
	"context"
	"math/rand/v2"
	"sync"
)

// advanceBudget bounds next-song resolution. Shuffle can keep landing on
// the same failed entry, so without a hard cap resolution might never
// terminate. Not configurable.
const advanceBudget = 10

// Queue is the ordered song list of one session: insertion order is
// playback order unless shuffle is on. The cursor always indexes a
// valid entry while the queue is non-empty.
type Queue struct {
	loader Loader

	mu      sync.Mutex
	songs   []*Song
	pos     int
	shuffle bool
}

func NewQueue(loader Loader) *Queue {
	return &Queue{loader: loader}
}

// EnqueueBatch inserts one page of lookup results. A single-item batch
// goes right after the cursor ("play next"); multi-item batches are
// appended in order. Private entries are dropped silently.
func (q *Queue) EnqueueBatch(songs []*Song) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(songs) == 1 {
		s := songs[0]
		if s.Private() {
			return
		}
		at := q.pos + 1
		if len(q.songs) == 0 {
			at = 0
		} else if at > len(q.songs) {
			at = len(q.songs)
		}
		q.songs = append(q.songs, nil)
		copy(q.songs[at+1:], q.songs[at:])
		q.songs[at] = s
		return
	}
	for _, s := range songs {
		if !s.Private() {
			q.songs = append(q.songs, s)
		}
	}
}

// Advance resolves the next playable song, or nil when none exists.
//
// With shuffle on, a fresh pass picks a uniformly random position (the
// current one included) instead of incrementing. A failed entry costs
// one unit of the retry budget and moves on; an unloaded entry is
// loaded and re-checked in place without consuming budget.
func (q *Queue) Advance(ctx context.Context, increment bool) *Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 {
		return nil
	}

	checkLoaded := false
	for tries := 0; tries <= advanceBudget; {
		if q.shuffle && !checkLoaded {
			q.pos = rand.IntN(len(q.songs))
			increment = false
		}
		if increment {
			q.pos++
		}
		if q.pos >= len(q.songs) {
			q.pos = 0
		}

		song := q.songs[q.pos]
		switch {
		case song.Failed():
			tries++
			increment = true
			checkLoaded = false
		case !song.Loaded():
			// Load without holding the queue lock; the entry is then
			// re-checked at the same position so a load that failed is
			// caught by the error branch above.
			q.mu.Unlock()
			song.Load(ctx, q.loader)
			q.mu.Lock()
			// the queue may have been cleared while the load was in flight
			if len(q.songs) == 0 {
				return nil
			}
			increment = false
			checkLoaded = true
		default:
			return song
		}
	}
	return nil
}

// FindByID looks an entry up by its sequence number. With load set, an
// unloaded match is resolved first; with setCursor set, the cursor only
// moves to the match if it ends up loaded and playable.
func (q *Queue) FindByID(ctx context.Context, id int64, load, setCursor bool) *Song {
	q.mu.Lock()
	for _, s := range q.songs {
		if s.ID != id {
			continue
		}
		if load && s.State() == LoadStateUnloaded {
			q.mu.Unlock()
			s.Load(ctx, q.loader)
			q.mu.Lock()
		}
		if setCursor && s.Loaded() {
			// positions may have shifted while loading
			for i, cur := range q.songs {
				if cur.ID == id {
					q.pos = i
					break
				}
			}
		}
		q.mu.Unlock()
		return s
	}
	q.mu.Unlock()
	return nil
}

// PositionOf returns the positional index of an entry, or false when the
// ID is unknown.
func (q *Queue) PositionOf(id int64) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, s := range q.songs {
		if s.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Clear empties the queue and resets cursor and shuffle.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.songs = nil
	q.pos = 0
	q.shuffle = false
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.songs)
}

func (q *Queue) Pos() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pos
}

// Current returns the entry under the cursor, or nil for an empty queue.
func (q *Queue) Current() *Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pos >= 0 && q.pos < len(q.songs) {
		return q.songs[q.pos]
	}
	return nil
}

func (q *Queue) Shuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffle
}

func (q *Queue) ToggleShuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffle = !q.shuffle
	return q.shuffle
}

// Snapshot copies the current song list for rendering.
func (q *Queue) Snapshot() []*Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Song, len(q.songs))
	copy(out, q.songs)
	return out
}
