package strategy

import "math/rand"

// Experience is one (state, action, reward, nextState, terminal) tuple.
// Immutable after insertion; consumed only by batch replay.
type Experience struct {
	StateKey     string
	Action       QAction
	Reward       float64
	NextStateKey string
	Terminal     bool
}

// replayBuffer is a bounded FIFO of experiences. When full, the oldest entry
// is overwritten.
type replayBuffer struct {
	entries []Experience
	next    int
	size    int
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &replayBuffer{entries: make([]Experience, capacity)}
}

// Append inserts one experience, evicting the oldest when at capacity.
func (b *replayBuffer) Append(exp Experience) {
	b.entries[b.next] = exp
	b.next = (b.next + 1) % len(b.entries)
	if b.size < len(b.entries) {
		b.size++
	}
}

// Len returns the number of stored experiences.
func (b *replayBuffer) Len() int {
	return b.size
}

// Sample draws n experiences uniformly at random (with replacement when n
// exceeds the stored count).
func (b *replayBuffer) Sample(rng *rand.Rand, n int) []Experience {
	if b.size == 0 || n <= 0 {
		return nil
	}
	out := make([]Experience, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.entries[rng.Intn(b.size)])
	}
	return out
}
