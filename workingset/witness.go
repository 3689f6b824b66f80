package workingset

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// HintKind tags a Witness entry so zk-side parsing never has to guess
// whether an absent key is "empty value" or "missing key".
type HintKind int

const (
	HintUnknown HintKind = iota
	HintValueHit
	HintValueMiss
	HintNodeHit
	HintNodeMiss
)

// Hint is one recorded or replayed storage access.
type Hint struct {
	Kind HintKind
	Data []byte
}

// ErrWitnessExhausted is proof-fatal: the guest tried to read past the last
// recorded hint, meaning the witness does not match the DA inputs it is
// being replayed against.
var ErrWitnessExhausted = errors.New("workingset: witness exhausted")

// Witness is the ordered list of hints a WorkingSet appends to on every L0
// fall-through (native/recording mode) and consumes FIFO from (zk/replay
// mode). Grounded on the Rust ArrayWitness: an atomic next-read cursor plus
// a mutex-guarded backing slice, so concurrent AddHint calls from unrelated
// goroutines (there are none within a slot, but tests exercise this) never
// race the cursor.
type Witness struct {
	mu        sync.Mutex
	hints     []Hint
	next      atomic.Uint64
	recording bool
}

// NewWitness returns an empty witness in recording (native) mode.
func NewWitness() *Witness {
	return &Witness{recording: true}
}

// NewReplayWitness returns a witness pre-loaded with hints, in replay (zk)
// mode: AddHint is refused and GetHint consumes hints FIFO.
func NewReplayWitness(hints []Hint) *Witness {
	return &Witness{hints: append([]Hint(nil), hints...)}
}

// Recording reports whether this witness accepts AddHint (native mode).
func (w *Witness) Recording() bool { return w.recording }

// AddHint appends a hint. Valid only in recording mode; per spec this is a
// native-mode-only operation, so calling it on a replay witness is a
// programmer error and panics rather than silently corrupting the trace.
func (w *Witness) AddHint(h Hint) {
	if !w.recording {
		panic("workingset: AddHint called on a replay witness")
	}
	w.mu.Lock()
	w.hints = append(w.hints, h)
	w.mu.Unlock()
}

// GetHint consumes the next hint in strict FIFO order. Any deviation from
// the order hints were added in native mode is a fatal proof-verification
// failure, surfaced here as ErrWitnessExhausted once the cursor runs past
// the recorded hints (a short replay) or, for the guest, simply a different
// Hint than the reader expected (a reordering) -- the latter is caught by
// the caller comparing the Hint's Kind/Data against what it needed.
func (w *Witness) GetHint() (Hint, error) {
	idx := w.next.Add(1) - 1
	w.mu.Lock()
	defer w.mu.Unlock()
	if int(idx) >= len(w.hints) {
		return Hint{}, ErrWitnessExhausted
	}
	return w.hints[idx], nil
}

// Len reports the total number of hints recorded so far.
func (w *Witness) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hints)
}

// Hints returns a copy of every hint recorded so far, for serializing the
// witness as the zk guest's public input.
func (w *Witness) Hints() []Hint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Hint(nil), w.hints...)
}

// Merge appends other's unread hints to w, used to fold a blob-scoped
// witness into the slot-scoped one at end-of-blob.
func (w *Witness) Merge(other *Witness) {
	other.mu.Lock()
	unread := append([]Hint(nil), other.hints[other.next.Load():]...)
	other.mu.Unlock()

	w.mu.Lock()
	w.hints = append(w.hints, unread...)
	w.mu.Unlock()
}
