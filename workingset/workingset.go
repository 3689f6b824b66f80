// Package workingset implements the L3 working set and witness: the
// per-slot cache that mediates all module storage access, buffering writes,
// deduplicating reads, and producing a replayable witness.
//
// The checkpoint/revert journal is adapted from the teacher's
// core/state/journal.go snapshot-id-and-entry-list pattern, generalized
// from typed account/storage changes to a single byte-key write-buffer
// entry, since the working set has no notion of accounts -- only the
// module layer above it does.
package workingset

import "github.com/cockroachdb/errors"

// Base is read through by a WorkingSet on a cache miss: in native mode a
// snapshot.Manager view, in zk mode a witness-replay shim.
type Base interface {
	Get(key []byte) (value []byte, ok bool, err error)
}

// ReadEntry is the first-observed value for a key read during this slot.
type ReadEntry struct {
	Key   []byte
	Value []byte
	Found bool
}

// WriteEntry is the final pending write for a key, as of Freeze.
type WriteEntry struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// OrderedReadsAndWrites is the sealed output of Freeze: the first read and
// the final write for every key touched this slot, each in the order the
// key was first touched.
type OrderedReadsAndWrites struct {
	Reads  []ReadEntry
	Writes []WriteEntry
}

// writeChange is a journal entry recording what a write buffer slot held
// immediately before an overwrite, so Revert can restore it exactly.
type writeChange struct {
	key      string
	hadPrior bool
	prior    WriteEntry
}

// WorkingSet mediates storage access for one slot (or, when nested by the
// STF pipeline, one blob/transaction scope sharing the same Base and
// Witness). It is single-use: Freeze seals it and any further Get/Set/
// Delete call panics.
type WorkingSet struct {
	base    Base
	witness *Witness
	gas     *GasMeter

	writes     map[string]*WriteEntry
	writeOrder []string
	reads      map[string]*ReadEntry
	readOrder  []string

	journal []writeChange
	frozen  bool
}

// New creates a WorkingSet reading through base and, if witness is
// non-nil, recording (native mode) or consuming (zk mode, when base is
// itself witness-driven) hints on it.
func New(base Base, witness *Witness, gas *GasMeter) *WorkingSet {
	return &WorkingSet{
		base:    base,
		witness: witness,
		gas:     gas,
		writes:  make(map[string]*WriteEntry),
		reads:   make(map[string]*ReadEntry),
	}
}

// Witness returns the working set's witness, or nil if none was attached.
func (ws *WorkingSet) Witness() *Witness { return ws.witness }

// Gas returns the working set's gas meter, or nil if none was attached.
func (ws *WorkingSet) Gas() *GasMeter { return ws.gas }

func (ws *WorkingSet) checkLive() {
	if ws.frozen {
		panic("workingset: use of a WorkingSet after Freeze")
	}
}

// Get consults the write buffer, then the read cache, then falls through to
// Base. A fall-through is recorded as a Hint on the attached witness (if
// any) and cached so a repeated Get of the same key never re-touches Base
// or appends a second hint.
func (ws *WorkingSet) Get(key []byte) ([]byte, bool, error) {
	ws.checkLive()
	k := string(key)

	if w, ok := ws.writes[k]; ok {
		if w.Tombstone {
			return nil, false, nil
		}
		return w.Value, true, nil
	}
	if r, ok := ws.reads[k]; ok {
		return r.Value, r.Found, nil
	}

	value, found, err := ws.base.Get(key)
	if err != nil {
		return nil, false, err
	}

	ws.reads[k] = &ReadEntry{Key: append([]byte(nil), key...), Value: value, Found: found}
	ws.readOrder = append(ws.readOrder, k)

	if ws.witness != nil && ws.witness.Recording() {
		if found {
			ws.witness.AddHint(Hint{Kind: HintValueHit, Data: append([]byte(nil), value...)})
		} else {
			ws.witness.AddHint(Hint{Kind: HintValueMiss})
		}
	}
	return value, found, nil
}

// Set records value for key in the write buffer, overwriting any previous
// write for the same key while preserving that key's original position in
// write order.
func (ws *WorkingSet) Set(key, value []byte) {
	ws.put(key, value, false)
}

// Delete records a tombstone for key in the write buffer.
func (ws *WorkingSet) Delete(key []byte) {
	ws.put(key, nil, true)
}

func (ws *WorkingSet) put(key, value []byte, tombstone bool) {
	ws.checkLive()
	k := string(key)

	prior, hadPrior := ws.writes[k]
	change := writeChange{key: k, hadPrior: hadPrior}
	if hadPrior {
		change.prior = *prior
	}
	ws.journal = append(ws.journal, change)

	if hadPrior {
		prior.Value = append([]byte(nil), value...)
		prior.Tombstone = tombstone
		return
	}
	ws.writes[k] = &WriteEntry{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...), Tombstone: tombstone}
	ws.writeOrder = append(ws.writeOrder, k)
}

// Checkpoint returns an opaque handle to the working set's current write
// position. Reads are never part of a checkpoint: once read, a key's
// first-read value survives any later revert.
func (ws *WorkingSet) Checkpoint() int {
	ws.checkLive()
	return len(ws.journal)
}

// Commit discards a checkpoint handle without reverting anything.
func (ws *WorkingSet) Commit(cp int) {}

// Revert rewinds the write buffer to the state it had when cp was taken,
// undoing writes in reverse order. Used by the STF pipeline on
// per-transaction failure.
func (ws *WorkingSet) Revert(cp int) error {
	ws.checkLive()
	if cp < 0 || cp > len(ws.journal) {
		return errors.Newf("workingset: invalid checkpoint %d", cp)
	}
	for i := len(ws.journal) - 1; i >= cp; i-- {
		ch := ws.journal[i]
		if ch.hadPrior {
			prior := ch.prior
			ws.writes[ch.key] = &prior
		} else {
			delete(ws.writes, ch.key)
		}
	}
	ws.journal = ws.journal[:cp]
	return nil
}

// Freeze seals the working set, returning its ordered reads/writes and its
// witness. Any further Get/Set/Delete/Checkpoint/Revert call panics.
func (ws *WorkingSet) Freeze() (OrderedReadsAndWrites, *Witness) {
	ws.checkLive()
	ws.frozen = true

	out := OrderedReadsAndWrites{
		Reads:  make([]ReadEntry, 0, len(ws.readOrder)),
		Writes: make([]WriteEntry, 0, len(ws.writeOrder)),
	}
	for _, k := range ws.readOrder {
		out.Reads = append(out.Reads, *ws.reads[k])
	}
	// A key whose write was reverted and then written again appears in
	// writeOrder twice; only its first position is kept.
	seen := make(map[string]bool, len(ws.writeOrder))
	for _, k := range ws.writeOrder {
		if seen[k] {
			continue
		}
		seen[k] = true
		if w, ok := ws.writes[k]; ok {
			out.Writes = append(out.Writes, *w)
		}
	}
	return out, ws.witness
}

// witnessShim adapts a replay Witness into a Base, letting a WorkingSet run
// unmodified in zk mode: every Get consumes the next hint instead of
// touching real storage.
type witnessShim struct {
	w *Witness
}

// NewWitnessBase wraps a replay witness as a Base for zk-mode execution.
func NewWitnessBase(w *Witness) Base {
	return &witnessShim{w: w}
}

func (s *witnessShim) Get(key []byte) ([]byte, bool, error) {
	h, err := s.w.GetHint()
	if err != nil {
		return nil, false, err
	}
	switch h.Kind {
	case HintValueHit:
		return h.Data, true, nil
	case HintValueMiss:
		return nil, false, nil
	default:
		return nil, false, errors.Newf("workingset: unexpected hint kind %d for a value read", h.Kind)
	}
}
