package snapshot

import (
	"testing"
)

type memBase map[string][]byte

func (b memBase) Get(key []byte) ([]byte, bool, error) {
	v, ok := b[string(key)]
	return v, ok, nil
}

func newTestManager() (memBase, *Manager) {
	base := memBase{}
	commit := func(writes []Write) error {
		for _, w := range writes {
			if w.Tombstone {
				delete(base, string(w.Key))
				continue
			}
			base[string(w.Key)] = w.Value
		}
		return nil
	}
	return base, NewManager(base, commit)
}

func TestReadFallsThroughToBase(t *testing.T) {
	base, mgr := newTestManager()
	base["k"] = []byte("base-value")

	id, err := mgr.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	v, ok, err := mgr.Read(id, []byte("k"))
	if err != nil || !ok || string(v) != "base-value" {
		t.Fatalf("Read = %q ok=%v err=%v, want base-value", v, ok, err)
	}
}

func TestWriteShadowsParent(t *testing.T) {
	base, mgr := newTestManager()
	base["k"] = []byte("base-value")

	id, _ := mgr.CreateSnapshot(0)
	if err := mgr.Write(id, []byte("k"), []byte("overlay-value")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, ok, err := mgr.Read(id, []byte("k"))
	if err != nil || !ok || string(v) != "overlay-value" {
		t.Fatalf("Read = %q ok=%v err=%v, want overlay-value", v, ok, err)
	}
}

func TestDeleteTombstoneShadowsParent(t *testing.T) {
	base, mgr := newTestManager()
	base["k"] = []byte("base-value")

	id, _ := mgr.CreateSnapshot(0)
	if err := mgr.Delete(id, []byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err := mgr.Read(id, []byte("k"))
	if err != nil || ok {
		t.Fatalf("Read after delete should report absence, ok=%v err=%v", ok, err)
	}
}

func TestReadWalksMultiLevelParentChain(t *testing.T) {
	_, mgr := newTestManager()
	root, _ := mgr.CreateSnapshot(0)
	mgr.Write(root, []byte("k"), []byte("v-root"))

	child, _ := mgr.CreateSnapshot(root)
	grandchild, _ := mgr.CreateSnapshot(child)

	v, ok, err := mgr.Read(grandchild, []byte("k"))
	if err != nil || !ok || string(v) != "v-root" {
		t.Fatalf("Read through two ancestors = %q ok=%v err=%v", v, ok, err)
	}
}

func TestFinalizeMergesIntoBaseAndRebasesChildren(t *testing.T) {
	base, mgr := newTestManager()

	root, _ := mgr.CreateSnapshot(0)
	mgr.Write(root, []byte("k"), []byte("v1"))
	child, _ := mgr.CreateSnapshot(root)

	if err := mgr.Finalize(root); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if string(base["k"]) != "v1" {
		t.Fatalf("base[k] = %q, want v1", base["k"])
	}

	v, ok, err := mgr.Read(child, []byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("child read after rebase = %q ok=%v err=%v", v, ok, err)
	}
}

func TestFinalizeNonRootSnapshotIsRejected(t *testing.T) {
	_, mgr := newTestManager()
	root, _ := mgr.CreateSnapshot(0)
	child, _ := mgr.CreateSnapshot(root)

	if err := mgr.Finalize(child); err != ErrNotRootSnapshot {
		t.Fatalf("Finalize(child) = %v, want ErrNotRootSnapshot", err)
	}
}

func TestFinalizeTwiceIsRejected(t *testing.T) {
	_, mgr := newTestManager()
	root, _ := mgr.CreateSnapshot(0)
	if err := mgr.Finalize(root); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := mgr.Finalize(root); err != ErrFinalized {
		t.Fatalf("second Finalize = %v, want ErrFinalized", err)
	}
}

// TestForkDivergence reproduces the spec's S6 scenario: S0 committed,
// children S1a (writes k->v1) and S1b (writes k->v2); finalize S1a.
// Descendants of S1b should see v1 for k unless S1b itself wrote k.
func TestForkDivergence(t *testing.T) {
	_, mgr := newTestManager()

	s1a, _ := mgr.CreateSnapshot(0)
	mgr.Write(s1a, []byte("k"), []byte("v1"))

	s1b, _ := mgr.CreateSnapshot(0)
	mgr.Write(s1b, []byte("k"), []byte("v2"))
	descendantOfB, _ := mgr.CreateSnapshot(s1b)

	if err := mgr.Finalize(s1a); err != nil {
		t.Fatalf("Finalize(s1a): %v", err)
	}

	// s1b is now superseded: finalizing it must fail.
	if err := mgr.Finalize(s1b); err != ErrSuperseded {
		t.Fatalf("Finalize(s1b) = %v, want ErrSuperseded", err)
	}

	descendantOfA, _ := mgr.CreateSnapshot(s1a)
	v, ok, err := mgr.Read(descendantOfA, []byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("descendant of s1a reads %q ok=%v err=%v, want v1", v, ok, err)
	}

	// s1b's descendant, created before s1a was finalized (a superseded
	// snapshot accepts no new children), still sees s1b's own write, v2,
	// since reads check a ChangeSet's own writes before its parent's.
	v, ok, err = mgr.Read(descendantOfB, []byte("k"))
	if err != nil || !ok || string(v) != "v2" {
		t.Fatalf("descendant of s1b reads %q ok=%v err=%v, want v2", v, ok, err)
	}
}

func TestIterRangePreservesInsertionOrder(t *testing.T) {
	_, mgr := newTestManager()
	id, _ := mgr.CreateSnapshot(0)
	mgr.Write(id, []byte("c"), []byte("3"))
	mgr.Write(id, []byte("a"), []byte("1"))
	mgr.Write(id, []byte("b"), []byte("2"))

	entries, err := mgr.IterRange(id, nil)
	if err != nil {
		t.Fatalf("IterRange: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("IterRange returned %d entries, want 3", len(entries))
	}
	want := []string{"c", "a", "b"}
	for i, e := range entries {
		if string(e.Key) != want[i] {
			t.Fatalf("entry %d key = %q, want %q (insertion order)", i, e.Key, want[i])
		}
	}
}

func TestIterRangeRespectsUpperBound(t *testing.T) {
	_, mgr := newTestManager()
	id, _ := mgr.CreateSnapshot(0)
	mgr.Write(id, []byte("a"), []byte("1"))
	mgr.Write(id, []byte("m"), []byte("2"))
	mgr.Write(id, []byte("z"), []byte("3"))

	entries, err := mgr.IterRange(id, []byte("m"))
	if err != nil {
		t.Fatalf("IterRange: %v", err)
	}
	if len(entries) != 1 || string(entries[0].Key) != "a" {
		t.Fatalf("IterRange(upper=m) = %v, want just [a]", entries)
	}
}

func TestWriteUpdateKeepsOriginalOrderPosition(t *testing.T) {
	_, mgr := newTestManager()
	id, _ := mgr.CreateSnapshot(0)
	mgr.Write(id, []byte("a"), []byte("1"))
	mgr.Write(id, []byte("b"), []byte("2"))
	mgr.Write(id, []byte("a"), []byte("1-updated"))

	entries, _ := mgr.IterRange(id, nil)
	if len(entries) != 2 {
		t.Fatalf("expected the update to not add a new entry, got %d", len(entries))
	}
	if string(entries[0].Key) != "a" || string(entries[0].Value) != "1-updated" {
		t.Fatalf("entry 0 = %+v, want updated a", entries[0])
	}
}

func TestCreateSnapshotUnderSupersededParentFails(t *testing.T) {
	_, mgr := newTestManager()
	s1a, _ := mgr.CreateSnapshot(0)
	s1b, _ := mgr.CreateSnapshot(0)
	mgr.Finalize(s1a)

	if _, err := mgr.CreateSnapshot(s1b); err != ErrSuperseded {
		t.Fatalf("CreateSnapshot under superseded parent = %v, want ErrSuperseded", err)
	}
}

func TestPruneRemovesSupersededSubtree(t *testing.T) {
	_, mgr := newTestManager()
	s1a, _ := mgr.CreateSnapshot(0)
	s1b, _ := mgr.CreateSnapshot(0)
	grandchild, _ := mgr.CreateSnapshot(s1b)
	mgr.Finalize(s1a)

	if err := mgr.Prune(s1b); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if _, _, err := mgr.Read(grandchild, []byte("k")); err != ErrUnknownSnapshot {
		t.Fatalf("Read after Prune = %v, want ErrUnknownSnapshot", err)
	}
}
