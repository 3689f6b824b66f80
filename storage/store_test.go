package storage

import (
	"testing"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetValueLatestLEMaxVersion(t *testing.T) {
	s := openTestStore(t)
	kh := crypto.Keccak256Hash([]byte("some-key"))

	b := s.NewBatch()
	must(t, b.PutValue(kh, 1, []byte("v1")))
	must(t, b.PutValue(kh, 5, []byte("v5")))
	must(t, b.PutValue(kh, 10, []byte("v10")))
	must(t, s.ApplyBatch(b))

	val, ok, err := s.GetValue(kh, 7)
	if err != nil || !ok {
		t.Fatalf("GetValue(7): ok=%v err=%v", ok, err)
	}
	if string(val) != "v5" {
		t.Fatalf("GetValue(7) = %q, want v5", val)
	}

	val, ok, err = s.GetValue(kh, 10)
	if err != nil || !ok || string(val) != "v10" {
		t.Fatalf("GetValue(10) = %q ok=%v err=%v, want v10", val, ok, err)
	}

	_, ok, err = s.GetValue(kh, 0)
	if err != nil || ok {
		t.Fatalf("GetValue(0) should miss, got ok=%v err=%v", ok, err)
	}
}

func TestGetValueTombstone(t *testing.T) {
	s := openTestStore(t)
	kh := crypto.Keccak256Hash([]byte("some-key"))

	b := s.NewBatch()
	must(t, b.PutValue(kh, 1, []byte("v1")))
	must(t, b.PutValue(kh, 2, nil))
	must(t, s.ApplyBatch(b))

	_, ok, err := s.GetValue(kh, 5)
	if err != nil || ok {
		t.Fatalf("expected tombstone to report absence, got ok=%v err=%v", ok, err)
	}
	val, ok, err := s.GetValue(kh, 1)
	if err != nil || !ok || string(val) != "v1" {
		t.Fatalf("GetValue(1) should still see the pre-tombstone value")
	}
}

func TestNodeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	path := []byte{1, 2, 3, 4}

	b := s.NewBatch()
	must(t, b.PutNode(path, 3, []byte("node-bytes")))
	must(t, s.ApplyBatch(b))

	got, ok, err := s.GetNode(path, 3)
	if err != nil || !ok || string(got) != "node-bytes" {
		t.Fatalf("GetNode mismatch: got=%q ok=%v err=%v", got, ok, err)
	}

	_, ok, err = s.GetNode(path, 4)
	if err != nil || ok {
		t.Fatalf("expected miss for unwritten version")
	}
}

func TestAccessoryAndPreimage(t *testing.T) {
	s := openTestStore(t)
	kh := crypto.Keccak256Hash([]byte("some-key"))

	b := s.NewBatch()
	must(t, b.PutAccessory([]byte("idx-key"), []byte("idx-val")))
	must(t, b.PutPreimage(kh, []byte("original-key")))
	must(t, s.ApplyBatch(b))

	av, ok, err := s.GetAccessory([]byte("idx-key"))
	if err != nil || !ok || string(av) != "idx-val" {
		t.Fatalf("accessory mismatch")
	}
	pv, ok, err := s.GetPreimage(kh)
	if err != nil || !ok || string(pv) != "original-key" {
		t.Fatalf("preimage mismatch")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
