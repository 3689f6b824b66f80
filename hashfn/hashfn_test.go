package hashfn

import "testing"

func TestByName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"", false},
		{"keccak256", false},
		{"sha256", false},
		{"blake3", true},
	}
	for _, c := range cases {
		h, err := ByName(c.name)
		if c.wantErr {
			if err == nil {
				t.Fatalf("ByName(%q): expected error, got none", c.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ByName(%q): unexpected error: %v", c.name, err)
		}
		if h == nil {
			t.Fatalf("ByName(%q): nil hasher", c.name)
		}
	}
}

func TestHashersDeterministicAndDistinct(t *testing.T) {
	data := []byte("rollkernel")
	k := Keccak256Hasher{}
	s := SHA256Hasher{}

	if k.Sum(data) != k.Sum(data) {
		t.Fatal("keccak256 hasher is not deterministic")
	}
	if s.Sum(data) != s.Sum(data) {
		t.Fatal("sha256 hasher is not deterministic")
	}
	if k.Sum(data) == s.Sum(data) {
		t.Fatal("keccak256 and sha256 produced the same digest")
	}
}

func TestMustByNamePanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown hash algorithm")
		}
	}()
	MustByName("nope")
}
