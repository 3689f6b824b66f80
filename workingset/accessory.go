package workingset

// AccessoryWorkingSet is the native-mode-only side channel for node-local
// indexes (e.g. explorer data): its reads and writes never touch the
// witness and never contribute to any root. It exists only on the native
// path -- the zk guest has no use for it and never constructs one.
type AccessoryWorkingSet struct {
	base  Base
	writes map[string]*WriteEntry
	order  []string
}

// NewAccessory creates an AccessoryWorkingSet reading through base.
func NewAccessory(base Base) *AccessoryWorkingSet {
	return &AccessoryWorkingSet{base: base, writes: make(map[string]*WriteEntry)}
}

// Get consults the write buffer, then falls through to base.
func (a *AccessoryWorkingSet) Get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if w, ok := a.writes[k]; ok {
		if w.Tombstone {
			return nil, false, nil
		}
		return w.Value, true, nil
	}
	return a.base.Get(key)
}

// Set records value for key.
func (a *AccessoryWorkingSet) Set(key, value []byte) {
	a.put(key, value, false)
}

// Delete records a tombstone for key.
func (a *AccessoryWorkingSet) Delete(key []byte) {
	a.put(key, nil, true)
}

func (a *AccessoryWorkingSet) put(key, value []byte, tombstone bool) {
	k := string(key)
	if w, ok := a.writes[k]; ok {
		w.Value = append([]byte(nil), value...)
		w.Tombstone = tombstone
		return
	}
	a.writes[k] = &WriteEntry{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...), Tombstone: tombstone}
	a.order = append(a.order, k)
}

// Writes returns the accessory write buffer in first-write order, for the
// caller to persist directly to L0's accessory keyspace.
func (a *AccessoryWorkingSet) Writes() []WriteEntry {
	out := make([]WriteEntry, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, *a.writes[k])
	}
	return out
}
