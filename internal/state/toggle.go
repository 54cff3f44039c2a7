package state

// SeedToggle records the known server state of a toggle (e.g. from a REST
// list response) so a later optimistic flip starts from truth.
func (s *Store) SeedToggle(kind ToggleKind, target string, st ToggleState) {
	s.mu.Lock()
	s.toggles[toggleKey{Kind: kind, Target: target}] = st
	s.mu.Unlock()
}

// ToggleTxn is one optimistic toggle in flight. The pre-toggle snapshot is
// captured at BeginToggle time and closed over; Revert restores exactly
// that snapshot, never a value derived from current state, because a second
// toggle may have raced in between.
type ToggleTxn struct {
	store    *Store
	key      toggleKey
	snapshot ToggleState
}

// BeginToggle applies the inverted boolean and adjusted counter
// immediately and returns the transaction used to settle it.
func (s *Store) BeginToggle(kind ToggleKind, target string) *ToggleTxn {
	key := toggleKey{Kind: kind, Target: target}

	s.mu.Lock()
	snapshot := s.toggles[key]
	s.mu.Unlock()

	next := ToggleState{Active: !snapshot.Active}
	if next.Active {
		next.Count = snapshot.Count + 1
	} else {
		next.Count = snapshot.Count - 1
		if next.Count < 0 {
			next.Count = 0
		}
	}
	s.Apply(toggleAppliedEvent{Key: key, Next: next})

	return &ToggleTxn{store: s, key: key, snapshot: snapshot}
}

// Confirm overwrites the toggle with the server's reported state. Server
// wins, even when it disagrees with the local arithmetic.
func (t *ToggleTxn) Confirm(active bool, count int) {
	t.store.Apply(toggleConfirmedEvent{
		Key:    t.key,
		Server: ToggleState{Active: active, Count: count},
	})
}

// Revert restores the snapshot captured when the transaction began.
func (t *ToggleTxn) Revert(reason string) {
	t.store.Apply(toggleRevertedEvent{
		Key:      t.key,
		Snapshot: t.snapshot,
		Reason:   reason,
	})
}
