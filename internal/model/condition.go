package model

// ConditionEntry is one active fault/warning tracked for a CONDITION data
// item, keyed by native code per §3's "FIFO-per-native-code set".
type ConditionEntry struct {
	Level      ConditionLevel
	NativeCode string
	Qualifier  string
	Message    string
	Sequence   uint64
}

// ConditionState tracks the active condition set for a single CONDITION
// data item, implementing the state machine of §4.12:
//   - NORMAL with no native_code clears everything;
//   - FAULT/WARNING with a native_code adds or updates that entry;
//   - NORMAL with a native_code removes just that entry.
type ConditionState struct {
	active []ConditionEntry // newest first
}

// Apply folds one Condition observation into the state and returns the
// resulting active set (newest first), per the Current-view ordering rule.
func (s *ConditionState) Apply(c Condition, seq uint64) []ConditionEntry {
	if c.Level == ConditionNormal && c.NativeCode == "" {
		s.active = nil
		return s.Snapshot()
	}

	if c.Level == ConditionNormal {
		out := s.active[:0:0]
		for _, e := range s.active {
			if e.NativeCode != c.NativeCode {
				out = append(out, e)
			}
		}
		s.active = out
		return s.Snapshot()
	}

	// FAULT/WARNING: add, or update in place if the native_code already exists.
	entry := ConditionEntry{
		Level:      c.Level,
		NativeCode: c.NativeCode,
		Qualifier:  c.Qualifier,
		Message:    c.Message,
		Sequence:   seq,
	}
	for i, e := range s.active {
		if e.NativeCode == c.NativeCode {
			s.active[i] = entry
			return s.Snapshot()
		}
	}
	// Prepend so the active list stays newest-first.
	s.active = append([]ConditionEntry{entry}, s.active...)
	return s.Snapshot()
}

// Snapshot returns a defensive copy of the current active set.
func (s *ConditionState) Snapshot() []ConditionEntry {
	out := make([]ConditionEntry, len(s.active))
	copy(out, s.active)
	return out
}

// Empty reports whether no conditions are currently active.
func (s *ConditionState) Empty() bool { return len(s.active) == 0 }
