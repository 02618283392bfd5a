package matcher

import "testing"

func TestMatcher_Blacklist(t *testing.T) {
	blacklist := []BlacklistEntry{
		{Name: "known-bad", Match: Match{IDs: []uint32{313000}}, Reason: "reported abuse"},
	}
	def := PeerConfig{Passphrase: "s3cret", Slot1: NewUnrestrictedSet(), Slot2: NewUnrestrictedSet()}

	m, err := New(blacklist, nil, def, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result := m.Query(313000, "")
	if !result.Blacklisted {
		t.Fatal("expected blacklisted result")
	}
	if result.RuleName != "known-bad" || result.Reason != "reported abuse" {
		t.Errorf("unexpected blacklist result: %+v", result)
	}
}

func TestMatcher_SpecificityOrder(t *testing.T) {
	patterns := []Pattern{
		{
			Match:  Match{Callsigns: []string{"W*"}},
			Config: PeerConfig{Name: "callsign-rule", Passphrase: "glob"},
		},
		{
			Match:  Match{Ranges: []IDRange{{Start: 312000, End: 312999}}},
			Config: PeerConfig{Name: "range-rule", Passphrase: "range"},
		},
		{
			Match:  Match{IDs: []uint32{312100}},
			Config: PeerConfig{Name: "id-rule", Passphrase: "exact"},
		},
	}
	def := PeerConfig{Name: "default", Passphrase: "default"}

	m, err := New(nil, patterns, def, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// 312100 matches both the exact-ID rule and the range rule; the
	// exact-ID rule must win because it is more specific.
	result := m.Query(312100, "W1ABC")
	if result.Config.Name != "id-rule" {
		t.Errorf("expected id-rule to win, got %q", result.Config.Name)
	}

	// 312200 matches only the range, not an exact ID.
	result = m.Query(312200, "")
	if result.Config.Name != "range-rule" {
		t.Errorf("expected range-rule, got %q", result.Config.Name)
	}

	// Callsign-only match.
	result = m.Query(999999, "W9XYZ")
	if result.Config.Name != "callsign-rule" {
		t.Errorf("expected callsign-rule, got %q", result.Config.Name)
	}

	// No match at all falls through to default.
	result = m.Query(1, "")
	if result.Config.Name != "default" {
		t.Errorf("expected default, got %q", result.Config.Name)
	}
}

func TestMatcher_ORAcrossKinds(t *testing.T) {
	patterns := []Pattern{
		{
			Match: Match{
				IDs:       []uint32{1},
				Ranges:    []IDRange{{Start: 100, End: 200}},
				Callsigns: []string{"N0*"},
			},
			Config: PeerConfig{Name: "mixed"},
		},
	}
	m, err := New(nil, patterns, PeerConfig{Name: "default"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, tc := range []struct {
		id       uint32
		callsign string
	}{
		{1, ""},
		{150, ""},
		{999, "N0CALL"},
	} {
		if result := m.Query(tc.id, tc.callsign); result.Config.Name != "mixed" {
			t.Errorf("Query(%d, %q) = %q, want mixed", tc.id, tc.callsign, result.Config.Name)
		}
	}
}

func TestMatcher_DirectoryFallback(t *testing.T) {
	dir := stubDirectory{calls: map[uint32]string{42: "K1ABC"}}
	patterns := []Pattern{
		{Match: Match{Callsigns: []string{"K1*"}}, Config: PeerConfig{Name: "k1-rule"}},
	}
	m, err := New(nil, patterns, PeerConfig{Name: "default"}, dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result := m.Query(42, "")
	if result.Config.Name != "k1-rule" {
		t.Errorf("expected directory-resolved callsign to match k1-rule, got %q", result.Config.Name)
	}
}

func TestMatcher_InvalidRangeRejected(t *testing.T) {
	patterns := []Pattern{
		{Match: Match{Ranges: []IDRange{{Start: 200, End: 100}}}, Config: PeerConfig{Name: "bad"}},
	}
	if _, err := New(nil, patterns, PeerConfig{}, nil); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestMatcher_InvalidCallsignGlobRejected(t *testing.T) {
	patterns := []Pattern{
		{Match: Match{Callsigns: []string{"bad glob!"}}, Config: PeerConfig{Name: "bad"}},
	}
	if _, err := New(nil, patterns, PeerConfig{}, nil); err == nil {
		t.Fatal("expected error for invalid callsign glob")
	}
}

func TestTalkgroupSet_Intersect(t *testing.T) {
	configured := NewTalkgroupSet(1, 2, 3, 9)
	requested := []uint32{1, 2, 999, 1000}

	effective := configured.Intersect(requested)
	for _, want := range []uint32{1, 2} {
		if !effective.Allows(want) {
			t.Errorf("expected %d to be allowed after intersection", want)
		}
	}
	for _, notWant := range []uint32{3, 9, 999, 1000} {
		if effective.Allows(notWant) {
			t.Errorf("expected %d to be excluded after intersection", notWant)
		}
	}
}

type stubDirectory struct {
	calls map[uint32]string
}

func (s stubDirectory) Lookup(radioID uint32) (string, bool) {
	cs, ok := s.calls[radioID]
	return cs, ok
}
