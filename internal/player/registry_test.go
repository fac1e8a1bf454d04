package player

import "testing"

func TestRegistryGetCreatesOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	factory := func() *Session {
		calls++
		return NewSession("g1", testSettings(), newFakeVoice(), &fakePresence{occupants: map[string][]string{}}, &stubLoader{})
	}

	a := r.Get("g1", factory)
	b := r.Get("g1", factory)
	if a != b {
		t.Error("Get returned different sessions for the same guild")
	}
	if calls != 1 {
		t.Errorf("factory ran %d times, want 1", calls)
	}
}

func TestRegistryPeek(t *testing.T) {
	r := NewRegistry()
	if r.Peek("nope") != nil {
		t.Error("Peek invented a session")
	}
	s := r.Get("g1", func() *Session {
		return NewSession("g1", testSettings(), newFakeVoice(), &fakePresence{occupants: map[string][]string{}}, &stubLoader{})
	})
	if r.Peek("g1") != s {
		t.Error("Peek did not return the created session")
	}
}
