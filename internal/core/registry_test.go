package core

import (
	"math/rand"
	"sort"
	"testing"
)

func TestRegistryMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	reg := NewRegistry()
	model := make(map[int64]*Session)
	var handles []*Session

	for step := 0; step < 2000; step++ {
		switch rng.Intn(3) {
		case 0, 1:
			userID := int64(rng.Intn(10) + 1)
			s := identifiedSession(t, userID)
			handles = append(handles, s)

			prev, existed := model[userID]
			superseded, cameOnline := reg.Register(userID, s)
			model[userID] = s

			if cameOnline == existed {
				t.Fatalf("step %d: cameOnline=%v but user existed=%v", step, cameOnline, existed)
			}
			if existed && superseded != prev {
				t.Fatalf("step %d: expected previous session to be superseded", step)
			}
		case 2:
			if len(handles) == 0 {
				continue
			}
			s := handles[rng.Intn(len(handles))]
			userID, removed := reg.Unregister(s)

			current, ok := model[s.UserID()]
			wantRemoved := ok && current == s
			if removed != wantRemoved {
				t.Fatalf("step %d: removed=%v want %v", step, removed, wantRemoved)
			}
			if removed {
				if userID != s.UserID() {
					t.Fatalf("step %d: wrong user %d", step, userID)
				}
				delete(model, userID)
			}
		}

		want := make([]int64, 0, len(model))
		for id := range model {
			want = append(want, id)
		}
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

		got := reg.ListOnline()
		if len(got) != len(want) {
			t.Fatalf("step %d: online %v, want %v", step, got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("step %d: online %v, want %v", step, got, want)
			}
			if s, _ := reg.Lookup(got[i]); s != model[got[i]] {
				t.Fatalf("step %d: lookup mismatch for %d", step, got[i])
			}
		}
	}
}

func TestUnregisterStaleHandleKeepsNewSession(t *testing.T) {
	reg := NewRegistry()
	old := identifiedSession(t, 7)
	fresh := identifiedSession(t, 7)

	reg.Register(7, old)
	superseded, cameOnline := reg.Register(7, fresh)
	if superseded != old || cameOnline {
		t.Fatalf("expected old session superseded without an online transition")
	}

	if _, removed := reg.Unregister(old); removed {
		t.Fatalf("stale handle must not remove the current session")
	}
	if s, ok := reg.Lookup(7); !ok || s != fresh {
		t.Fatalf("fresh session must stay registered")
	}

	if _, removed := reg.Unregister(NewSession()); removed {
		t.Fatalf("unidentified session must be ignored")
	}
}

func TestSessionIdentifyOnce(t *testing.T) {
	s := NewSession()
	if s.Identified() {
		t.Fatalf("new session must be unidentified")
	}
	if err := s.Identify(0); err == nil {
		t.Fatalf("expected error for invalid user")
	}
	if err := s.Identify(5); err != nil {
		t.Fatalf("identify: %v", err)
	}
	if err := s.Identify(6); err != ErrAlreadyIdentified {
		t.Fatalf("expected ErrAlreadyIdentified, got %v", err)
	}
	if s.UserID() != 5 {
		t.Fatalf("identity must not change, got %d", s.UserID())
	}

	s.Close()
	s.Close()
	if s.Send(&Event{Kind: EventError}) {
		t.Fatalf("closed session must refuse events")
	}
}
