package engine

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, players int) (*Session, *Registry) {
	t.Helper()
	s, err := NewSession(players, Rules{TimeToWin: 10 * time.Second, InvincibleDuration: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	reg := NewRegistry(players)
	for i := 1; i <= players; i++ {
		reg.Register(&Player{ID: PlayerID(i)})
	}
	return s, reg
}

func countHolders(reg *Registry) int {
	n := 0
	for _, p := range reg.Players() {
		if p.HasHat {
			n++
		}
	}
	return n
}

func TestCanTransfer_ImmunityWindow(t *testing.T) {
	s, _ := newTestSession(t, 2)
	s.HolderSince = t0
	window := s.Rules.InvincibleDuration

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just after pickup", t0.Add(time.Nanosecond), false},
		{"half the window", t0.Add(window / 2), false},
		{"window boundary is still immune", t0.Add(window), false},
		{"one tick past the window", t0.Add(window + time.Nanosecond), true},
		{"long after", t0.Add(time.Hour), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.CanTransfer(tc.now); got != tc.want {
				t.Fatalf("CanTransfer(%v): got %v, want %v", tc.now.Sub(t0), got, tc.want)
			}
		})
	}
}

func TestValidateTransfer(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(s *Session)
		from    PlayerID
		req     TransferRequest
		now     time.Time
		wantErr error
	}{
		{
			name:    "accepted after immunity",
			from:    2,
			req:     TransferRequest{RequesterID: 2, TouchedHolderID: 1},
			now:     t0.Add(3 * time.Second),
			wantErr: nil,
		},
		{
			name:    "immune holder",
			from:    2,
			req:     TransferRequest{RequesterID: 2, TouchedHolderID: 1},
			now:     t0.Add(time.Second),
			wantErr: ErrHolderImmune,
		},
		{
			name:    "touched a stale holder",
			from:    3,
			req:     TransferRequest{RequesterID: 3, TouchedHolderID: 2},
			now:     t0.Add(3 * time.Second),
			wantErr: ErrStaleRequest,
		},
		{
			name:    "sender does not match requester",
			from:    3,
			req:     TransferRequest{RequesterID: 2, TouchedHolderID: 1},
			now:     t0.Add(3 * time.Second),
			wantErr: ErrSpoofedRequest,
		},
		{
			name:    "unknown requester",
			from:    9,
			req:     TransferRequest{RequesterID: 9, TouchedHolderID: 1},
			now:     t0.Add(3 * time.Second),
			wantErr: ErrUnknownPlayer,
		},
		{
			name:    "holder touching itself",
			from:    1,
			req:     TransferRequest{RequesterID: 1, TouchedHolderID: 1},
			now:     t0.Add(3 * time.Second),
			wantErr: ErrAlreadyHolder,
		},
		{
			name:    "game over",
			setup:   func(s *Session) { s.Ended = true },
			from:    2,
			req:     TransferRequest{RequesterID: 2, TouchedHolderID: 1},
			now:     t0.Add(3 * time.Second),
			wantErr: ErrGameEnded,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, reg := newTestSession(t, 3)
			if err := Grant(s, reg, 1, t0, true); err != nil {
				t.Fatalf("initial grant: %v", err)
			}
			if tc.setup != nil {
				tc.setup(s)
			}
			err := ValidateTransfer(s, reg, tc.from, tc.req, tc.now)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestGrant_KeepsSingleHolder(t *testing.T) {
	s, reg := newTestSession(t, 4)
	if countHolders(reg) != 0 {
		t.Fatalf("expected no holder before the initial grant")
	}

	if err := Grant(s, reg, 1, t0, true); err != nil {
		t.Fatalf("initial grant: %v", err)
	}
	now := t0
	for _, next := range []PlayerID{3, 2, 4, 1, 2} {
		now = now.Add(5 * time.Second)
		if err := Grant(s, reg, next, now, false); err != nil {
			t.Fatalf("grant %d: %v", next, err)
		}
		if n := countHolders(reg); n != 1 {
			t.Fatalf("after grant to %d: %d holders", next, n)
		}
		if s.HolderID != next || !s.HolderSince.Equal(now) {
			t.Fatalf("holder=%d since=%v, want %d since %v", s.HolderID, s.HolderSince, next, now)
		}
	}

	if err := Grant(s, reg, 7, now, false); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("want ErrUnknownPlayer, got %v", err)
	}
	if s.HolderID != 2 {
		t.Fatalf("failed grant must not move the hat, holder=%d", s.HolderID)
	}
}

func TestReachedWin(t *testing.T) {
	s, reg := newTestSession(t, 2)
	if _, ok := ReachedWin(s, reg); ok {
		t.Fatalf("no holder yet: must not win")
	}
	_ = Grant(s, reg, 2, t0, true)
	p, _ := reg.Get(2)

	p.HoldTime = 10*time.Second - time.Millisecond
	if _, ok := ReachedWin(s, reg); ok {
		t.Fatalf("below threshold: must not win")
	}

	p.HoldTime = 10 * time.Second
	id, ok := ReachedWin(s, reg)
	if !ok || id != 2 {
		t.Fatalf("at threshold: got (%d, %v), want (2, true)", id, ok)
	}

	s.Ended = true
	if _, ok := ReachedWin(s, reg); ok {
		t.Fatalf("ended session must not report a win again")
	}
}

func TestNewSession_RejectsBadConfig(t *testing.T) {
	cases := []struct {
		name     string
		expected int
		rules    Rules
		wantErr  error
	}{
		{"zero players", 0, Rules{TimeToWin: time.Second}, ErrInvalidPlayerCount},
		{"zero time to win", 2, Rules{}, ErrInvalidTimeToWin},
		{"negative time to win", 2, Rules{TimeToWin: -time.Second}, ErrInvalidTimeToWin},
		{"negative immunity", 2, Rules{TimeToWin: time.Second, InvincibleDuration: -1}, ErrInvalidInvincibility},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSession(tc.expected, tc.rules); !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegistry_SlotsAndGrowth(t *testing.T) {
	reg := NewRegistry(2)
	reg.Register(&Player{ID: 2, DisplayName: "b"})
	reg.Register(&Player{ID: 5, DisplayName: "e", IsLocal: true})
	reg.Register(&Player{ID: 0})

	if reg.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", reg.Len())
	}
	if _, ok := reg.Get(1); ok {
		t.Fatalf("slot 1 should be empty")
	}
	if p, ok := reg.Get(5); !ok || p.DisplayName != "e" {
		t.Fatalf("Get(5): got %+v, %v", p, ok)
	}
	if p, ok := reg.Local(); !ok || p.ID != 5 {
		t.Fatalf("Local: got %+v, %v", p, ok)
	}
	ids := []PlayerID{}
	for _, p := range reg.Players() {
		ids = append(ids, p.ID)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 5 {
		t.Fatalf("Players order: got %v", ids)
	}
}

func TestVec3_UnmarshalText(t *testing.T) {
	var v Vec3
	if err := v.UnmarshalText([]byte(" 1.5, 0 ,-3")); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if v != (Vec3{X: 1.5, Y: 0, Z: -3}) {
		t.Fatalf("got %+v", v)
	}
	if err := v.UnmarshalText([]byte("1,2")); err == nil {
		t.Fatalf("expected error for two components")
	}
	if err := v.UnmarshalText([]byte("1,b,2")); err == nil {
		t.Fatalf("expected error for non-numeric component")
	}
}
