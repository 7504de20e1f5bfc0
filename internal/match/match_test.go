package match

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/relay"
	"github.com/DoyleJ11/hat-tag-backend/internal/transport"
)

var _ Transport = (*transport.Local)(nil)
var _ Transport = (*transport.WS)(nil)

type peer struct {
	net      *transport.Local
	match    *Match
	ticks    chan time.Time
	tornDown chan View
}

type table struct {
	clock *clockwork.FakeClock
	room  *relay.Room
	peers []*peer
}

func newTable(t *testing.T, names []string, rules engine.Rules) *table {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zap.NewNop()

	tb := &table{
		clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		room:  relay.NewRoom(ctx, "TABLE1", relay.Options{Logger: log}),
	}
	// Everyone joins the room before the scene loads, like a lobby would.
	for _, name := range names {
		net, err := transport.JoinLocal(ctx, tb.room, name, 256, log)
		require.NoError(t, err)
		tb.peers = append(tb.peers, &peer{net: net, ticks: make(chan time.Time), tornDown: make(chan View, 1)})
	}
	for i, p := range tb.peers {
		m, err := New(ctx, p.net, Options{
			Rules:           rules,
			ExpectedPlayers: len(names),
			SpawnPoints:     []engine.Vec3{{X: 0}, {X: 5}, {X: 10}},
			ReplicateEvery:  1,
			TeardownDelay:   3 * time.Second,
			Clock:           tb.clock,
			Ticks:           p.ticks,
			Rand:            rand.New(rand.NewPCG(uint64(i), 7)),
			Logger:          log,
			OnTeardown:      func(v View) { p.tornDown <- v },
		})
		require.NoError(t, err)
		p.match = m
	}
	return tb
}

func (p *peer) tick(t *testing.T) {
	t.Helper()
	select {
	case p.ticks <- time.Time{}:
	case <-p.match.Done():
	case <-time.After(time.Second):
		t.Fatalf("tick not consumed")
	}
}

func (p *peer) view(t *testing.T) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := p.match.View(ctx)
	require.NoError(t, err)
	return v
}

func (tb *table) waitAll(t *testing.T, cond func(View) bool, msg string) {
	t.Helper()
	for i, p := range tb.peers {
		require.Eventually(t, func() bool { return cond(p.view(t)) }, 2*time.Second, 5*time.Millisecond, "peer %d: %s", i+1, msg)
	}
}

func TestMatch_FullGameAcrossPeers(t *testing.T) {
	rules := engine.Rules{TimeToWin: 5 * time.Second, InvincibleDuration: 2 * time.Second}
	tb := newTable(t, []string{"alice", "bob", "carol"}, rules)
	alice, bob, carol := tb.peers[0], tb.peers[1], tb.peers[2]

	tb.waitAll(t, func(v View) bool { return len(v.Players) == 3 && v.HolderID == 1 }, "spawn and initial grant")

	v := alice.view(t)
	assert.Equal(t, engine.PlayerID(1), v.AuthorityID)
	assert.Equal(t, engine.PhasePlaying, v.Phase)
	assert.Equal(t, 3, v.Ready)
	for _, p := range v.Players {
		assert.Equal(t, p.ID == 1, p.IsLocal)
	}

	tb.clock.Advance(3 * time.Second)
	carol.match.TryTransfer(3, 1)
	tb.waitAll(t, func(v View) bool { return v.HolderID == 3 }, "carol takes the hat")

	// Bob still aims at the old holder; his own peer drops the stale touch.
	bob.match.TryTransfer(2, 1)
	tb.clock.Advance(3 * time.Second)
	bob.match.TryTransfer(2, 3)
	tb.waitAll(t, func(v View) bool { return v.HolderID == 2 && v.IsHolder(2) }, "bob takes the hat")
	for _, p := range carol.view(t).Players {
		assert.Equal(t, p.ID == 2, p.HasHat)
	}

	// Bob holds for five simulated seconds.
	bob.tick(t)
	for i := 0; i < 5; i++ {
		tb.clock.Advance(time.Second)
		bob.tick(t)
	}
	assert.Equal(t, 5*time.Second, bob.view(t).AccumulatedHoldTime(2))
	assert.False(t, bob.view(t).GameEnded(), "only the authority decides the win")

	// The authority sees bob's replicated time on its next tick.
	require.Eventually(t, func() bool {
		alice.tick(t)
		return alice.view(t).GameEnded()
	}, 2*time.Second, 5*time.Millisecond)

	tb.waitAll(t, func(v View) bool { return v.GameEnded() && v.WinnerName() == "bob" }, "win broadcast")
	assert.Equal(t, "bob wins", carol.view(t).WinText)
	assert.Equal(t, 5*time.Second, carol.view(t).AccumulatedHoldTime(2))

	// Nobody leaves before the delay.
	tb.clock.Advance(2 * time.Second)
	for _, p := range tb.peers {
		p.tick(t)
		assert.False(t, p.view(t).TornDown)
	}

	tb.clock.Advance(time.Second)
	for i, p := range tb.peers {
		p.tick(t)
		select {
		case v := <-p.tornDown:
			assert.True(t, v.TornDown)
			assert.Equal(t, engine.PlayerID(2), v.WinnerID)
		case <-time.After(time.Second):
			t.Fatalf("peer %d did not tear down", i+1)
		}
		select {
		case <-p.match.Done():
		case <-time.After(time.Second):
			t.Fatalf("peer %d loop still running", i+1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	view, err := tb.room.View(ctx)
	if err == nil {
		assert.Empty(t, view.Members, "every peer left the room")
	}
}

func TestMatch_AuthorityHolderWinsOnExactTick(t *testing.T) {
	rules := engine.Rules{TimeToWin: 4 * time.Second, InvincibleDuration: time.Second}
	tb := newTable(t, []string{"alice", "bob"}, rules)
	alice := tb.peers[0]

	tb.waitAll(t, func(v View) bool { return v.HolderID == 1 }, "initial grant")

	alice.tick(t)
	for i := 1; i <= 4; i++ {
		tb.clock.Advance(time.Second)
		alice.tick(t)
		v := alice.view(t)
		if i < 4 {
			require.False(t, v.Ended, "won early at tick %d", i)
		} else {
			require.True(t, v.Ended, "did not win at tick %d", i)
			assert.Equal(t, engine.PlayerID(1), v.WinnerID)
		}
	}

	// A second threshold crossing does not produce a second win.
	tb.clock.Advance(time.Second)
	alice.tick(t)
	tb.waitAll(t, func(v View) bool { return v.WinnerName() == "alice" }, "win broadcast")
	assert.Equal(t, 4*time.Second, alice.view(t).AccumulatedHoldTime(1))
}

func TestMatch_RejectsBadConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := relay.NewRoom(ctx, "BAD001", relay.Options{})
	net, err := transport.JoinLocal(ctx, room, "a", 8, nil)
	require.NoError(t, err)

	_, err = New(ctx, net, Options{Rules: engine.Rules{TimeToWin: time.Second}, ExpectedPlayers: 1})
	require.ErrorIs(t, err, engine.ErrNoSpawnPoints)

	_, err = New(ctx, net, Options{ExpectedPlayers: 1, SpawnPoints: []engine.Vec3{{}}})
	require.ErrorIs(t, err, engine.ErrInvalidTimeToWin)
}
