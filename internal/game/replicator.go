package game

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

// StateReplicator keeps the local player's hold time and pushes it to the
// other peers. Each peer writes only its own player.
type StateReplicator struct {
	session *engine.Session
	players *engine.Registry
	net     Network
	every   uint64
	log     *zap.Logger
}

func NewStateReplicator(s *engine.Session, reg *engine.Registry, net Network, every int, log *zap.Logger) *StateReplicator {
	if every <= 0 {
		every = 1
	}
	return &StateReplicator{
		session: s,
		players: reg,
		net:     net,
		every:   uint64(every),
		log:     log.Named("replicator"),
	}
}

// Accumulate adds elapsed to the local player while it wears the hat.
func (r *StateReplicator) Accumulate(elapsed time.Duration) {
	if elapsed <= 0 || r.session.Ended {
		return
	}
	p, ok := r.players.Local()
	if !ok || !p.HasHat {
		return
	}
	p.HoldTime += elapsed
}

// Tick sends the local hold time on every n-th tick.
func (r *StateReplicator) Tick(tick uint64) {
	if tick%r.every != 0 {
		return
	}
	p, ok := r.players.Local()
	if !ok {
		return
	}
	if err := r.net.SendUnreliableState(protocol.KindHoldTime, protocol.HoldTime{ActorID: p.ID, Held: p.HoldTime}); err != nil {
		r.log.Debug("replicate hold time", zap.Error(err))
	}
}

// Apply overwrites the replica for from. Out-of-order snapshots are taken as-is;
// the next one replaces them.
func (r *StateReplicator) Apply(from engine.PlayerID, msg protocol.HoldTime) {
	if from != msg.ActorID {
		r.log.Debug("hold time for foreign actor", zap.Int("from", int(from)), zap.Int("actor", int(msg.ActorID)))
		return
	}
	p, ok := r.players.Get(from)
	if !ok || p.IsLocal {
		return
	}
	if msg.Held < 0 {
		return
	}
	p.HoldTime = msg.Held
}
