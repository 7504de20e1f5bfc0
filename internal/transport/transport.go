// Package transport connects a peer to a relay room, either in-process or over
// a websocket. Both keep the roster current from the relay's control frames and
// derive the authority from it on every call.
package transport

import (
	"errors"
	"sync"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

var ErrClosed = errors.New("transport closed")
var ErrBackpressure = errors.New("send buffer full")

// membership is the roster view shared by the receive pump and the match loop.
type membership struct {
	mu     sync.RWMutex
	local  engine.PlayerID
	room   string
	roster []protocol.Member
}

func (m *membership) set(local engine.PlayerID, room string, roster []protocol.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local = local
	m.room = room
	m.roster = append([]protocol.Member(nil), roster...)
}

func (m *membership) setRoster(roster []protocol.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = append([]protocol.Member(nil), roster...)
}

// applyControl consumes relay control frames and reports whether env was one.
func (m *membership) applyControl(env protocol.Envelope) bool {
	switch env.T {
	case protocol.KindWelcome:
		if w, err := protocol.DecodePayload[protocol.Welcome](env); err == nil {
			m.set(w.ActorID, w.Room, w.Roster)
		}
		return true
	case protocol.KindRoster:
		if r, err := protocol.DecodePayload[protocol.Roster](env); err == nil {
			m.setRoster(r.Members)
		}
		return true
	}
	return false
}

func (m *membership) LocalActorID() engine.PlayerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.local
}

func (m *membership) Room() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.room
}

func (m *membership) PlayerRoster() []protocol.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]protocol.Member(nil), m.roster...)
}

func (m *membership) AuthorityID() engine.PlayerID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return protocol.ElectAuthority(m.roster)
}

func (m *membership) IsAuthorityPeer() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.local != engine.NoPlayer && protocol.ElectAuthority(m.roster) == m.local
}
