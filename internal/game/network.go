// Package game holds the per-peer match components: spawn barrier, hat
// authority, win detection and hold-time replication. None of them are safe for
// concurrent use; the owning match loop serializes every call.
package game

import (
	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

// Network is the slice of the session layer the components send through.
type Network interface {
	SendReliable(route protocol.Route, kind string, payload any) error
	SendUnreliableState(kind string, payload any) error
	LocalActorID() engine.PlayerID
	IsAuthorityPeer() bool
	AuthorityID() engine.PlayerID
	PlayerRoster() []protocol.Member
}
