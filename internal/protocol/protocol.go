// Package protocol defines the envelopes exchanged between peers and the relay.
//
// Every frame is a JSON Envelope. The relay stamps From with the sender's actor
// number before routing, so receivers can trust it. Control frames (welcome,
// roster) come from the relay itself and carry From == 0.
//
//	peer -> relay : {"t":"ready","route":{"target":"all_buffered"},"reliable":true,"p":{...}}
//	relay -> peer : {"t":"ready","from":2,"route":{...},"reliable":true,"p":{...}}
package protocol

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
)

const (
	KindWelcome         = "welcome"
	KindRoster          = "roster"
	KindReady           = "ready"
	KindInitialize      = "initialize"
	KindTransferRequest = "transfer_request"
	KindHatTransferred  = "hat_transferred"
	KindGameWon         = "game_won"
	KindHoldTime        = "hold_time"
	KindError           = "error"
)

type Target string

const (
	TargetOne         Target = "one"
	TargetAll         Target = "all"
	TargetOthers      Target = "others"
	TargetAllBuffered Target = "all_buffered"
)

type Route struct {
	Target Target          `json:"target"`
	To     engine.PlayerID `json:"to,omitempty"` // only for TargetOne
}

func ToOne(id engine.PlayerID) Route { return Route{Target: TargetOne, To: id} }

var (
	ToAll         = Route{Target: TargetAll}
	ToOthers      = Route{Target: TargetOthers}
	ToAllBuffered = Route{Target: TargetAllBuffered}
)

type Envelope struct {
	T        string          `json:"t"`
	From     engine.PlayerID `json:"from,omitempty"`
	Route    Route           `json:"route"`
	Reliable bool            `json:"reliable"`
	P        json.RawMessage `json:"p,omitempty"`
}

type Member struct {
	ID   engine.PlayerID `json:"id"`
	Name string          `json:"name"`
}

type Welcome struct {
	ActorID engine.PlayerID `json:"actor_id"`
	Room    string          `json:"room"`
	Roster  []Member        `json:"roster"`
}

type Roster struct {
	Members []Member `json:"members"`
}

type Ready struct {
	ActorID engine.PlayerID `json:"actor_id"`
}

type Initialize struct {
	ActorID engine.PlayerID `json:"actor_id"`
	Name    string          `json:"name"`
	Spawn   engine.Vec3     `json:"spawn"`
}

type TransferRequest struct {
	RequesterID     engine.PlayerID `json:"requester_id"`
	TouchedHolderID engine.PlayerID `json:"touched_holder_id"`
}

type HatTransferred struct {
	HolderID   engine.PlayerID `json:"holder_id"`
	PreviousID engine.PlayerID `json:"previous_id"`
}

type GameWon struct {
	WinnerID engine.PlayerID `json:"winner_id"`
}

type HoldTime struct {
	ActorID engine.PlayerID `json:"actor_id"`
	Held    time.Duration   `json:"held_ns"`
}

type Error struct {
	Message string `json:"message"`
}

// ElectAuthority picks the lowest actor id. Every peer derives the same answer
// from the same roster, so the role follows membership without a handoff.
func ElectAuthority(members []Member) engine.PlayerID {
	lowest := engine.NoPlayer
	for _, m := range members {
		if m.ID <= engine.NoPlayer {
			continue
		}
		if lowest == engine.NoPlayer || m.ID < lowest {
			lowest = m.ID
		}
	}
	return lowest
}

func IDs(members []Member) []engine.PlayerID {
	out := make([]engine.PlayerID, 0, len(members))
	for _, m := range members {
		out = append(out, m.ID)
	}
	return out
}
