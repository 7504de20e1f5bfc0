package match

import (
	"time"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
)

type PlayerView struct {
	ID       engine.PlayerID `json:"id"`
	Name     string          `json:"name"`
	HoldTime time.Duration   `json:"hold_time"`
	HasHat   bool            `json:"has_hat"`
	IsLocal  bool            `json:"is_local"`
}

// View is a copy of one peer's replica, safe to read from any goroutine.
type View struct {
	LocalID     engine.PlayerID `json:"local_id"`
	AuthorityID engine.PlayerID `json:"authority_id"`
	Phase       engine.Phase    `json:"phase"`
	Ended       bool            `json:"ended"`
	HolderID    engine.PlayerID `json:"holder_id"`
	WinnerID    engine.PlayerID `json:"winner_id"`
	Winner      string          `json:"winner"`
	WinText     string          `json:"win_text"`
	TimeToWin   time.Duration   `json:"time_to_win"`
	Ready       int             `json:"ready"`
	Expected    int             `json:"expected"`
	Tick        uint64          `json:"tick"`
	TornDown    bool            `json:"torn_down"`
	Players     []PlayerView    `json:"players"`
}

func (m *Match) view() View {
	v := View{
		LocalID:     m.net.LocalActorID(),
		AuthorityID: m.net.AuthorityID(),
		Phase:       m.session.Phase,
		Ended:       m.session.Ended,
		HolderID:    m.session.HolderID,
		WinnerID:    m.session.WinnerID,
		Winner:      m.win.WinnerName(),
		WinText:     m.win.WinText(),
		TimeToWin:   m.session.Rules.TimeToWin,
		Ready:       m.presence.Count(),
		Expected:    m.presence.Expected(),
		Tick:        m.tick,
		TornDown:    m.win.TornDown(),
	}
	for _, p := range m.players.Players() {
		v.Players = append(v.Players, PlayerView{
			ID:       p.ID,
			Name:     p.DisplayName,
			HoldTime: p.HoldTime,
			HasHat:   p.HasHat,
			IsLocal:  p.IsLocal,
		})
	}
	return v
}

func (v View) CurrentHolder() engine.PlayerID { return v.HolderID }

func (v View) IsHolder(id engine.PlayerID) bool {
	return id != engine.NoPlayer && v.HolderID == id
}

func (v View) AccumulatedHoldTime(id engine.PlayerID) time.Duration {
	for _, p := range v.Players {
		if p.ID == id {
			return p.HoldTime
		}
	}
	return 0
}

func (v View) GameEnded() bool { return v.Ended }

// WinnerName is empty until the win broadcast has been received.
func (v View) WinnerName() string { return v.Winner }

func (v View) Spawned() bool { return len(v.Players) > 0 }
