package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

const DefaultTeardownDelay = 3 * time.Second

// WinDetector moves the match from playing to won. The check runs on the
// authority only; every peer handles the resulting broadcast.
type WinDetector struct {
	session    *engine.Session
	players    *engine.Registry
	net        Network
	clock      clockwork.Clock
	delay      time.Duration
	winnerName string
	teardownAt time.Time
	tornDown   bool
	teardown   func()
	log        *zap.Logger
}

func NewWinDetector(s *engine.Session, reg *engine.Registry, net Network, clock clockwork.Clock, delay time.Duration, teardown func(), log *zap.Logger) *WinDetector {
	if delay <= 0 {
		delay = DefaultTeardownDelay
	}
	return &WinDetector{
		session:  s,
		players:  reg,
		net:      net,
		clock:    clock,
		delay:    delay,
		teardown: teardown,
		log:      log.Named("win"),
	}
}

// Tick checks the current holder once. It fires at most once per match.
func (w *WinDetector) Tick() bool {
	if !w.net.IsAuthorityPeer() || w.session.Phase != engine.PhasePlaying {
		return false
	}
	winner, ok := engine.ReachedWin(w.session, w.players)
	if !ok {
		return false
	}

	w.session.Phase = engine.PhaseWon
	w.session.Ended = true
	w.session.WinnerID = winner
	w.log.Info("win detected", zap.Int("winner", int(winner)))

	if err := w.net.SendReliable(protocol.ToAll, protocol.KindGameWon, protocol.GameWon{WinnerID: winner}); err != nil {
		w.log.Warn("broadcast win", zap.Error(err))
	}
	return true
}

// HandleWin records the winner and schedules teardown. Duplicates are ignored.
func (w *WinDetector) HandleWin(from engine.PlayerID, msg protocol.GameWon) error {
	if from != w.net.AuthorityID() {
		return engine.ErrUntrustedSender
	}
	if !w.teardownAt.IsZero() {
		return nil
	}

	w.session.Phase = engine.PhaseWon
	w.session.Ended = true
	w.session.WinnerID = msg.WinnerID
	if p, ok := w.players.Get(msg.WinnerID); ok {
		w.winnerName = p.DisplayName
	}
	w.teardownAt = w.clock.Now().Add(w.delay)
	w.log.Info("game over", zap.String("winner", w.winnerName), zap.Time("teardown_at", w.teardownAt))
	return nil
}

// Poll runs teardown once its time has come and reports whether it did.
func (w *WinDetector) Poll(now time.Time) bool {
	if w.tornDown || w.teardownAt.IsZero() || now.Before(w.teardownAt) {
		return false
	}
	w.tornDown = true
	if w.teardown != nil {
		w.teardown()
	}
	return true
}

func (w *WinDetector) WinnerName() string { return w.winnerName }

// WinText is what the scoreboard shows once the match is decided.
func (w *WinDetector) WinText() string {
	if w.winnerName == "" {
		return ""
	}
	return w.winnerName + " wins"
}

func (w *WinDetector) TornDown() bool { return w.tornDown }
