package engine

import (
	"errors"
	"time"
)

var ErrStaleRequest = errors.New("stale transfer request")
var ErrHolderImmune = errors.New("holder is immune")
var ErrGameEnded = errors.New("game already ended")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrSpoofedRequest = errors.New("requester does not match sender")
var ErrAlreadyHolder = errors.New("requester already holds the hat")
var ErrNotAuthority = errors.New("not the authority peer")
var ErrUntrustedSender = errors.New("message not sent by the authority")
var ErrNoSpawnPoints = errors.New("no spawn points configured")
var ErrInvalidTimeToWin = errors.New("time to win must be positive")
var ErrInvalidInvincibility = errors.New("invincible duration must not be negative")
var ErrInvalidPlayerCount = errors.New("expected player count must be positive")

// PlayerID is the relay's actor number. Ids start at 1 and are never reused within a room.
type PlayerID int

const NoPlayer PlayerID = 0

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhasePlaying Phase = "playing"
	PhaseWon     Phase = "won"
)

type Rules struct {
	TimeToWin          time.Duration
	InvincibleDuration time.Duration
}

// Session is one peer's replica of the shared match state. Only the authority
// peer's copy of HolderID/HolderSince is used to judge transfers.
type Session struct {
	ExpectedPlayerCount int
	Rules               Rules
	Phase               Phase
	Ended               bool
	HolderID            PlayerID
	HolderSince         time.Time
	WinnerID            PlayerID
}

type Player struct {
	ID          PlayerID
	DisplayName string
	HoldTime    time.Duration
	HasHat      bool
	IsLocal     bool
	Spawn       Vec3
}

// TransferRequest is sent by a peer whose player touched the holder.
type TransferRequest struct {
	RequesterID     PlayerID
	TouchedHolderID PlayerID
}

// CanTransfer reports whether the current holder's immunity has run out.
func (s *Session) CanTransfer(now time.Time) bool {
	return now.After(s.HolderSince.Add(s.Rules.InvincibleDuration))
}

// ValidateTransfer checks a request against the local replica. from is the
// actor the relay stamped on the envelope.
func ValidateTransfer(s *Session, reg *Registry, from PlayerID, req TransferRequest, now time.Time) error {
	if s.Ended {
		return ErrGameEnded
	}
	if from != req.RequesterID {
		return ErrSpoofedRequest
	}
	if _, ok := reg.Get(req.RequesterID); !ok {
		return ErrUnknownPlayer
	}
	if s.HolderID == NoPlayer || req.TouchedHolderID != s.HolderID {
		return ErrStaleRequest
	}
	if req.RequesterID == s.HolderID {
		return ErrAlreadyHolder
	}
	if !s.CanTransfer(now) {
		return ErrHolderImmune
	}
	return nil
}

// Grant moves the hat to id. The previous holder is revoked unless initial is set.
func Grant(s *Session, reg *Registry, id PlayerID, now time.Time, initial bool) error {
	next, ok := reg.Get(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if !initial {
		if prev, ok := reg.Get(s.HolderID); ok {
			prev.HasHat = false
		}
	}
	next.HasHat = true
	s.HolderID = id
	s.HolderSince = now
	return nil
}

// ReachedWin reports whether the current holder has held the hat long enough.
func ReachedWin(s *Session, reg *Registry) (PlayerID, bool) {
	if s.Ended || s.HolderID == NoPlayer {
		return NoPlayer, false
	}
	p, ok := reg.Get(s.HolderID)
	if !ok {
		return NoPlayer, false
	}
	return p.ID, p.HoldTime >= s.Rules.TimeToWin
}
