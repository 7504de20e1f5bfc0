package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

// HatAuthority owns the holder and decides transfers. Only the authority peer
// judges requests; every other peer replaces its holder from the broadcasts.
type HatAuthority struct {
	session *engine.Session
	players *engine.Registry
	net     Network
	clock   clockwork.Clock
	log     *zap.Logger
}

func NewHatAuthority(s *engine.Session, reg *engine.Registry, net Network, clock clockwork.Clock, log *zap.Logger) *HatAuthority {
	return &HatAuthority{
		session: s,
		players: reg,
		net:     net,
		clock:   clock,
		log:     log.Named("hat"),
	}
}

func (h *HatAuthority) CanTransfer(now time.Time) bool {
	return h.session.CanTransfer(now)
}

func (h *HatAuthority) CurrentHolder() engine.PlayerID { return h.session.HolderID }

func (h *HatAuthority) IsHolder(id engine.PlayerID) bool {
	return id != engine.NoPlayer && h.session.HolderID == id
}

// InitialGrant hands out the hat at match start. Nobody is revoked.
func (h *HatAuthority) InitialGrant(id engine.PlayerID) error {
	if err := engine.Grant(h.session, h.players, id, h.clock.Now(), true); err != nil {
		return err
	}
	h.session.Phase = engine.PhasePlaying
	h.log.Info("initial hat grant", zap.Int("holder", int(id)))
	return nil
}

// TryTransfer is called by the input side when the local player touches
// touched. Requests against a holder we already know is gone are dropped here;
// the rest go to the authority.
func (h *HatAuthority) TryTransfer(requester, touched engine.PlayerID) error {
	if h.session.Ended {
		return engine.ErrGameEnded
	}
	if touched == engine.NoPlayer || touched != h.session.HolderID {
		return engine.ErrStaleRequest
	}
	req := engine.TransferRequest{RequesterID: requester, TouchedHolderID: touched}
	if h.net.IsAuthorityPeer() {
		return h.RequestTransfer(h.net.LocalActorID(), req)
	}
	return h.net.SendReliable(protocol.ToOne(h.net.AuthorityID()), protocol.KindTransferRequest, protocol.TransferRequest{
		RequesterID:     requester,
		TouchedHolderID: touched,
	})
}

// RequestTransfer judges one request on the authority peer. Rejections leave
// state untouched and send nothing.
func (h *HatAuthority) RequestTransfer(from engine.PlayerID, req engine.TransferRequest) error {
	if !h.net.IsAuthorityPeer() {
		return engine.ErrNotAuthority
	}
	now := h.clock.Now()
	if err := engine.ValidateTransfer(h.session, h.players, from, req, now); err != nil {
		h.log.Debug("transfer rejected",
			zap.Int("from", int(from)),
			zap.Int("requester", int(req.RequesterID)),
			zap.Int("touched", int(req.TouchedHolderID)),
			zap.Error(err))
		return err
	}

	prev := h.session.HolderID
	if err := engine.Grant(h.session, h.players, req.RequesterID, now, false); err != nil {
		return err
	}
	h.log.Info("hat transferred", zap.Int("from", int(prev)), zap.Int("to", int(req.RequesterID)))

	// State already moved; a lost broadcast leaves the others behind until the next transfer.
	if err := h.net.SendReliable(protocol.ToOthers, protocol.KindHatTransferred, protocol.HatTransferred{
		HolderID:   req.RequesterID,
		PreviousID: prev,
	}); err != nil {
		h.log.Warn("broadcast transfer", zap.Error(err))
	}
	return nil
}

// ApplyTransfer replaces the local holder with the authority's decision.
func (h *HatAuthority) ApplyTransfer(from engine.PlayerID, msg protocol.HatTransferred) error {
	if from != h.net.AuthorityID() {
		h.log.Warn("ignoring transfer from non-authority", zap.Int("from", int(from)))
		return engine.ErrUntrustedSender
	}
	initial := h.session.HolderID == engine.NoPlayer
	if err := engine.Grant(h.session, h.players, msg.HolderID, h.clock.Now(), initial); err != nil {
		h.log.Warn("apply transfer", zap.Int("holder", int(msg.HolderID)), zap.Error(err))
		return err
	}
	if initial {
		h.session.Phase = engine.PhasePlaying
	}
	return nil
}
