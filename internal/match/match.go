// Package match runs one peer's side of a game. A single goroutine owns all
// match state and drains local commands, relay envelopes and simulation ticks
// one at a time, so no component needs a lock.
package match

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/game"
	"github.com/DoyleJ11/hat-tag-backend/internal/presence"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

var ErrClosed = errors.New("match closed")

// Transport is the session layer a match runs on.
type Transport interface {
	game.Network
	Inbound() <-chan protocol.Envelope
	Close() error
}

type Msg interface{ isMatchMsg() }

// TryTransfer is raised by the movement side when the local player touches the holder.
type TryTransfer struct {
	RequesterID     engine.PlayerID
	TouchedHolderID engine.PlayerID
}

func (TryTransfer) isMatchMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isMatchMsg() {}

type Shutdown struct{}

func (Shutdown) isMatchMsg() {}

type Options struct {
	Rules           engine.Rules
	ExpectedPlayers int
	SpawnPoints     []engine.Vec3
	TickRate        int // simulation ticks per second
	ReplicateEvery  int // send hold time every n ticks
	TeardownDelay   time.Duration
	Clock           clockwork.Clock
	Ticks           <-chan time.Time // overrides the clock ticker when set
	Rand            *rand.Rand
	Logger          *zap.Logger
	OnTeardown      func(View) // leave-room follow-up, e.g. back to the menu
}

func (o Options) withDefaults() Options {
	if o.TickRate <= 0 {
		o.TickRate = 50
	}
	if o.ReplicateEvery <= 0 {
		o.ReplicateEvery = 5
	}
	if o.TeardownDelay <= 0 {
		o.TeardownDelay = game.DefaultTeardownDelay
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type Match struct {
	inbox    chan Msg
	net      Transport
	opts     Options
	session  *engine.Session
	players  *engine.Registry
	presence *presence.Directory
	hat      *game.HatAuthority
	spawn    *game.SpawnCoordinator
	win      *game.WinDetector
	repl     *game.StateReplicator
	tick     uint64
	lastTick time.Time
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds the components and starts the loop. Configuration problems are
// returned before anything is sent.
func New(parent context.Context, net Transport, opts Options) (*Match, error) {
	opts = opts.withDefaults()

	s, err := engine.NewSession(opts.ExpectedPlayers, opts.Rules)
	if err != nil {
		return nil, err
	}
	reg := engine.NewRegistry(opts.ExpectedPlayers)
	dir := presence.NewDirectory(opts.ExpectedPlayers)
	log := opts.Logger.With(zap.Int("actor", int(net.LocalActorID())))

	ctx, cancel := context.WithCancel(parent)
	m := &Match{
		inbox:    make(chan Msg, 64),
		net:      net,
		opts:     opts,
		session:  s,
		players:  reg,
		presence: dir,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.hat = game.NewHatAuthority(s, reg, net, opts.Clock, log)
	m.spawn, err = game.NewSpawnCoordinator(s, reg, dir, m.hat, net, opts.Rand, opts.SpawnPoints, log)
	if err != nil {
		cancel()
		return nil, err
	}
	m.win = game.NewWinDetector(s, reg, net, opts.Clock, opts.TeardownDelay, m.teardown, log)
	m.repl = game.NewStateReplicator(s, reg, net, opts.ReplicateEvery, log)

	ticks, stop := opts.Ticks, func() {}
	if ticks == nil {
		t := opts.Clock.NewTicker(time.Second / time.Duration(opts.TickRate))
		ticks, stop = t.Chan(), t.Stop
	}

	go m.loop(ticks, stop)
	return m, nil
}

func (m *Match) Inbox() chan<- Msg { return m.inbox }

func (m *Match) Done() <-chan struct{} { return m.done }

// TryTransfer is fire-and-forget; rejections are never reported back.
func (m *Match) TryTransfer(requester, touched engine.PlayerID) {
	select {
	case m.inbox <- TryTransfer{RequesterID: requester, TouchedHolderID: touched}:
	case <-m.ctx.Done():
	}
}

func (m *Match) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case m.inbox <- GetState{Reply: reply}:
	case <-m.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-m.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close stops the loop without leaving the room.
func (m *Match) Close() {
	m.cancel()
	<-m.done
}

func (m *Match) loop(ticks <-chan time.Time, stopTicks func()) {
	defer close(m.done)
	defer stopTicks()

	if err := m.spawn.AnnounceReady(); err != nil {
		m.log.Error("announce ready", zap.Error(err))
	}

	inbound := m.net.Inbound()
	for {
		select {
		case <-m.ctx.Done():
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case TryTransfer:
				if err := m.hat.TryTransfer(msg.RequesterID, msg.TouchedHolderID); err != nil {
					m.log.Debug("transfer not sent", zap.Error(err))
				}

			case GetState:
				msg.Reply <- m.view()

			case Shutdown:
				m.cancel()
				return
			}

		case env, ok := <-inbound:
			if !ok {
				m.log.Info("transport closed")
				m.cancel()
				return
			}
			m.handle(env)

		case <-ticks:
			m.step()
		}
	}
}

// step is one simulation tick: accumulate, judge, replicate, then teardown.
func (m *Match) step() {
	now := m.opts.Clock.Now()
	if !m.lastTick.IsZero() {
		m.repl.Accumulate(now.Sub(m.lastTick))
	}
	m.lastTick = now
	m.tick++

	m.win.Tick()
	m.repl.Tick(m.tick)
	m.win.Poll(now)
}

func (m *Match) handle(env protocol.Envelope) {
	var err error
	switch env.T {
	case protocol.KindReady:
		m.spawn.MarkReady(env.From)

	case protocol.KindInitialize:
		var msg protocol.Initialize
		if msg, err = protocol.DecodePayload[protocol.Initialize](env); err == nil {
			err = m.spawn.Initialize(env.From, msg)
		}

	case protocol.KindTransferRequest:
		var msg protocol.TransferRequest
		if msg, err = protocol.DecodePayload[protocol.TransferRequest](env); err == nil {
			err = m.hat.RequestTransfer(env.From, engine.TransferRequest{
				RequesterID:     msg.RequesterID,
				TouchedHolderID: msg.TouchedHolderID,
			})
		}

	case protocol.KindHatTransferred:
		var msg protocol.HatTransferred
		if msg, err = protocol.DecodePayload[protocol.HatTransferred](env); err == nil {
			err = m.hat.ApplyTransfer(env.From, msg)
		}

	case protocol.KindGameWon:
		var msg protocol.GameWon
		if msg, err = protocol.DecodePayload[protocol.GameWon](env); err == nil {
			err = m.win.HandleWin(env.From, msg)
		}

	case protocol.KindHoldTime:
		var msg protocol.HoldTime
		if msg, err = protocol.DecodePayload[protocol.HoldTime](env); err == nil {
			m.repl.Apply(env.From, msg)
		}

	case protocol.KindError:
		if msg, derr := protocol.DecodePayload[protocol.Error](env); derr == nil {
			m.log.Warn("relay error", zap.String("message", msg.Message))
		}

	default:
		m.log.Debug("unknown envelope", zap.String("kind", env.T))
	}

	if err != nil {
		m.log.Debug("envelope dropped", zap.String("kind", env.T), zap.Int("from", int(env.From)), zap.Error(err))
	}
}

// teardown leaves the room once the post-win delay has passed.
func (m *Match) teardown() {
	v := m.view()
	if err := m.net.Close(); err != nil {
		m.log.Warn("leave room", zap.Error(err))
	}
	m.log.Info("match torn down", zap.String("winner", v.Winner))
	if m.opts.OnTeardown != nil {
		m.opts.OnTeardown(v)
	}
	m.cancel()
}
