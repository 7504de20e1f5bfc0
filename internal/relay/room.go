// Package relay is the session layer peers talk through. A Room numbers its
// actors, keeps the roster, and routes envelopes in the order it receives them.
package relay

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	Name   string
	Outbox chan protocol.Envelope // where this actor receives envelopes
	Reply  chan JoinResult
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	ActorID engine.PlayerID
	Roster  []protocol.Member
}

type Leave struct{ ActorID engine.PlayerID }

func (Leave) isRoomMsg() {}

// Forward routes an envelope sent by actor From.
type Forward struct {
	From engine.PlayerID
	Env  protocol.Envelope
}

func (Forward) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Code        string            `json:"code"`
	Members     []protocol.Member `json:"members"`
	AuthorityID engine.PlayerID   `json:"authority_id"`
	Buffered    int               `json:"buffered"`
	Finished    bool              `json:"finished"`
}

// Standing is one player's last replicated hold time as seen by the relay.
type Standing struct {
	ID   engine.PlayerID
	Name string
	Held time.Duration
}

type Result struct {
	Room       string
	WinnerID   engine.PlayerID
	WinnerName string
	EndedAt    time.Time
	Standings  []Standing
}

type Options struct {
	Clock    clockwork.Clock
	Logger   *zap.Logger
	OnEmpty  func(code string) // called once the last actor leaves
	OnResult func(Result)      // called when the authority announces a winner
}

type client struct {
	name   string
	outbox chan protocol.Envelope
	held   time.Duration
}

type Room struct {
	code      string
	inbox     chan Msg
	clients   map[engine.PlayerID]*client
	nextActor engine.PlayerID
	buffered  []protocol.Envelope
	finished  bool
	opts      Options
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewRoom(parent context.Context, code string, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Room{
		code:      code,
		inbox:     make(chan Msg, 256),
		clients:   make(map[engine.PlayerID]*client),
		nextActor: 1,
		opts:      opts,
		log:       opts.Logger.With(zap.String("room", code)),
		ctx:       ctx,
		cancel:    cancel,
	}

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Inbox is how transports and tests talk to the room.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) Close() { r.cancel() }

// View asks the loop for a race-free copy of the room.
func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case r.inbox <- GetState{Reply: reply}:
	case <-r.ctx.Done():
		return View{}, fmt.Errorf("room %s closed", r.code)
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, fmt.Errorf("room %s closed", r.code)
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.join(msg)

			case Leave:
				r.remove(msg.ActorID)

			case Forward:
				r.route(msg.From, msg.Env)

			case GetState:
				msg.Reply <- View{
					Code:        r.code,
					Members:     r.roster(),
					AuthorityID: protocol.ElectAuthority(r.roster()),
					Buffered:    len(r.buffered),
					Finished:    r.finished,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) join(msg Join) {
	id := r.nextActor
	r.nextActor++

	name := msg.Name
	if name == "" {
		name = fmt.Sprintf("Player %d", id)
	}
	r.clients[id] = &client{name: name, outbox: msg.Outbox}
	roster := r.roster()
	msg.Reply <- JoinResult{ActorID: id, Roster: roster}
	r.log.Info("actor joined", zap.Int("actor", int(id)), zap.String("name", name))

	welcome, err := protocol.NewEnvelope(protocol.KindWelcome, protocol.ToOne(id), true, protocol.Welcome{
		ActorID: id,
		Room:    r.code,
		Roster:  roster,
	})
	if err != nil {
		r.log.Error("encode welcome", zap.Error(err))
		return
	}
	var failed []engine.PlayerID
	if !r.deliver(id, welcome) {
		failed = append(failed, id)
	}
	for _, env := range r.buffered {
		if !r.deliver(id, env) {
			failed = append(failed, id)
			break
		}
	}
	r.dropAll(failed)
	r.broadcastRoster()
}

func (r *Room) remove(id engine.PlayerID) {
	c, ok := r.clients[id]
	if !ok {
		return
	}
	close(c.outbox)
	delete(r.clients, id)
	r.log.Info("actor left", zap.Int("actor", int(id)))

	if len(r.clients) == 0 {
		if r.opts.OnEmpty != nil {
			go r.opts.OnEmpty(r.code)
		}
		return
	}
	r.broadcastRoster()
}

func (r *Room) route(from engine.PlayerID, env protocol.Envelope) {
	if _, ok := r.clients[from]; !ok {
		return
	}
	env.From = from

	var targets []engine.PlayerID
	switch env.Route.Target {
	case protocol.TargetOne:
		targets = []engine.PlayerID{env.Route.To}
	case protocol.TargetAll:
		targets = r.ids()
	case protocol.TargetOthers:
		for _, id := range r.ids() {
			if id != from {
				targets = append(targets, id)
			}
		}
	case protocol.TargetAllBuffered:
		r.buffered = append(r.buffered, env)
		targets = r.ids()
	default:
		r.sendError(from, fmt.Sprintf("unknown target %q", env.Route.Target))
		return
	}

	r.observe(from, env)

	var failed []engine.PlayerID
	for _, id := range targets {
		if !r.deliver(id, env) {
			failed = append(failed, id)
		}
	}
	r.dropAll(failed)
}

// observe keeps what the relay needs to record a finished match.
func (r *Room) observe(from engine.PlayerID, env protocol.Envelope) {
	switch env.T {
	case protocol.KindHoldTime:
		ht, err := protocol.DecodePayload[protocol.HoldTime](env)
		if err != nil || ht.ActorID != from {
			return
		}
		r.clients[from].held = ht.Held

	case protocol.KindGameWon:
		if r.finished || from != protocol.ElectAuthority(r.roster()) {
			return
		}
		won, err := protocol.DecodePayload[protocol.GameWon](env)
		if err != nil {
			return
		}
		r.finished = true
		r.recordResult(won.WinnerID)
	}
}

func (r *Room) recordResult(winner engine.PlayerID) {
	res := Result{
		Room:     r.code,
		WinnerID: winner,
		EndedAt:  r.opts.Clock.Now(),
	}
	for _, id := range r.ids() {
		c := r.clients[id]
		if id == winner {
			res.WinnerName = c.name
		}
		res.Standings = append(res.Standings, Standing{ID: id, Name: c.name, Held: c.held})
	}
	r.log.Info("match finished", zap.Int("winner", int(winner)), zap.String("name", res.WinnerName))
	if r.opts.OnResult != nil {
		r.opts.OnResult(res)
	}
}

// deliver never blocks the loop. A full outbox loses unreliable state; for
// reliable traffic the actor is too slow to keep ordering and gets dropped.
func (r *Room) deliver(id engine.PlayerID, env protocol.Envelope) bool {
	c, ok := r.clients[id]
	if !ok {
		return true
	}
	select {
	case c.outbox <- env:
		return true
	default:
		if !env.Reliable {
			return true
		}
		r.log.Warn("dropping slow actor", zap.Int("actor", int(id)), zap.String("kind", env.T))
		return false
	}
}

func (r *Room) dropAll(ids []engine.PlayerID) {
	for _, id := range ids {
		r.remove(id)
	}
}

func (r *Room) broadcastRoster() {
	env, err := protocol.NewEnvelope(protocol.KindRoster, protocol.ToAll, true, protocol.Roster{Members: r.roster()})
	if err != nil {
		r.log.Error("encode roster", zap.Error(err))
		return
	}
	var failed []engine.PlayerID
	for _, id := range r.ids() {
		if !r.deliver(id, env) {
			failed = append(failed, id)
		}
	}
	r.dropAll(failed)
}

func (r *Room) sendError(id engine.PlayerID, message string) {
	env, err := protocol.NewEnvelope(protocol.KindError, protocol.ToOne(id), false, protocol.Error{Message: message})
	if err != nil {
		return
	}
	r.deliver(id, env)
}

func (r *Room) ids() []engine.PlayerID {
	ids := make([]engine.PlayerID, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Room) roster() []protocol.Member {
	out := make([]protocol.Member, 0, len(r.clients))
	for _, id := range r.ids() {
		out = append(out, protocol.Member{ID: id, Name: r.clients[id].name})
	}
	return out
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		close(c.outbox) // tell the actor nothing else is coming
		delete(r.clients, id)
	}
	r.cancel()
}
