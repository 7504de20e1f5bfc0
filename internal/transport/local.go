package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
	"github.com/DoyleJ11/hat-tag-backend/internal/relay"
)

// Local attaches a peer to a room in the same process.
type Local struct {
	membership
	room      *relay.Room
	inbound   chan protocol.Envelope
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	log       *zap.Logger
}

func JoinLocal(parent context.Context, room *relay.Room, name string, buffer int, log *zap.Logger) (*Local, error) {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	outbox := make(chan protocol.Envelope, buffer)
	reply := make(chan relay.JoinResult, 1)
	select {
	case room.Inbox() <- relay.Join{Name: name, Outbox: outbox, Reply: reply}:
	case <-room.Done():
		cancel()
		return nil, fmt.Errorf("join %s: %w", room.Code(), ErrClosed)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	var res relay.JoinResult
	select {
	case res = <-reply:
	case <-room.Done():
		cancel()
		return nil, fmt.Errorf("join %s: %w", room.Code(), ErrClosed)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	l := &Local{
		room:    room,
		inbound: make(chan protocol.Envelope, buffer),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With(zap.Int("actor", int(res.ActorID))),
	}
	l.set(res.ActorID, room.Code(), res.Roster)
	go l.pump(outbox)
	return l, nil
}

func (l *Local) pump(outbox <-chan protocol.Envelope) {
	defer close(l.inbound)
	for env := range outbox {
		if l.applyControl(env) {
			continue
		}
		select {
		case l.inbound <- env:
		case <-l.ctx.Done():
			// keep draining so the room never sees a stuck outbox
		}
	}
}

func (l *Local) Inbound() <-chan protocol.Envelope { return l.inbound }

func (l *Local) SendReliable(route protocol.Route, kind string, payload any) error {
	return l.send(route, kind, true, payload)
}

func (l *Local) SendUnreliableState(kind string, payload any) error {
	return l.send(protocol.ToOthers, kind, false, payload)
}

func (l *Local) send(route protocol.Route, kind string, reliable bool, payload any) error {
	env, err := protocol.NewEnvelope(kind, route, reliable, payload)
	if err != nil {
		return err
	}
	select {
	case <-l.room.Done():
		return ErrClosed
	case <-l.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case l.room.Inbox() <- relay.Forward{From: l.LocalActorID(), Env: env}:
		return nil
	case <-l.room.Done():
		return ErrClosed
	case <-l.ctx.Done():
		return ErrClosed
	}
}

// Close leaves the room. The inbound channel closes once the room lets go.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		id := l.LocalActorID()
		l.cancel()
		select {
		case l.room.Inbox() <- relay.Leave{ActorID: id}:
		case <-l.room.Done():
		}
		l.log.Debug("left room", zap.Int("actor", int(id)))
	})
	return nil
}
