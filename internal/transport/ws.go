package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

const (
	writeTimeout   = 3 * time.Second
	welcomeTimeout = 10 * time.Second
)

// WS is a peer's connection to a relay served over websocket.
type WS struct {
	membership
	conn      *websocket.Conn
	inbound   chan protocol.Envelope
	reliable  chan []byte
	state     chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	log       *zap.Logger
}

// Dial joins room code on the relay at base (ws://host:port/ws) and waits for
// the welcome frame so the actor id is known before returning.
func Dial(parent context.Context, base, code, name string, buffer int, log *zap.Logger) (*WS, error) {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(parent, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	wctx, wcancel := context.WithTimeout(parent, welcomeTimeout)
	defer wcancel()
	_, data, err := conn.Read(wctx)
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "no welcome")
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil || env.T != protocol.KindWelcome {
		conn.Close(websocket.StatusProtocolError, "expected welcome")
		return nil, fmt.Errorf("first frame %q is not a welcome", env.T)
	}

	ctx, cancel := context.WithCancel(parent)
	w := &WS{
		conn:     conn,
		inbound:  make(chan protocol.Envelope, buffer),
		reliable: make(chan []byte, buffer),
		state:    make(chan []byte, buffer),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
	w.applyControl(env)
	w.log = log.With(zap.Int("actor", int(w.LocalActorID())), zap.String("room", code))

	go w.readLoop()
	go w.writeLoop()
	return w, nil
}

func (w *WS) Inbound() <-chan protocol.Envelope { return w.inbound }

func (w *WS) readLoop() {
	defer close(w.inbound)
	defer w.cancel()
	for {
		_, data, err := w.conn.Read(w.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					w.log.Warn("relay read", zap.Error(err))
				}
			}
			return
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			w.log.Debug("bad frame from relay", zap.Error(err))
			continue
		}
		if w.applyControl(env) {
			continue
		}
		select {
		case w.inbound <- env:
		case <-w.ctx.Done():
			return
		}
	}
}

// writeLoop drains reliable frames first so state updates never delay them.
func (w *WS) writeLoop() {
	for {
		var frame []byte
		select {
		case <-w.ctx.Done():
			return
		case frame = <-w.reliable:
		default:
			select {
			case <-w.ctx.Done():
				return
			case frame = <-w.reliable:
			case frame = <-w.state:
			}
		}
		ctx, cancel := context.WithTimeout(w.ctx, writeTimeout)
		err := w.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			w.log.Warn("relay write", zap.Error(err))
			w.cancel()
			return
		}
	}
}

func (w *WS) encode(route protocol.Route, kind string, reliable bool, payload any) ([]byte, error) {
	env, err := protocol.NewEnvelope(kind, route, reliable, payload)
	if err != nil {
		return nil, err
	}
	return protocol.Encode(env)
}

func (w *WS) SendReliable(route protocol.Route, kind string, payload any) error {
	b, err := w.encode(route, kind, true, payload)
	if err != nil {
		return err
	}
	select {
	case w.reliable <- b:
		return nil
	case <-w.ctx.Done():
		return ErrClosed
	}
}

// SendUnreliableState drops the frame when the writer is behind.
func (w *WS) SendUnreliableState(kind string, payload any) error {
	b, err := w.encode(protocol.ToOthers, kind, false, payload)
	if err != nil {
		return err
	}
	select {
	case w.state <- b:
		return nil
	case <-w.ctx.Done():
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

func (w *WS) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.conn.Close(websocket.StatusNormalClosure, "leave")
		w.cancel()
	})
	return err
}
