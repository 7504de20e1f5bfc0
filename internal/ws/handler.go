// Package ws serves the relay over websocket: one connection is one actor.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/hub"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
	"github.com/DoyleJ11/hat-tag-backend/internal/relay"
)

const writeTimeout = 3 * time.Second

// Handler joins ?code= (creating the room if needed) as ?name= and pumps
// envelopes both ways until either side goes away.
func Handler(h *hub.Hub, outbox int, log *zap.Logger) http.HandlerFunc {
	if outbox <= 0 {
		outbox = 128
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("name")

		reply := make(chan *relay.Room, 1)
		select {
		case h.Inbox() <- hub.EnsureRoom{Code: code, Reply: reply}:
		case <-h.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		var rm *relay.Room
		select {
		case rm = <-reply:
		case <-h.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan protocol.Envelope, outbox)
		joined := make(chan relay.JoinResult, 1)
		select {
		case rm.Inbox() <- relay.Join{Name: name, Outbox: out, Reply: joined}:
		case <-rm.Done():
			conn.Close(websocket.StatusTryAgainLater, "room closed")
			return
		}
		var id engine.PlayerID
		select {
		case res := <-joined:
			id = res.ActorID
		case <-rm.Done():
			conn.Close(websocket.StatusTryAgainLater, "room closed")
			return
		}
		log := log.With(zap.String("room", code), zap.Int("actor", int(id)))
		defer func() {
			select {
			case rm.Inbox() <- relay.Leave{ActorID: id}:
			case <-rm.Done():
			}
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for env := range out {
				payload, err := protocol.Encode(env)
				if err != nil {
					log.Error("encode envelope", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					writeCancel()
					return
				}
			}
			// The room dropped us or shut down.
			conn.Close(websocket.StatusGoingAway, "removed from room")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read", zap.Error(err))
					}
				}
				return
			}

			env, err := protocol.DecodeEnvelope(data)
			if err != nil {
				writeError(r.Context(), conn, err.Error())
				continue
			}

			select {
			case rm.Inbox() <- relay.Forward{From: id, Env: env}:
			case <-rm.Done():
				return
			case <-writeCtx.Done():
				return
			}
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, message string) {
	env, err := protocol.NewEnvelope(protocol.KindError, protocol.ToAll, false, protocol.Error{Message: message})
	if err != nil {
		return
	}
	payload, err := protocol.Encode(env)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
