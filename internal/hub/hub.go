// Package hub owns every relay room on the server, keyed by join code.
package hub

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/relay"
	"github.com/DoyleJ11/hat-tag-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom replies nil when the code is already taken.
type CreateRoom struct {
	Code  string
	Reply chan *relay.Room
}

type GetRoom struct {
	Code  string
	Reply chan *relay.Room
}

type EnsureRoom struct {
	Code  string
	Reply chan *relay.Room
}

// RemoveRoom only removes Room if it is still the one registered under Code.
type RemoveRoom struct {
	Code string
	Room *relay.Room
}

type ListRooms struct {
	Reply chan []*relay.Room
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Results     store.ResultStore // nil keeps results in the log only
	SaveTimeout time.Duration
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*relay.Room
	opts   Options
	log    *zap.Logger
	saves  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*relay.Room),
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Shutdown closes every room and waits for pending result writes.
func (h *Hub) Shutdown(ctx context.Context) error {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		h.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.rooms[msg.Code] != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.newRoom(msg.Code)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.newRoom(msg.Code)

			case RemoveRoom:
				if rm := h.rooms[msg.Code]; rm != nil && rm == msg.Room {
					delete(h.rooms, msg.Code)
					rm.Close()
					h.log.Info("room removed", zap.String("room", msg.Code))
				}

			case ListRooms:
				out := make([]*relay.Room, 0, len(h.rooms))
				for _, rm := range h.rooms {
					out = append(out, rm)
				}
				slices.SortFunc(out, func(a, b *relay.Room) int { return strings.Compare(a.Code(), b.Code()) })
				msg.Reply <- out

			case ShutdownHub:
				h.closeAll()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) newRoom(code string) *relay.Room {
	var rm *relay.Room
	rm = relay.NewRoom(h.ctx, code, relay.Options{
		Clock:  h.opts.Clock,
		Logger: h.log,
		OnEmpty: func(code string) {
			select {
			case h.inbox <- RemoveRoom{Code: code, Room: rm}:
			case <-h.ctx.Done():
			}
		},
		OnResult: h.record,
	})
	h.rooms[code] = rm
	h.log.Info("room created", zap.String("room", code))
	return rm
}

func (h *Hub) closeAll() {
	for code, rm := range h.rooms {
		select {
		case rm.Inbox() <- relay.Shutdown{}:
		case <-rm.Done():
		}
		delete(h.rooms, code)
	}
}

// record runs on the room's loop, so the write happens elsewhere.
func (h *Hub) record(res relay.Result) {
	if h.opts.Results == nil {
		return
	}
	h.saves.Add(1)
	go func() {
		defer h.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.SaveTimeout)
		defer cancel()
		saved, err := h.opts.Results.SaveResult(ctx, toStoreResult(res))
		if err != nil {
			h.log.Error("save result", zap.String("room", res.Room), zap.Error(err))
			return
		}
		h.log.Info("result saved", zap.String("room", res.Room), zap.Stringer("id", saved.ID))
	}()
}

func toStoreResult(res relay.Result) store.Result {
	out := store.Result{
		Room:       res.Room,
		WinnerID:   int(res.WinnerID),
		WinnerName: res.WinnerName,
		EndedAt:    res.EndedAt,
	}
	for _, s := range res.Standings {
		out.Standings = append(out.Standings, store.Standing{PlayerID: int(s.ID), Name: s.Name, Held: s.Held})
	}
	return out
}
