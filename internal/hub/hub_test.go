package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
	"github.com/DoyleJ11/hat-tag-backend/internal/relay"
	"github.com/DoyleJ11/hat-tag-backend/internal/store"
)

func newTestHub(t *testing.T, results store.ResultStore) *Hub {
	t.Helper()
	h := NewHub(context.Background(), Options{Results: results, Logger: zap.NewNop()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func ask(t *testing.T, h *Hub, build func(chan *relay.Room) HubMsg) *relay.Room {
	t.Helper()
	reply := make(chan *relay.Room, 1)
	h.Inbox() <- build(reply)
	select {
	case rm := <-reply:
		return rm
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for hub")
		return nil
	}
}

func joinRoom(t *testing.T, rm *relay.Room, name string) (engine.PlayerID, chan protocol.Envelope) {
	t.Helper()
	out := make(chan protocol.Envelope, 32)
	reply := make(chan relay.JoinResult, 1)
	rm.Inbox() <- relay.Join{Name: name, Outbox: out, Reply: reply}
	select {
	case res := <-reply:
		return res.ActorID, out
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out joining")
		return engine.NoPlayer, nil
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t, nil)

	rm1 := ask(t, h, func(r chan *relay.Room) HubMsg { return CreateRoom{Code: "ZED123", Reply: r} })
	rm2 := ask(t, h, func(r chan *relay.Room) HubMsg { return GetRoom{Code: "ZED123", Reply: r} })

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_CreateCollisionRepliesNil(t *testing.T) {
	h := newTestHub(t, nil)

	first := ask(t, h, func(r chan *relay.Room) HubMsg { return CreateRoom{Code: "AAA111", Reply: r} })
	second := ask(t, h, func(r chan *relay.Room) HubMsg { return CreateRoom{Code: "AAA111", Reply: r} })
	if first == nil || second != nil {
		t.Fatalf("want created room then nil, got %v and %v", first, second)
	}

	ensured := ask(t, h, func(r chan *relay.Room) HubMsg { return EnsureRoom{Code: "AAA111", Reply: r} })
	if ensured != first {
		t.Fatalf("ensure should return the existing room")
	}
}

func TestHub_ListRoomsSortedByCode(t *testing.T) {
	h := newTestHub(t, nil)
	for _, code := range []string{"CCC", "AAA", "BBB"} {
		ask(t, h, func(r chan *relay.Room) HubMsg { return EnsureRoom{Code: code, Reply: r} })
	}

	reply := make(chan []*relay.Room, 1)
	h.Inbox() <- ListRooms{Reply: reply}
	rooms := <-reply

	var codes []string
	for _, rm := range rooms {
		codes = append(codes, rm.Code())
	}
	require.Equal(t, []string{"AAA", "BBB", "CCC"}, codes)
}

func TestHub_EmptyRoomRemovesItself(t *testing.T) {
	h := newTestHub(t, nil)
	rm := ask(t, h, func(r chan *relay.Room) HubMsg { return EnsureRoom{Code: "BYE000", Reply: r} })

	id, _ := joinRoom(t, rm, "alice")
	rm.Inbox() <- relay.Leave{ActorID: id}

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("empty room was not closed")
	}
	got := ask(t, h, func(r chan *relay.Room) HubMsg { return GetRoom{Code: "BYE000", Reply: r} })
	if got != nil {
		t.Fatalf("expected room to be removed from the hub")
	}
}

func TestHub_RemoveIgnoresReplacedRoom(t *testing.T) {
	h := newTestHub(t, nil)
	rm := ask(t, h, func(r chan *relay.Room) HubMsg { return EnsureRoom{Code: "KEEP00", Reply: r} })

	stale := relay.NewRoom(context.Background(), "KEEP00", relay.Options{})
	defer stale.Close()
	h.Inbox() <- RemoveRoom{Code: "KEEP00", Room: stale}

	got := ask(t, h, func(r chan *relay.Room) HubMsg { return GetRoom{Code: "KEEP00", Reply: r} })
	if got != rm {
		t.Fatalf("a stale remove must not drop the live room")
	}
}

func TestHub_RecordsAuthorityWin(t *testing.T) {
	results := store.NewMemory()
	h := newTestHub(t, results)
	rm := ask(t, h, func(r chan *relay.Room) HubMsg { return EnsureRoom{Code: "WIN000", Reply: r} })

	a, _ := joinRoom(t, rm, "alice")
	b, _ := joinRoom(t, rm, "bob")

	held, err := protocol.NewEnvelope(protocol.KindHoldTime, protocol.ToOthers, false, protocol.HoldTime{ActorID: b, Held: 4 * time.Second})
	require.NoError(t, err)
	rm.Inbox() <- relay.Forward{From: b, Env: held}

	won, err := protocol.NewEnvelope(protocol.KindGameWon, protocol.ToAll, true, protocol.GameWon{WinnerID: b})
	require.NoError(t, err)
	rm.Inbox() <- relay.Forward{From: a, Env: won}

	var got []store.Result
	require.Eventually(t, func() bool {
		got, _ = results.RecentResults(context.Background(), 10)
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	res := got[0]
	require.Equal(t, "WIN000", res.Room)
	require.Equal(t, int(b), res.WinnerID)
	require.Equal(t, "bob", res.WinnerName)
	require.Equal(t, []store.Standing{
		{PlayerID: int(a), Name: "alice"},
		{PlayerID: int(b), Name: "bob", Held: 4 * time.Second},
	}, res.Standings)
}

func TestHub_ShutdownClosesRooms(t *testing.T) {
	h := NewHub(context.Background(), Options{})
	rm := ask(t, h, func(r chan *relay.Room) HubMsg { return EnsureRoom{Code: "END000", Reply: r} })
	_, out := joinRoom(t, rm, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}
	for range out {
		// drain until the room closes the outbox
	}
}
