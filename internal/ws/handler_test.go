package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/hub"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
	"github.com/DoyleJ11/hat-tag-backend/internal/transport"
)

func newRelay(t *testing.T) string {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Options{})
	r := chi.NewRouter()
	r.Get("/ws", Handler(h, 32, zap.NewNop()))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func recvKind(t *testing.T, w *transport.WS, kind string) protocol.Envelope {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case env, ok := <-w.Inbound():
			require.True(t, ok, "inbound closed")
			if env.T == kind {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return protocol.Envelope{}
		}
	}
}

func TestHandler_MissingCode(t *testing.T) {
	h := hub.NewHub(context.Background(), hub.Options{})
	defer func() { _ = h.Shutdown(context.Background()) }()

	rec := httptest.NewRecorder()
	Handler(h, 0, nil)(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_TwoPeersExchangeEnvelopes(t *testing.T) {
	url := newRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := transport.Dial(ctx, url, "WS0001", "alice", 32, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	b, err := transport.Dial(ctx, url, "WS0001", "bob", 32, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, engine.PlayerID(1), a.LocalActorID())
	assert.Equal(t, engine.PlayerID(2), b.LocalActorID())
	require.Eventually(t, func() bool { return len(a.PlayerRoster()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, a.IsAuthorityPeer())
	assert.Equal(t, engine.PlayerID(1), b.AuthorityID())

	require.NoError(t, b.SendReliable(protocol.ToOne(1), protocol.KindTransferRequest,
		protocol.TransferRequest{RequesterID: 2, TouchedHolderID: 1}))
	env := recvKind(t, a, protocol.KindTransferRequest)
	assert.Equal(t, engine.PlayerID(2), env.From, "relay stamps the sender")

	req, err := protocol.DecodePayload[protocol.TransferRequest](env)
	require.NoError(t, err)
	assert.Equal(t, engine.PlayerID(1), req.TouchedHolderID)
}

func TestHandler_LeaveMovesAuthority(t *testing.T) {
	url := newRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := transport.Dial(ctx, url, "WS0002", "alice", 32, zap.NewNop())
	require.NoError(t, err)
	b, err := transport.Dial(ctx, url, "WS0002", "bob", 32, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Close())
	require.Eventually(t, b.IsAuthorityPeer, 2*time.Second, 10*time.Millisecond)
}
