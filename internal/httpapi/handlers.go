package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/hub"
	"github.com/DoyleJ11/hat-tag-backend/internal/relay"
	"github.com/DoyleJ11/hat-tag-backend/internal/store"
)

const maxCodeAttempts = 16

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func askHub(r *http.Request, h *hub.Hub, msg func(chan *relay.Room) hub.HubMsg) (*relay.Room, bool) {
	reply := make(chan *relay.Room, 1)
	select {
	case h.Inbox() <- msg(reply):
	case <-h.Done():
		return nil, false
	case <-r.Context().Done():
		return nil, false
	}
	select {
	case rm := <-reply:
		return rm, true
	case <-h.Done():
		return nil, false
	case <-r.Context().Done():
		return nil, false
	}
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for range maxCodeAttempts {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			rm, ok := askHub(r, h, func(reply chan *relay.Room) hub.HubMsg {
				return hub.CreateRoom{Code: code, Reply: reply}
			})
			if !ok {
				http.Error(w, "server shutting down", http.StatusServiceUnavailable)
				return
			}
			if rm == nil {
				log.Debug("collision on code, regenerating", zap.String("code", code))
				continue
			}
			writeJSON(w, http.StatusCreated, struct {
				Code string `json:"code"`
			}{Code: code})
			return
		}
		http.Error(w, "failed to create room", http.StatusInternalServerError)
	}
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []*relay.Room, 1)
		select {
		case h.Inbox() <- hub.ListRooms{Reply: reply}:
		case <-h.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		var rooms []*relay.Room
		select {
		case rooms = <-reply:
		case <-r.Context().Done():
			return
		}

		views := make([]relay.View, 0, len(rooms))
		for _, rm := range rooms {
			v, err := rm.View(r.Context())
			if err != nil {
				continue // closed since listing
			}
			views = append(views, v)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		rm, ok := askHub(r, h, func(reply chan *relay.Room) hub.HubMsg {
			return hub.GetRoom{Code: code, Reply: reply}
		})
		if !ok {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		v, err := rm.View(r.Context())
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func ListResults(results store.ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := store.DefaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		out, err := results.RecentResults(r.Context(), limit)
		if err != nil {
			http.Error(w, "failed to load results", http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []store.Result{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetResult(results store.ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "bad result id", http.StatusBadRequest)
			return
		}
		res, err := results.GetResult(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "result not found", http.StatusNotFound)
		case err != nil:
			http.Error(w, "failed to load result", http.StatusInternalServerError)
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
