package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/engine"
	"github.com/DoyleJ11/wordhex-backend/internal/hub"
	"github.com/DoyleJ11/wordhex-backend/internal/lobby"
)

type sessionReq struct {
	Name string `json:"name"`
}

type sessionRes struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

// CreateSession issues a guest identity. Without a signing secret the
// player id doubles as the token.
func CreateSession(iss *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionReq
		_ = json.NewDecoder(r.Body).Decode(&req)

		var res sessionRes
		if iss.Enabled() {
			id, tok, err := iss.Guest(req.Name)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to issue token")
				return
			}
			res = sessionRes{PlayerID: id, Token: tok}
		} else {
			id := uuid.NewString()
			res = sessionRes{PlayerID: id, Token: id}
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

type seatView struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
	Ready    bool   `json:"ready"`
	Host     bool   `json:"host"`
}

type matchView struct {
	Phase  engine.Phase   `json:"phase"`
	Round  int            `json:"round"`
	Turn   string         `json:"turn,omitempty"`
	Scores map[string]int `json:"scores"`
	Board  [][]string     `json:"board,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

type lobbyView struct {
	Code    string      `json:"code"`
	State   lobby.State `json:"state"`
	Version int         `json:"version"`
	Online  int         `json:"online"`
	Seats   []*seatView `json:"seats"`
	Match   *matchView  `json:"match,omitempty"`
}

// GetLobby returns the current snapshot of a lobby.
func GetLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil || lb == nil {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		reply := make(chan lobby.View, 1)
		if !lb.Send(lobby.GetState{Reply: reply}) {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		var v lobby.View
		select {
		case v = <-reply:
		case <-lb.Done():
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		case <-time.After(2 * time.Second):
			writeError(w, http.StatusServiceUnavailable, "lobby busy")
			return
		}
		writeJSON(w, http.StatusOK, toLobbyView(v))
	}
}

func toLobbyView(v lobby.View) lobbyView {
	out := lobbyView{Code: v.Code, State: v.State, Version: v.Version, Online: v.NumClients, Seats: make([]*seatView, lobby.Capacity)}
	for i, s := range v.Seats {
		if s != nil {
			out.Seats[i] = &seatView{PlayerID: s.PlayerID, Name: s.Name, Ready: s.Ready, Host: i == 0}
		}
	}
	if m := v.Match; m != nil {
		mv := &matchView{Phase: m.Phase, Round: m.Round, Scores: m.Scores, Reason: m.EndReason}
		if m.Board != nil {
			mv.Board = m.Board.Letters()
		}
		if m.Phase == engine.PhaseActive {
			mv.Turn = engine.CurrentPlayer(*m).ID
		}
		out.Match = mv
	}
	return out
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
