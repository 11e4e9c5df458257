package rpcmesh

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/cardmesh/internal/model"
	"github.com/mnohosten/cardmesh/internal/store"
	"github.com/mnohosten/cardmesh/internal/txn"
)

// writeOperationError maps a 2PC operation error onto spec.md §7's
// taxonomy: a precondition failure (unknown player/card, no packs
// available, insufficient stock) is client-surfaced as 400; anything else
// — a peer voted abort or was unreachable during prepare — is a
// coordination failure surfaced as 500, with the transaction already
// guaranteed rolled back by the engine before returning.
func writeOperationError(w http.ResponseWriter, errType string, err error) {
	switch {
	case errors.Is(err, txn.ErrUnknownPlayer),
		errors.Is(err, txn.ErrUnknownCard),
		errors.Is(err, txn.ErrNoPacksAvailable),
		errors.Is(err, store.ErrInsufficientStock):
		WriteError(w, http.StatusBadRequest, "precondition_failed", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, errType, err.Error())
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	stock, err := s.store.GetStock(r.Context())
	resp := map[string]interface{}{
		"node":    s.nodeName,
		"uptime":  time.Since(s.startTime).String(),
		"service": "cardmesh",
	}
	if err != nil {
		resp["estoque_global"] = nil
	} else {
		resp["estoque_global"] = stock
	}
	WriteSuccess(w, resp)
}

// initialPacksOnJoin is the one free pack every new player's inventory
// starts with, matching the original service's "1 pacote inicial".
const initialPacksOnJoin = 1

// handleJoin creates a player's inventory (one free pack, no cards) and
// returns {player, inventory}; Player itself is never persisted, matching
// model.Player's doc comment.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	nome := r.URL.Query().Get("nome_jogador")
	if nome == "" {
		WriteError(w, http.StatusBadRequest, "missing_parameter", "nome_jogador is required")
		return
	}

	player := model.Player{
		PlayerID:    model.NewTxID(),
		DisplayName: nome,
		HomeRegion:  s.nodeName,
	}

	inv := model.Inventory{
		PlayerID:       player.PlayerID,
		Cards:          []model.Card{},
		PacksAvailable: initialPacksOnJoin,
	}
	if err := s.store.SetInventory(r.Context(), inv); err != nil {
		WriteError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	_ = s.bus.PublishGeneral(r.Context(), "jogador_entrou", player)
	WriteSuccess(w, map[string]interface{}{
		"player":    player,
		"inventory": inv,
	})
}

func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")

	inv, err := s.store.GetInventory(r.Context(), playerID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if inv == nil {
		WriteError(w, http.StatusNotFound, "not_found", "no inventory for player "+playerID)
		return
	}
	WriteSuccess(w, inv)
}

func (s *Server) handleOpenPack(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")
	quantity := 1
	if q := r.URL.Query().Get("quantidade"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			quantity = parsed
		}
	}

	inv, decision, err := s.engine.OpenPack(r.Context(), playerID, quantity)
	if err != nil {
		writeOperationError(w, "open_pack_failed", err)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"decision":  decision,
		"inventory": inv,
	})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	playerA := chi.URLParam(r, "player_a")
	playerB := chi.URLParam(r, "player_b")
	cardA := r.URL.Query().Get("id_carta_a")
	cardB := r.URL.Query().Get("id_carta_b")

	if cardA == "" || cardB == "" {
		WriteError(w, http.StatusBadRequest, "missing_parameter", "id_carta_a and id_carta_b are required")
		return
	}

	decision, err := s.engine.TradeCards(r.Context(), playerA, cardA, playerB, cardB)
	if err != nil {
		writeOperationError(w, "trade_failed", err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"decision": decision})
}

// handlePreparePeer returns a handler bound to a fixed TxKind, since the
// wire contract uses one URL per operation kind rather than a kind field in
// the prepare body.
func (s *Server) handlePreparePeer(kind model.TxKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.VoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		if req.Transaction.Kind != kind {
			WriteError(w, http.StatusBadRequest, "kind_mismatch", "transaction kind does not match endpoint")
			return
		}
		resp := s.engine.PrepareRequest(r.Context(), req.Transaction)
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDecidePeer(kind model.TxKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.DecideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		if err := s.engine.DecideRequestHandler(r.Context(), req, kind); err != nil {
			WriteError(w, http.StatusInternalServerError, "decide_failed", err.Error())
			return
		}
		WriteSuccess(w, map[string]interface{}{"tx_id": req.TxID, "applied": true})
	}
}
