package rpcmesh

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/mnohosten/cardmesh/internal/eventbus"
)

// statusUpgrader mirrors the teacher's change-stream upgrader: generous
// buffers, origins unrestricted since this dashboard carries no mutation
// capability to protect.
var statusUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statusMessage is the envelope every frame on /_ws/status carries, in the
// same {Type, ...} shape as the teacher's change-stream responses.
type statusMessage struct {
	Type   string          `json:"type"` // "status", "event", "heartbeat", "error"
	Status *nodeStatus     `json:"status,omitempty"`
	Event  *eventbus.Event `json:"event,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type nodeStatus struct {
	NodeName       string                 `json:"node_name"`
	PacksRemaining int                    `json:"packs_remaining"`
	PeerCount      int                    `json:"peer_count"`
	UptimeSeconds  float64                `json:"uptime_seconds"`
	ReadCache      map[string]interface{} `json:"read_cache,omitempty"`
}

// currentStatus reads through the cached accessor: this is a diagnostic
// snapshot on a 30s heartbeat, not a value any 2PC path depends on, so the
// read-through cache's staleness window is immaterial here.
func (s *Server) currentStatus(ctx context.Context) nodeStatus {
	st := nodeStatus{
		NodeName:      s.nodeName,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		ReadCache:     s.store.CacheStats(),
	}
	if stock, err := s.store.GetStockCached(ctx); err == nil {
		st.PacksRemaining = stock.PacksRemaining
	}
	return st
}

// handleStatusWS serves a read-only live feed: an initial snapshot, a
// periodic heartbeat carrying a refreshed snapshot, and every general
// system event relayed as it is published. There is nothing a client can
// write that changes server state; inbound frames are drained only to
// detect the peer closing the connection.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("rpcmesh: status ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	writeJSON := func(msg statusMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	initial := s.currentStatus(ctx)
	if err := writeJSON(statusMessage{Type: "status", Status: &initial}); err != nil {
		return
	}

	// Drain inbound frames solely to notice a client-initiated close.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	var events <-chan *eventbus.Event
	if s.bus != nil {
		ps := s.bus.SubscribeGeneral(ctx)
		defer ps.Close()
		events = decodedEvents(ctx, ps)
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			snap := s.currentStatus(ctx)
			if err := writeJSON(statusMessage{Type: "heartbeat", Status: &snap}); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := writeJSON(statusMessage{Type: "event", Event: ev}); err != nil {
				return
			}
		}
	}
}

// decodedEvents adapts the *redis.PubSub message channel into a channel of
// decoded eventbus.Event values, skipping any payload that fails to decode
// (a malformed message must never take the dashboard connection down).
func decodedEvents(ctx context.Context, ps *redis.PubSub) <-chan *eventbus.Event {
	out := make(chan *eventbus.Event, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ps.Channel():
				if !ok {
					return
				}
				var ev eventbus.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
