// Package eventbus is a thin wrapper over the Coordination Store's pub/sub
// primitive, exposing exactly the three channel families from spec.md
// §4.4. Per design note §9, a node only ever publishes through this
// package; subscribing is a client-side concern (see internal/clientconfig
// and cmd/gameclient), with the sole exception of the ambient live-status
// dashboard in internal/rpcmesh, which subscribes for diagnostic purposes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mnohosten/cardmesh/internal/store"
)

const (
	// ChannelGeneral is the shared broadcast channel for system-wide events.
	ChannelGeneral = "eventos_gerais"
	// playerChannelFmt is the per-player notification channel.
	playerChannelFmt = "notificacoes_jogador_%s"
	// matchChannelFmt is the per-match channel.
	matchChannelFmt = "partida_%s"
)

// Event is the envelope every published message carries; Tipo is the
// discriminator consumers switch on.
type Event struct {
	Tipo string      `json:"tipo"`
	Data interface{} `json:"data,omitempty"`
}

// Bus publishes domain events onto the shared pub/sub channels.
type Bus struct {
	store *store.Store
}

// New wraps a Store as an event bus.
func New(s *store.Store) *Bus {
	return &Bus{store: s}
}

// PlayerChannel returns the per-player notification channel name.
func PlayerChannel(playerID string) string {
	return fmt.Sprintf(playerChannelFmt, playerID)
}

// MatchChannel returns the per-match channel name.
func MatchChannel(matchID string) string {
	return fmt.Sprintf(matchChannelFmt, matchID)
}

// publish marshals ev and publishes it, logging any failure. The error is
// also returned; the engine and RPC Mesh callers discard it, so pub/sub
// failures never fail a transaction (spec.md §7).
func (b *Bus) publish(ctx context.Context, channel string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("eventbus: marshal %s event for %s: %v", ev.Tipo, channel, err)
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.store.Publish(ctx, channel, payload); err != nil {
		log.Printf("eventbus: publish %s to %s: %v", ev.Tipo, channel, err)
		return err
	}
	return nil
}

// PublishGeneral broadcasts a system-wide event (new player, match formed).
func (b *Bus) PublishGeneral(ctx context.Context, tipo string, data interface{}) error {
	return b.publish(ctx, ChannelGeneral, Event{Tipo: tipo, Data: data})
}

// PublishPlayer sends a per-player notification (pack outcome, trade
// outcome).
func (b *Bus) PublishPlayer(ctx context.Context, playerID, tipo string, data interface{}) error {
	return b.publish(ctx, PlayerChannel(playerID), Event{Tipo: tipo, Data: data})
}

// PublishMatch sends a per-match event.
func (b *Bus) PublishMatch(ctx context.Context, matchID, tipo string, data interface{}) error {
	return b.publish(ctx, MatchChannel(matchID), Event{Tipo: tipo, Data: data})
}

// SubscribeGeneral opens a subscription to the broadcast channel. This is
// used only by the ambient status dashboard; ordinary clients subscribe
// directly to the Coordination Store themselves.
func (b *Bus) SubscribeGeneral(ctx context.Context) *redis.PubSub {
	return b.store.Subscribe(ctx, ChannelGeneral)
}
