// Package store implements the Coordination Store: the single source of
// truth for global stock, per-player inventories and in-flight 2PC
// transaction records, plus the pub/sub primitive the Event Bus wraps.
//
// It is backed by Redis via github.com/redis/go-redis/v9, generalizing the
// pub/sub usage shown in the pack's Redis wrapper (Subscribe/Channel()) to a
// full CS with optimistic-lock compare-and-swap for the one counter whose
// correctness the whole system rests on: packs_remaining.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnohosten/cardmesh/internal/cache"
	"github.com/mnohosten/cardmesh/internal/compression"
	"github.com/mnohosten/cardmesh/internal/metrics"
	"github.com/mnohosten/cardmesh/internal/model"
)

// Key layout, exactly as spec.md §6.
const (
	keyStock        = "estoque_global"
	keyInventoryFmt = "inventario:%s"
	keyTxFmt        = "transacao_2pc:%s"
)

// maxStockRetries bounds atomic_adjust_stock's CAS retry loop. Past this
// many WATCH conflicts the caller gets ErrStockContended rather than
// blocking forever.
const maxStockRetries = 50

// ErrInsufficientStock is returned when a decrement would take
// packs_remaining below zero.
var ErrInsufficientStock = errors.New("insufficient pack stock")

// ErrStockContended is returned when the CAS retry budget is exhausted
// without ever observing a conflict-free write; this is distinct from
// ErrInsufficientStock per the REDESIGN FLAGS in spec.md §9.
var ErrStockContended = errors.New("stock update contended past retry budget")

// compressThreshold is the blob size at or above which values are snappy
// compressed before being written to Redis.
const compressThreshold = 256

// readCacheCapacity/readCacheTTL bound the optional read-through cache in
// front of inventory and stock reads. The TTL is deliberately short: this
// cache only absorbs repeated polling between Event Bus pushes (status
// dashboard, GraphQL introspection), never a read a 2PC decision depends
// on — every prepare/decide path below bypasses it entirely.
const (
	readCacheCapacity = 4096
	readCacheTTL      = 500 * time.Millisecond
)

const (
	codecRaw      byte = 0x00
	codecSnappy   byte = 0x01
)

// Store is a thin, concurrency-safe handle onto the shared Redis instance.
// All methods are safe to call from multiple goroutines; go-redis's Client
// itself is already safe for concurrent use.
type Store struct {
	rdb        *redis.Client
	compressor *compression.Compressor
	tracker    *metrics.ResourceTracker
	readCache  *cache.LRUCache
}

// New opens a Store against the given Redis address (host:port).
func New(addr string) *Store {
	return &Store{
		rdb:        redis.NewClient(&redis.Options{Addr: addr}),
		compressor: compression.NewSnappyCompressor(),
		readCache:  cache.NewLRUCache(readCacheCapacity, readCacheTTL),
	}
}

// CacheStats reports the read-through cache's hit/miss/eviction counters,
// surfaced on the ambient status dashboard.
func (s *Store) CacheStats() map[string]interface{} {
	return s.readCache.Stats()
}

// SetResourceTracker wires an optional ResourceTracker that every encoded
// read/write is tallied against, for the store_bytes_{read,written}_total
// Prometheus counters. Nil-safe: a Store with no tracker just skips the call.
func (s *Store) SetResourceTracker(t *metrics.ResourceTracker) {
	s.tracker = t
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies the store is reachable; used at node boot (a CS unreachable
// at startup is the one FATAL error class per spec.md §7).
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) encode(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	var out string
	if len(raw) < compressThreshold {
		out = string(append([]byte{codecRaw}, raw...))
	} else {
		compressed, err := s.compressor.Compress(raw)
		if err != nil {
			return "", fmt.Errorf("compress: %w", err)
		}
		out = string(append([]byte{codecSnappy}, compressed...))
	}

	if s.tracker != nil {
		s.tracker.RecordWrite(uint64(len(out)))
	}
	return out, nil
}

func (s *Store) decode(blob string, v interface{}) error {
	if len(blob) == 0 {
		return fmt.Errorf("decode: empty blob")
	}
	if s.tracker != nil {
		s.tracker.RecordRead(uint64(len(blob)))
	}

	codec := blob[0]
	payload := []byte(blob[1:])

	switch codec {
	case codecRaw:
		// fallthrough to unmarshal below
	case codecSnappy:
		decompressed, err := s.compressor.Decompress(payload)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
		payload = decompressed
	default:
		return fmt.Errorf("decode: unknown codec byte %#x", codec)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// GetStock reads the global stock counter directly from Redis. Always
// bypasses the read-through cache: this is the value AtomicAdjustStock's
// CAS loop and every prepare/decide path reason about, so it must never be
// stale across nodes.
func (s *Store) GetStock(ctx context.Context) (model.GlobalStock, error) {
	var stock model.GlobalStock
	blob, err := s.rdb.Get(ctx, keyStock).Result()
	if errors.Is(err, redis.Nil) {
		return model.GlobalStock{}, fmt.Errorf("stock not initialized")
	}
	if err != nil {
		return model.GlobalStock{}, fmt.Errorf("get stock: %w", err)
	}
	if err := s.decode(blob, &stock); err != nil {
		return model.GlobalStock{}, err
	}
	return stock, nil
}

// GetStockCached is GetStock with a short-TTL local cache in front of it,
// for ambient diagnostic callers (the status dashboard, GraphQL) that can
// tolerate up to readCacheTTL of staleness and would otherwise poll Redis
// on every dashboard tick.
func (s *Store) GetStockCached(ctx context.Context) (model.GlobalStock, error) {
	if cached, ok := s.readCache.Get(keyStock); ok {
		return cached.(model.GlobalStock), nil
	}
	stock, err := s.GetStock(ctx)
	if err != nil {
		return stock, err
	}
	s.readCache.Put(keyStock, stock)
	return stock, nil
}

// SetStock overwrites the global stock counter unconditionally. Only used
// at bootstrap; every subsequent mutation must go through
// AtomicAdjustStock.
func (s *Store) SetStock(ctx context.Context, stock model.GlobalStock) error {
	blob, err := s.encode(stock)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keyStock, blob, 0).Err(); err != nil {
		return err
	}
	s.readCache.Invalidate(keyStock)
	return nil
}

// EnsureStockInitialized sets the stock key to InitialPackStock iff it does
// not already exist, mirroring "initialized once on first node bootstrap"
// from spec.md §3. Uses SetNX so a race between two nodes booting
// simultaneously still leaves exactly one winner.
func (s *Store) EnsureStockInitialized(ctx context.Context) error {
	blob, err := s.encode(model.GlobalStock{PacksRemaining: model.InitialPackStock})
	if err != nil {
		return err
	}
	_, err = s.rdb.SetNX(ctx, keyStock, blob, 0).Result()
	return err
}

// AtomicAdjustStock applies delta (positive to release a reservation,
// negative to reserve) to packs_remaining. It is the ONLY path that ever
// mutates packs_remaining, implemented as the Go equivalent of the
// original's WATCH/MULTI/EXEC loop: read the key inside a Watch closure,
// reject a would-go-negative delta with ErrInsufficientStock, otherwise
// queue the write in a TxPipelined block. A redis.TxFailedErr (another
// client raced us) retries up to maxStockRetries before ErrStockContended.
func (s *Store) AtomicAdjustStock(ctx context.Context, delta int) error {
	for attempt := 0; attempt < maxStockRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			blob, err := tx.Get(ctx, keyStock).Result()
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("stock not initialized")
			}
			if err != nil {
				return err
			}

			var stock model.GlobalStock
			if err := s.decode(blob, &stock); err != nil {
				return err
			}

			next := stock.PacksRemaining + delta
			if next < 0 {
				return ErrInsufficientStock
			}
			stock.PacksRemaining = next

			encoded, err := s.encode(stock)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, keyStock, encoded, 0)
				return nil
			})
			return err
		}, keyStock)

		if err == nil {
			s.readCache.Invalidate(keyStock)
			return nil
		}
		if errors.Is(err, ErrInsufficientStock) {
			return ErrInsufficientStock
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // optimistic-lock conflict, retry
		}
		return fmt.Errorf("adjust stock: %w", err)
	}
	return ErrStockContended
}

// GetInventory reads a player's inventory directly from Redis, returning
// (nil, nil) if absent. Always bypasses the read-through cache: this is
// the value every 2PC prepare/decide path reasons about (card presence,
// Version), and a node's local cache has no way to learn about a write
// made by another node's participant, so it must never be consulted here.
func (s *Store) GetInventory(ctx context.Context, playerID string) (*model.Inventory, error) {
	blob, err := s.rdb.Get(ctx, fmt.Sprintf(keyInventoryFmt, playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}

	var inv model.Inventory
	if err := s.decode(blob, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInventoryCached is GetInventory with a short-TTL local cache in
// front of it, for ambient diagnostic callers only (GraphQL introspection,
// the status dashboard) that can tolerate up to readCacheTTL of staleness.
func (s *Store) GetInventoryCached(ctx context.Context, playerID string) (*model.Inventory, error) {
	cacheKey := fmt.Sprintf(keyInventoryFmt, playerID)
	if cached, ok := s.readCache.Get(cacheKey); ok {
		inv := cached.(model.Inventory)
		return &inv, nil
	}

	inv, err := s.GetInventory(ctx, playerID)
	if err != nil || inv == nil {
		return inv, err
	}
	s.readCache.Put(cacheKey, *inv)
	return inv, nil
}

// SetInventory writes a player's inventory unconditionally. Last-writer-wins
// is acceptable here because inventories are only ever written from inside
// a transaction that has already passed prepare (spec.md §4.1).
func (s *Store) SetInventory(ctx context.Context, inv model.Inventory) error {
	blob, err := s.encode(inv)
	if err != nil {
		return err
	}
	cacheKey := fmt.Sprintf(keyInventoryFmt, inv.PlayerID)
	if err := s.rdb.Set(ctx, cacheKey, blob, 0).Err(); err != nil {
		return err
	}
	s.readCache.Invalidate(cacheKey)
	return nil
}

// GetTx reads a Transaction record, returning (nil, nil) if absent.
func (s *Store) GetTx(ctx context.Context, txID string) (*model.Transaction, error) {
	blob, err := s.rdb.Get(ctx, fmt.Sprintf(keyTxFmt, txID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tx: %w", err)
	}

	var tx model.Transaction
	if err := s.decode(blob, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// SetTx writes a Transaction record unconditionally.
func (s *Store) SetTx(ctx context.Context, tx model.Transaction) error {
	blob, err := s.encode(tx)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, fmt.Sprintf(keyTxFmt, tx.TxID), blob, 0).Err()
}

// DeleteTx removes a Transaction record, step 6 of the coordinator
// algorithm (spec.md §4.2.1).
func (s *Store) DeleteTx(ctx context.Context, txID string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(keyTxFmt, txID)).Err()
}

// ScanTxs returns every Transaction record currently in the store. It backs
// the recovery sweep (internal/txn), which runs infrequently and against a
// key space bounded by the number of in-flight transactions, so a SCAN over
// the transacao_2pc:* namespace is acceptable despite the O(n) cost.
func (s *Store) ScanTxs(ctx context.Context) ([]model.Transaction, error) {
	var txs []model.Transaction
	iter := s.rdb.Scan(ctx, 0, fmt.Sprintf(keyTxFmt, "*"), 100).Iterator()
	for iter.Next(ctx) {
		blob, err := s.rdb.Get(ctx, iter.Val()).Result()
		if errors.Is(err, redis.Nil) {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("scan txs: %w", err)
		}
		var tx model.Transaction
		if err := s.decode(blob, &tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan txs: %w", err)
	}
	return txs, nil
}

// Publish fans out payload (already-encoded JSON bytes) to channel.
// Delivery is at-most-once, matching spec.md §4.4.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a Redis pub/sub subscription to channel. Callers read
// messages off the returned PubSub's Channel() and must Close it when done.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channel)
}
