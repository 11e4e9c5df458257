package store

import (
	"context"
	"testing"
	"time"

	"github.com/mnohosten/cardmesh/internal/model"
)

// requireStore skips the test unless a Redis instance is reachable on the
// default local address; these are integration tests against the real CAS
// primitive, not unit tests of pure logic.
func requireStore(t *testing.T) *Store {
	t.Helper()
	s := New("localhost:6379")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not reachable on localhost:6379: %v", err)
	}
	return s
}

func TestStockRoundTrip(t *testing.T) {
	s := requireStore(t)
	defer s.Close()

	ctx := context.Background()
	if err := s.SetStock(ctx, model.GlobalStock{PacksRemaining: 50}); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	got, err := s.GetStock(ctx)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if got.PacksRemaining != 50 {
		t.Errorf("expected 50, got %d", got.PacksRemaining)
	}
}

func TestAtomicAdjustStockRejectsOversell(t *testing.T) {
	s := requireStore(t)
	defer s.Close()

	ctx := context.Background()
	if err := s.SetStock(ctx, model.GlobalStock{PacksRemaining: 1}); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	if err := s.AtomicAdjustStock(ctx, -1); err != nil {
		t.Fatalf("expected first decrement to succeed: %v", err)
	}

	if err := s.AtomicAdjustStock(ctx, -1); err != ErrInsufficientStock {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestAtomicAdjustStockConcurrentNeverOversells(t *testing.T) {
	s := requireStore(t)
	defer s.Close()

	ctx := context.Background()
	if err := s.SetStock(ctx, model.GlobalStock{PacksRemaining: 10}); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			results <- s.AtomicAdjustStock(ctx, -1)
		}()
	}

	successes := 0
	for i := 0; i < 20; i++ {
		if err := <-results; err == nil {
			successes++
		}
	}

	if successes != 10 {
		t.Errorf("expected exactly 10 successful decrements, got %d", successes)
	}

	final, err := s.GetStock(ctx)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if final.PacksRemaining != 0 {
		t.Errorf("expected final stock 0, got %d", final.PacksRemaining)
	}
}

func TestInventoryRoundTrip(t *testing.T) {
	s := requireStore(t)
	defer s.Close()

	ctx := context.Background()
	inv := model.Inventory{
		PlayerID:       "player-1",
		Cards:          []model.Card{{CardID: "c1", Kind: model.CardKindRock}},
		PacksAvailable: 2,
	}
	if err := s.SetInventory(ctx, inv); err != nil {
		t.Fatalf("set inventory: %v", err)
	}

	got, err := s.GetInventory(ctx, "player-1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if got == nil || got.PlayerID != "player-1" || len(got.Cards) != 1 {
		t.Errorf("unexpected inventory: %+v", got)
	}
}

func TestGetInventoryMissingReturnsNil(t *testing.T) {
	s := requireStore(t)
	defer s.Close()

	got, err := s.GetInventory(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing inventory, got %+v", got)
	}
}

func TestTxLifecycle(t *testing.T) {
	s := requireStore(t)
	defer s.Close()

	ctx := context.Background()
	tx := model.Transaction{
		TxID:   "tx-store-test",
		Kind:   model.TxKindOpenPack,
		Status: model.TxStatusPreparing,
		OpenPack: &model.OpenPackPayload{
			PlayerID: "player-1",
			Quantity: 1,
		},
	}

	if err := s.SetTx(ctx, tx); err != nil {
		t.Fatalf("set tx: %v", err)
	}

	got, err := s.GetTx(ctx, tx.TxID)
	if err != nil {
		t.Fatalf("get tx: %v", err)
	}
	if got == nil || got.Status != model.TxStatusPreparing {
		t.Fatalf("unexpected tx: %+v", got)
	}

	if err := s.DeleteTx(ctx, tx.TxID); err != nil {
		t.Fatalf("delete tx: %v", err)
	}

	got, err = s.GetTx(ctx, tx.TxID)
	if err != nil {
		t.Fatalf("get tx after delete: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}
