package txn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mnohosten/cardmesh/internal/model"
)

// fakeStore is an in-memory stand-in for internal/store.Store, guarded by a
// mutex like the mock structs used elsewhere in this codebase's tests. It
// reproduces just enough of the real store's semantics (oversell rejection,
// missing-key returns nil) to exercise Engine's business logic without a
// live Redis instance.
type fakeStore struct {
	mu    sync.Mutex
	stock model.GlobalStock
	inv   map[string]model.Inventory
	txs   map[string]model.Transaction
}

func newFakeStore(stock int) *fakeStore {
	return &fakeStore{
		stock: model.GlobalStock{PacksRemaining: stock},
		inv:   make(map[string]model.Inventory),
		txs:   make(map[string]model.Transaction),
	}
}

func (f *fakeStore) GetStock(ctx context.Context) (model.GlobalStock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock, nil
}

func (f *fakeStore) AtomicAdjustStock(ctx context.Context, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.stock.PacksRemaining + delta
	if next < 0 {
		return errors.New("insufficient pack stock")
	}
	f.stock.PacksRemaining = next
	return nil
}

func (f *fakeStore) GetInventory(ctx context.Context, playerID string) (*model.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.inv[playerID]
	if !ok {
		return nil, nil
	}
	cp := inv
	cp.Cards = append([]model.Card(nil), inv.Cards...)
	cp.ConsumedPackTxIDs = append([]string(nil), inv.ConsumedPackTxIDs...)
	cp.ReservedPackTxIDs = append([]string(nil), inv.ReservedPackTxIDs...)
	return &cp, nil
}

func (f *fakeStore) SetInventory(ctx context.Context, inv model.Inventory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inv[inv.PlayerID] = inv
	return nil
}

func (f *fakeStore) GetTx(ctx context.Context, txID string) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txID]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (f *fakeStore) SetTx(ctx context.Context, tx model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.TxID] = tx
	return nil
}

func (f *fakeStore) DeleteTx(ctx context.Context, txID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.txs, txID)
	return nil
}

func (f *fakeStore) ScanTxs(ctx context.Context) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txs := make([]model.Transaction, 0, len(f.txs))
	for _, tx := range f.txs {
		txs = append(txs, tx)
	}
	return txs, nil
}

// fakeBus discards every publish, recording a count for assertions that
// merely want to know a notification was attempted.
type fakeBus struct {
	mu       sync.Mutex
	general  int
	playerTo map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{playerTo: make(map[string]int)}
}

func (b *fakeBus) PublishGeneral(ctx context.Context, tipo string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.general++
	return nil
}

func (b *fakeBus) PublishPlayer(ctx context.Context, playerID, tipo string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playerTo[playerID]++
	return nil
}

func newTestEngine(st *fakeStore, peers []string) *Engine {
	if peers == nil {
		peers = []string{"http://node-a"}
	}
	return NewEngine("http://node-a", peers, st, newFakeBus(), nil)
}

func TestOpenPackCreditsInventoryAndDecrementsStock(t *testing.T) {
	st := newFakeStore(10)
	st.inv["alice"] = model.Inventory{PlayerID: "alice", PacksAvailable: 1}
	e := newTestEngine(st, nil)

	inv, decision, err := e.OpenPack(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	if decision != model.DecisionGlobalCommit {
		t.Fatalf("expected GLOBAL_COMMIT, got %v", decision)
	}
	if len(inv.Cards) != 3 {
		t.Errorf("expected 3 cards (CardsPerPack), got %d", len(inv.Cards))
	}

	stock, _ := st.GetStock(context.Background())
	if stock.PacksRemaining != 9 {
		t.Errorf("expected stock 9, got %d", stock.PacksRemaining)
	}

	alice, _ := st.GetInventory(context.Background(), "alice")
	if alice.PacksAvailable != 0 {
		t.Errorf("expected alice's local pack to be consumed, got %d remaining", alice.PacksAvailable)
	}
}

func TestOpenPackRejectsWhenStockExhausted(t *testing.T) {
	st := newFakeStore(0)
	st.inv["alice"] = model.Inventory{PlayerID: "alice", PacksAvailable: 1}
	e := newTestEngine(st, nil)

	_, decision, err := e.OpenPack(context.Background(), "alice", 1)
	if err == nil {
		t.Fatal("expected error for insufficient stock")
	}
	if decision != model.DecisionGlobalAbort {
		t.Errorf("expected GLOBAL_ABORT, got %v", decision)
	}

	alice, _ := st.GetInventory(context.Background(), "alice")
	if alice.PacksAvailable != 1 {
		t.Errorf("expected alice's local pack to be restored on abort, got %d", alice.PacksAvailable)
	}
}

func TestOpenPackRejectsWhenNoPacksAvailable(t *testing.T) {
	st := newFakeStore(10)
	st.inv["alice"] = model.Inventory{PlayerID: "alice", PacksAvailable: 0}
	e := newTestEngine(st, nil)

	_, _, err := e.OpenPack(context.Background(), "alice", 1)
	if !errors.Is(err, ErrNoPacksAvailable) {
		t.Fatalf("expected ErrNoPacksAvailable, got %v", err)
	}

	stock, _ := st.GetStock(context.Background())
	if stock.PacksRemaining != 10 {
		t.Errorf("expected global stock untouched, got %d", stock.PacksRemaining)
	}
}

func TestOpenPackIsIdempotentOnReplayedDecide(t *testing.T) {
	st := newFakeStore(10)
	e := newTestEngine(st, nil)

	tx := model.Transaction{
		TxID:     "tx-replay",
		Kind:     model.TxKindOpenPack,
		OpenPack: &model.OpenPackPayload{PlayerID: "bob", Quantity: 1},
	}
	if err := st.SetTx(context.Background(), tx); err != nil {
		t.Fatal(err)
	}

	if err := e.decideOpenPack(context.Background(), tx.TxID, model.DecisionGlobalCommit); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	if err := e.decideOpenPack(context.Background(), tx.TxID, model.DecisionGlobalCommit); err != nil {
		t.Fatalf("replayed decide: %v", err)
	}

	inv, _ := st.GetInventory(context.Background(), "bob")
	if len(inv.Cards) != 3 {
		t.Errorf("expected cards minted exactly once (3 cards), got %d", len(inv.Cards))
	}
}

func TestTradeCardsSwapsOwnership(t *testing.T) {
	st := newFakeStore(10)
	st.inv["alice"] = model.Inventory{PlayerID: "alice", Cards: []model.Card{{CardID: "card-a"}}}
	st.inv["bob"] = model.Inventory{PlayerID: "bob", Cards: []model.Card{{CardID: "card-b"}}}
	e := newTestEngine(st, nil)

	decision, err := e.TradeCards(context.Background(), "alice", "card-a", "bob", "card-b")
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	if decision != model.DecisionGlobalCommit {
		t.Fatalf("expected GLOBAL_COMMIT, got %v", decision)
	}

	alice, _ := st.GetInventory(context.Background(), "alice")
	bob, _ := st.GetInventory(context.Background(), "bob")
	if _, ok := alice.HasCard("card-b"); !ok {
		t.Error("expected alice to hold card-b after trade")
	}
	if _, ok := bob.HasCard("card-a"); !ok {
		t.Error("expected bob to hold card-a after trade")
	}
}

func TestTradeCardsAbortsOnMissingCard(t *testing.T) {
	st := newFakeStore(10)
	st.inv["alice"] = model.Inventory{PlayerID: "alice", Cards: []model.Card{{CardID: "card-a"}}}
	st.inv["bob"] = model.Inventory{PlayerID: "bob"}
	e := newTestEngine(st, nil)

	_, err := e.TradeCards(context.Background(), "alice", "card-a", "bob", "card-missing")
	if !errors.Is(err, ErrUnknownCard) {
		t.Fatalf("expected ErrUnknownCard, got %v", err)
	}

	alice, _ := st.GetInventory(context.Background(), "alice")
	if _, ok := alice.HasCard("card-a"); !ok {
		t.Error("expected alice's card untouched after an aborted trade")
	}
}

func TestTradeCardsPrepareAbortsOnVersionMismatch(t *testing.T) {
	st := newFakeStore(10)
	e := newTestEngine(st, nil)

	tx := model.Transaction{
		TxID: "tx-version",
		Kind: model.TxKindTradeCards,
		TradeCards: &model.TradeCardsPayload{
			PlayerA:        "alice",
			CardA:          "card-a",
			PlayerB:        "bob",
			CardB:          "card-b",
			LockedVersionA: intPtr(0),
		},
	}
	st.inv["alice"] = model.Inventory{PlayerID: "alice", Cards: []model.Card{{CardID: "card-a"}}, Version: 1}
	st.inv["bob"] = model.Inventory{PlayerID: "bob", Cards: []model.Card{{CardID: "card-b"}}}

	vote, reason, err := e.prepareTradeCards(context.Background(), tx)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if vote != model.VoteAbort {
		t.Errorf("expected VOTE_ABORT on version mismatch, got %v (%s)", vote, reason)
	}
}

// TestTradeCardsDecideNoOpsOnVersionRace reproduces the decide-time half of
// spec.md §9's trade-locking race: two trades both touching alice's card
// pass prepare against the same locked version (neither has mutated yet),
// then one decides first and bumps alice's version. The second transaction's
// decide must find the moved version and clean-abort, never error out and
// leave itself stuck COMMITTED-but-unapplied.
func TestTradeCardsDecideNoOpsOnVersionRace(t *testing.T) {
	st := newFakeStore(10)
	st.inv["alice"] = model.Inventory{PlayerID: "alice", Cards: []model.Card{{CardID: "card-a"}}, Version: 0}
	st.inv["carol"] = model.Inventory{PlayerID: "carol", Cards: []model.Card{{CardID: "card-c"}}}
	st.inv["bob"] = model.Inventory{PlayerID: "bob", Cards: []model.Card{{CardID: "card-b"}}}
	e := newTestEngine(st, nil)

	txWinner := model.Transaction{
		TxID: "tx-winner",
		Kind: model.TxKindTradeCards,
		TradeCards: &model.TradeCardsPayload{
			PlayerA: "alice", CardA: "card-a",
			PlayerB: "bob", CardB: "card-b",
			LockedVersionA: intPtr(0),
			LockedVersionB: intPtr(0),
		},
	}
	txLoser := model.Transaction{
		TxID: "tx-loser",
		Kind: model.TxKindTradeCards,
		TradeCards: &model.TradeCardsPayload{
			PlayerA: "alice", CardA: "card-a",
			PlayerB: "carol", CardB: "card-c",
			LockedVersionA: intPtr(0),
			LockedVersionB: intPtr(0),
		},
	}
	if err := st.SetTx(context.Background(), txWinner); err != nil {
		t.Fatal(err)
	}
	if err := st.SetTx(context.Background(), txLoser); err != nil {
		t.Fatal(err)
	}

	if err := e.decideTradeCards(context.Background(), txWinner.TxID, model.DecisionGlobalCommit); err != nil {
		t.Fatalf("winner decide: %v", err)
	}
	if err := e.decideTradeCards(context.Background(), txLoser.TxID, model.DecisionGlobalCommit); err != nil {
		t.Fatalf("loser decide must clean-abort, not error: %v", err)
	}

	alice, _ := st.GetInventory(context.Background(), "alice")
	if _, ok := alice.HasCard("card-b"); !ok {
		t.Error("expected alice to hold card-b from the winning trade")
	}
	carol, _ := st.GetInventory(context.Background(), "carol")
	if _, ok := carol.HasCard("card-c"); !ok {
		t.Error("expected carol's card untouched: the losing trade must never apply")
	}
}

func intPtr(v int) *int { return &v }
