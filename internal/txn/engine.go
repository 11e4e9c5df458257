package txn

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mnohosten/cardmesh/internal/cards"
	"github.com/mnohosten/cardmesh/internal/model"
)

// stateStore is the subset of internal/store.Store the engine depends on.
// Declaring it here rather than importing *store.Store directly lets tests
// substitute a mutex-guarded fake, in the mock-struct style used throughout
// this codebase's tests.
type stateStore interface {
	GetStock(ctx context.Context) (model.GlobalStock, error)
	AtomicAdjustStock(ctx context.Context, delta int) error
	GetInventory(ctx context.Context, playerID string) (*model.Inventory, error)
	SetInventory(ctx context.Context, inv model.Inventory) error
	GetTx(ctx context.Context, txID string) (*model.Transaction, error)
	SetTx(ctx context.Context, tx model.Transaction) error
	DeleteTx(ctx context.Context, txID string) error
	ScanTxs(ctx context.Context) ([]model.Transaction, error)
}

// publisher is the subset of internal/eventbus.Bus the engine depends on.
type publisher interface {
	PublishGeneral(ctx context.Context, tipo string, data interface{}) error
	PublishPlayer(ctx context.Context, playerID, tipo string, data interface{}) error
}

// Recorder receives outcome notifications for the Prometheus exporter.
// Nil-safe: Engine checks for a nil Recorder before every call, so tests and
// callers that don't care about metrics can omit one entirely.
type Recorder interface {
	RecordOpenPackResult(decision model.Decision)
	RecordTradeResult(decision model.Decision)
	RecordStockLevel(remaining int)
}

// Engine is the Transaction Engine: it plays coordinator for
// locally-originated operations and participant for every operation it's
// asked to vote on, including its own.
type Engine struct {
	self  string
	peers []string

	store      stateStore
	bus        publisher
	httpClient *http.Client
	recorder   Recorder

	phaseTimeout time.Duration
}

// NewEngine builds an Engine. self must appear in peers (a node is always
// listed among its own SERVIDORES_JOGO); if it doesn't, AddParticipant
// wiring still works but this node will never locally short-circuit its own
// participant call.
func NewEngine(self string, peers []string, st stateStore, bus publisher, rec Recorder) *Engine {
	return &Engine{
		self:  self,
		peers: peers,
		store: st,
		bus:   bus,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		recorder:     rec,
		phaseTimeout: 5 * time.Second,
	}
}

func (e *Engine) buildParticipants(tx model.Transaction) []Participant {
	participants := make([]Participant, 0, len(e.peers))
	for _, peer := range e.peers {
		if peer == e.self {
			participants = append(participants, &localParticipant{engine: e})
		} else {
			participants = append(participants, &remoteParticipant{baseURL: peer, client: e.httpClient})
		}
	}
	return participants
}

func (e *Engine) runCoordinated(ctx context.Context, tx model.Transaction) (model.Decision, error) {
	coord := NewCoordinator(tx, e.phaseTimeout)
	for _, p := range e.buildParticipants(tx) {
		if err := coord.AddParticipant(p); err != nil {
			return "", err
		}
	}

	allCommit, _, err := coord.Prepare(ctx)
	if err != nil {
		return "", fmt.Errorf("prepare: %w", err)
	}

	decision := model.DecisionGlobalAbort
	if allCommit {
		decision = model.DecisionGlobalCommit
	}

	// Persist the decision before fanning it out (step 5 of the coordinator
	// algorithm, spec.md §4.2.1): once this write lands, the decision is
	// final and idempotently replayable by the recovery sweep no matter how
	// the decide fan-out below goes.
	tx.Status = model.TxStatusCommitted
	if decision == model.DecisionGlobalAbort {
		tx.Status = model.TxStatusAborted
	}
	if err := e.store.SetTx(ctx, tx); err != nil {
		return "", fmt.Errorf("persist decision: %w", err)
	}

	if err := coord.Decide(ctx, decision); err != nil {
		// The decision is already durable; a participant that missed the
		// call will be caught by the recovery sweep. Surface the error so
		// the caller can log it, but the decision itself stands.
		return decision, err
	}

	if err := e.store.DeleteTx(ctx, tx.TxID); err != nil {
		return decision, fmt.Errorf("delete tx record: %w", err)
	}
	return decision, nil
}

// prepare dispatches phase-1 validation to the operation-specific logic in
// participant_openpack.go / participant_trade.go.
func (e *Engine) prepare(ctx context.Context, tx model.Transaction) (model.Vote, string, error) {
	switch tx.Kind {
	case model.TxKindOpenPack:
		return e.prepareOpenPack(ctx, tx)
	case model.TxKindTradeCards:
		return e.prepareTradeCards(ctx, tx)
	default:
		return model.VoteAbort, "", fmt.Errorf("%w: %s", ErrUnsupportedTxKind, tx.Kind)
	}
}

// decide dispatches phase-2 application to the operation-specific logic.
func (e *Engine) decide(ctx context.Context, txID string, kind model.TxKind, decision model.Decision) error {
	switch kind {
	case model.TxKindOpenPack:
		return e.decideOpenPack(ctx, txID, decision)
	case model.TxKindTradeCards:
		return e.decideTradeCards(ctx, txID, decision)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTxKind, kind)
	}
}

// PrepareRequest and DecideRequest are the entry points the RPC Mesh's
// peer-facing handlers call for incoming votes from a remote coordinator;
// they run the exact same business logic as the local participant.
func (e *Engine) PrepareRequest(ctx context.Context, tx model.Transaction) model.VoteResponse {
	vote, reason, err := e.prepare(ctx, tx)
	if err != nil {
		return model.VoteResponse{Vote: model.VoteAbort, Reason: err.Error(), PeerURL: e.self}
	}
	return model.VoteResponse{Vote: vote, Reason: reason, PeerURL: e.self}
}

// DecideRequestHandler applies an incoming decide call from a remote
// coordinator.
func (e *Engine) DecideRequestHandler(ctx context.Context, req model.DecideRequest, kind model.TxKind) error {
	return e.decide(ctx, req.TxID, kind, req.Decision)
}

// OpenPack runs the full open_pack operation as coordinator: journal the
// transaction, reserve stock, then run 2PC so every node (including this
// one) mints and credits the cards.
func (e *Engine) OpenPack(ctx context.Context, playerID string, quantity int) (*model.Inventory, model.Decision, error) {
	if quantity <= 0 {
		quantity = 1
	}

	// Coordinator-side pre-step (spec.md §4.2.2): consuming a pack is a
	// strictly local act, not part of the global 2PC. Checked and applied
	// before the transaction is even journaled, so "no packs available" is
	// a precondition error (spec.md §7) rather than an aborted transaction.
	inv, err := e.store.GetInventory(ctx, playerID)
	if err != nil {
		return nil, "", fmt.Errorf("get inventory: %w", err)
	}
	if inv == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}

	tx := model.Transaction{
		TxID:           model.NewTxID(),
		CoordinatorURL: e.self,
		Kind:           model.TxKindOpenPack,
		Status:         model.TxStatusPreparing,
		OpenPack:       &model.OpenPackPayload{PlayerID: playerID, Quantity: quantity},
	}

	if !inv.ReservePack(tx.TxID) {
		return nil, "", ErrNoPacksAvailable
	}

	// Journal the transaction (the reservation intent) before decrementing
	// the local pack AND the global stock, per the resolution of spec.md
	// §9's open question: if the process dies between this write and
	// AtomicAdjustStock below, the recovery sweep finds a PREPARING tx with
	// no decision yet and safely aborts it — restoring both reservations,
	// since no participant can have applied any commit effect yet.
	if err := e.store.SetTx(ctx, tx); err != nil {
		return nil, "", fmt.Errorf("journal transaction: %w", err)
	}
	if err := e.store.SetInventory(ctx, *inv); err != nil {
		_ = e.store.DeleteTx(ctx, tx.TxID)
		return nil, "", fmt.Errorf("reserve local pack: %w", err)
	}

	if err := e.store.AtomicAdjustStock(ctx, -quantity); err != nil {
		inv.ReleasePack(tx.TxID)
		_ = e.store.SetInventory(ctx, *inv)
		_ = e.store.DeleteTx(ctx, tx.TxID)
		if e.recorder != nil {
			e.recorder.RecordOpenPackResult(model.DecisionGlobalAbort)
		}
		return nil, model.DecisionGlobalAbort, err
	}

	decision, err := e.runCoordinated(ctx, tx)
	if err != nil && decision == "" {
		// Prepare itself failed outright (e.g. every peer unreachable): both
		// reservations we took above must be given back.
		_ = e.store.AtomicAdjustStock(ctx, quantity)
		inv.ReleasePack(tx.TxID)
		_ = e.store.SetInventory(ctx, *inv)
		_ = e.store.DeleteTx(ctx, tx.TxID)
		return nil, "", err
	}

	if decision == model.DecisionGlobalAbort {
		_ = e.store.AtomicAdjustStock(ctx, quantity)
		if released, rerr := e.store.GetInventory(ctx, playerID); rerr == nil && released != nil {
			released.ReleasePack(tx.TxID)
			_ = e.store.SetInventory(ctx, *released)
		}
	}

	if e.recorder != nil {
		e.recorder.RecordOpenPackResult(decision)
		if stock, serr := e.store.GetStock(ctx); serr == nil {
			e.recorder.RecordStockLevel(stock.PacksRemaining)
		}
	}

	if decision == model.DecisionGlobalAbort {
		if err == nil {
			err = ErrNotAllPrepared
		}
		return nil, decision, err
	}

	finalInv, err := e.store.GetInventory(ctx, playerID)
	if err != nil {
		return nil, decision, err
	}
	_ = e.bus.PublishPlayer(ctx, playerID, "pacote_aberto", finalInv)
	return finalInv, decision, nil
}

// TradeCards runs the full trade_cards operation as coordinator.
func (e *Engine) TradeCards(ctx context.Context, playerA, cardA, playerB, cardB string) (model.Decision, error) {
	invA, err := e.store.GetInventory(ctx, playerA)
	if err != nil {
		return "", fmt.Errorf("get inventory a: %w", err)
	}
	if invA == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlayer, playerA)
	}
	if _, ok := invA.HasCard(cardA); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCard, cardA)
	}

	invB, err := e.store.GetInventory(ctx, playerB)
	if err != nil {
		return "", fmt.Errorf("get inventory b: %w", err)
	}
	if invB == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlayer, playerB)
	}
	if _, ok := invB.HasCard(cardB); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCard, cardB)
	}

	lockedA, lockedB := invA.Version, invB.Version
	tx := model.Transaction{
		TxID:           model.NewTxID(),
		CoordinatorURL: e.self,
		Kind:           model.TxKindTradeCards,
		Status:         model.TxStatusPreparing,
		TradeCards: &model.TradeCardsPayload{
			PlayerA:        playerA,
			CardA:          cardA,
			PlayerB:        playerB,
			CardB:          cardB,
			LockedVersionA: &lockedA,
			LockedVersionB: &lockedB,
		},
	}

	if err := e.store.SetTx(ctx, tx); err != nil {
		return "", fmt.Errorf("journal transaction: %w", err)
	}

	decision, err := e.runCoordinated(ctx, tx)

	if e.recorder != nil {
		e.recorder.RecordTradeResult(decision)
	}

	if decision != "" {
		tipo := "troca_concluida"
		if decision == model.DecisionGlobalAbort {
			tipo = "troca_abortada"
		}
		_ = e.bus.PublishPlayer(ctx, playerA, tipo, tx.TradeCards)
		_ = e.bus.PublishPlayer(ctx, playerB, tipo, tx.TradeCards)
	}

	if decision == model.DecisionGlobalAbort && err == nil {
		err = ErrNotAllPrepared
	}
	return decision, err
}

// cardsMinter is a seam so tests can observe/stub minting without pulling in
// real randomness assertions; production code always uses cards.Mint.
var cardsMinter = cards.Mint
