package txn

import (
	"context"
	"fmt"

	"github.com/mnohosten/cardmesh/internal/model"
)

// prepareOpenPack is the participant-side validation for open_pack. The
// coordinator has already reserved stock as its pre-step (spec.md §4.2.2)
// before fanning this out, so a participant's only job is to confirm it can
// see the journaled transaction in the shared Coordination Store; anything
// past that is the coordinator's responsibility.
func (e *Engine) prepareOpenPack(ctx context.Context, tx model.Transaction) (model.Vote, string, error) {
	if tx.OpenPack == nil {
		return model.VoteAbort, "missing open_pack payload", nil
	}

	seen, err := e.store.GetTx(ctx, tx.TxID)
	if err != nil {
		return model.VoteAbort, "coordination store unreachable", nil
	}
	if seen == nil {
		return model.VoteAbort, "transaction not journaled", nil
	}
	return model.VoteCommit, "", nil
}

// decideOpenPack applies (on commit) or no-ops (on abort, since nothing was
// ever written participant-side) the result of an open_pack transaction.
// Guarded by Inventory.ConsumedPackTxIDs so a replayed decide call (from the
// recovery sweep, or a retried peer call) never mints cards twice.
func (e *Engine) decideOpenPack(ctx context.Context, txID string, decision model.Decision) error {
	tx, err := e.store.GetTx(ctx, txID)
	if err != nil {
		return fmt.Errorf("get tx: %w", err)
	}
	if tx == nil || tx.OpenPack == nil {
		// This decide arrived after the coordinator (or its recovery sweep)
		// deleted the journal entry.
		return nil
	}
	if decision != model.DecisionGlobalCommit {
		return nil
	}

	inv, err := e.store.GetInventory(ctx, tx.OpenPack.PlayerID)
	if err != nil {
		return fmt.Errorf("get inventory: %w", err)
	}
	if inv == nil {
		inv = &model.Inventory{PlayerID: tx.OpenPack.PlayerID}
	}
	if inv.HasConsumedPack(txID) {
		return nil
	}

	minted := cardsMinter(txID, tx.OpenPack.Quantity)
	inv.Cards = append(inv.Cards, minted...)
	inv.ConsumedPackTxIDs = append(inv.ConsumedPackTxIDs, txID)
	inv.Version++

	return e.store.SetInventory(ctx, *inv)
}
