package txn

import (
	"context"
	"fmt"

	"github.com/mnohosten/cardmesh/internal/model"
)

// prepareTradeCards is the participant-side validation for trade_cards. The
// coordinator captured each inventory's version at journal time (its
// pre-step, symmetric with open_pack's stock reservation); a participant
// re-reads both inventories now and votes VOTE_ABORT if either card has
// since been traded away or either inventory moved past the locked version,
// which is the explicit per-inventory token from the trade-locking
// resolution in DESIGN.md.
func (e *Engine) prepareTradeCards(ctx context.Context, tx model.Transaction) (model.Vote, string, error) {
	payload := tx.TradeCards
	if payload == nil {
		return model.VoteAbort, "missing trade_cards payload", nil
	}

	invA, err := e.store.GetInventory(ctx, payload.PlayerA)
	if err != nil {
		return model.VoteAbort, "coordination store unreachable", nil
	}
	if invA == nil {
		return model.VoteAbort, fmt.Sprintf("%s: %s", ErrUnknownPlayer, payload.PlayerA), nil
	}
	if payload.LockedVersionA != nil && invA.Version != *payload.LockedVersionA {
		return model.VoteAbort, ErrVersionMismatch.Error(), nil
	}
	if _, ok := invA.HasCard(payload.CardA); !ok {
		return model.VoteAbort, fmt.Sprintf("%s: %s", ErrUnknownCard, payload.CardA), nil
	}

	invB, err := e.store.GetInventory(ctx, payload.PlayerB)
	if err != nil {
		return model.VoteAbort, "coordination store unreachable", nil
	}
	if invB == nil {
		return model.VoteAbort, fmt.Sprintf("%s: %s", ErrUnknownPlayer, payload.PlayerB), nil
	}
	if payload.LockedVersionB != nil && invB.Version != *payload.LockedVersionB {
		return model.VoteAbort, ErrVersionMismatch.Error(), nil
	}
	if _, ok := invB.HasCard(payload.CardB); !ok {
		return model.VoteAbort, fmt.Sprintf("%s: %s", ErrUnknownCard, payload.CardB), nil
	}

	return model.VoteCommit, "", nil
}

// decideTradeCards swaps the two cards on commit. It is idempotent: if both
// cards have already moved (neither inventory still holds its original
// card), the decide call is treated as a replay and skipped. It also
// re-checks each inventory's version against the token locked at prepare
// time: if either inventory moved between prepare and decide (another trade
// raced in and was decided first), the swap is skipped as a compensating
// no-op rather than applied against state the prepare vote never saw.
func (e *Engine) decideTradeCards(ctx context.Context, txID string, decision model.Decision) error {
	tx, err := e.store.GetTx(ctx, txID)
	if err != nil {
		return fmt.Errorf("get tx: %w", err)
	}
	if tx == nil || tx.TradeCards == nil {
		return nil
	}
	if decision != model.DecisionGlobalCommit {
		return nil
	}
	payload := tx.TradeCards

	invA, err := e.store.GetInventory(ctx, payload.PlayerA)
	if err != nil {
		return fmt.Errorf("get inventory a: %w", err)
	}
	invB, err := e.store.GetInventory(ctx, payload.PlayerB)
	if err != nil {
		return fmt.Errorf("get inventory b: %w", err)
	}
	if invA == nil || invB == nil {
		return fmt.Errorf("%w during decide", ErrUnknownPlayer)
	}

	if payload.LockedVersionA != nil && invA.Version != *payload.LockedVersionA {
		return nil // compensating no-op: a.Version moved since prepare
	}
	if payload.LockedVersionB != nil && invB.Version != *payload.LockedVersionB {
		return nil // compensating no-op: b.Version moved since prepare
	}

	idxA, okA := invA.HasCard(payload.CardA)
	idxB, okB := invB.HasCard(payload.CardB)
	if !okA && !okB {
		return nil // already applied
	}
	if !okA || !okB {
		return nil // raced with another trade touching the same card; compensating no-op
	}

	cardA := invA.Cards[idxA]
	cardB := invB.Cards[idxB]

	invA.RemoveCard(idxA)
	invB.RemoveCard(idxB)
	invA.Cards = append(invA.Cards, cardB)
	invB.Cards = append(invB.Cards, cardA)
	invA.Version++
	invB.Version++

	if err := e.store.SetInventory(ctx, *invA); err != nil {
		return fmt.Errorf("set inventory a: %w", err)
	}
	if err := e.store.SetInventory(ctx, *invB); err != nil {
		return fmt.Errorf("set inventory b: %w", err)
	}
	return nil
}
