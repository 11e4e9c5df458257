package txn

import (
	"context"
	"log"
	"time"

	"github.com/mnohosten/cardmesh/internal/model"
)

// txAgeWindow is how long a PREPARING transaction this node coordinated is
// left alone before the sweep treats it as abandoned. Short enough that a
// crashed coordinator's in-flight work is recovered promptly, long enough
// that an operation genuinely still inside its prepare fan-out is never
// second-guessed.
const txAgeWindow = 30 * time.Second

// Sweeper periodically scans the Coordination Store for every transaction it
// can see, not only the ones this node coordinated (spec.md §4.2.4: recovery
// is every participant's responsibility, not just the coordinator's). For
// transactions this node coordinated, it finishes delivering an
// already-made decision (the ordinary case: decide fanned out to some but
// not all participants before a restart) or, for one that never reached a
// decision at all, aborts it — safe because no participant can have applied
// a commit effect before the coordinator's decision was durably written
// (see Engine.runCoordinated). For transactions coordinated elsewhere, it
// applies an already-terminal decision to its own local state, so this node
// is never left stuck with an unapplied COMMITTED/ABORTED transaction just
// because the coordinating node is gone for good.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	shutdown chan struct{}
	done     chan struct{}
}

// NewSweeper builds a Sweeper bound to engine, ticking every interval.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sweeper{
		engine:   engine,
		interval: interval,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	go s.loop()
}

// Stop signals the loop to exit and waits for it to do so.
func (s *Sweeper) Stop() {
	close(s.shutdown)
	<-s.done
}

func (s *Sweeper) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweepOnce(context.Background())
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	txs, err := s.engine.store.ScanTxs(ctx)
	if err != nil {
		log.Printf("txn: sweep scan failed: %v", err)
		return
	}

	for _, tx := range txs {
		if tx.CoordinatorURL != s.engine.self {
			// Not the coordinator for this transaction, but §4.2.4 makes
			// recovery every participant's job, not just the coordinator's:
			// apply an already-terminal decision locally in case the
			// coordinator delivered decide to some but not all participants
			// before dying for good and never restarting. Only the
			// coordinator drives the abandoned-PREPARING case and the
			// journal cleanup below — it alone knows when every participant
			// it fanned out to has acknowledged.
			if tx.Status == model.TxStatusCommitted || tx.Status == model.TxStatusAborted {
				if err := s.recoverParticipantDecide(ctx, tx); err != nil {
					log.Printf("txn: sweep participant replay of %s failed: %v", tx.TxID, err)
				}
			}
			continue
		}

		switch tx.Status {
		case model.TxStatusPreparing:
			if time.Since(txCreatedAt(tx.TxID)) < txAgeWindow {
				continue // still genuinely in flight
			}
			log.Printf("txn: sweep aborting abandoned transaction %s", tx.TxID)
			if err := s.recoverAbort(ctx, tx); err != nil {
				log.Printf("txn: sweep abort of %s failed: %v", tx.TxID, err)
			}
		case model.TxStatusCommitted, model.TxStatusAborted:
			log.Printf("txn: sweep replaying decide for %s (%s)", tx.TxID, tx.Status)
			if err := s.recoverReplay(ctx, tx); err != nil {
				log.Printf("txn: sweep replay of %s failed: %v", tx.TxID, err)
			}
		}
	}
}

// recoverParticipantDecide applies an already-terminal decision locally when
// this node did not coordinate the transaction. It never deletes the
// journal entry — that stays the coordinator's job, once every participant
// it fanned out to has acknowledged — but it guarantees this node's own
// mutation (card mint, trade swap) lands even if the coordinating node that
// owned the fan-out never comes back to redeliver it.
func (s *Sweeper) recoverParticipantDecide(ctx context.Context, tx model.Transaction) error {
	decision := model.DecisionGlobalCommit
	if tx.Status == model.TxStatusAborted {
		decision = model.DecisionGlobalAbort
	}
	return s.engine.decide(ctx, tx.TxID, tx.Kind, decision)
}

// recoverAbort finalizes a transaction that was journaled but never
// decided: write ABORTED, then fan out decide exactly as the coordinator
// normally would.
func (s *Sweeper) recoverAbort(ctx context.Context, tx model.Transaction) error {
	tx.Status = model.TxStatusAborted
	if err := s.engine.store.SetTx(ctx, tx); err != nil {
		return err
	}
	if tx.Kind == model.TxKindOpenPack && tx.OpenPack != nil {
		if err := s.engine.store.AtomicAdjustStock(ctx, tx.OpenPack.Quantity); err != nil {
			log.Printf("txn: sweep stock restore for %s failed: %v", tx.TxID, err)
		}
		if inv, err := s.engine.store.GetInventory(ctx, tx.OpenPack.PlayerID); err == nil && inv != nil {
			inv.ReleasePack(tx.TxID)
			if err := s.engine.store.SetInventory(ctx, *inv); err != nil {
				log.Printf("txn: sweep pack restore for %s failed: %v", tx.TxID, err)
			}
		}
	}
	return s.recoverReplay(ctx, tx)
}

// recoverReplay re-runs the decide fan-out for a transaction whose decision
// is already durable, then deletes the journal entry once every participant
// has acknowledged.
func (s *Sweeper) recoverReplay(ctx context.Context, tx model.Transaction) error {
	decision := model.DecisionGlobalCommit
	if tx.Status == model.TxStatusAborted {
		decision = model.DecisionGlobalAbort
	}

	coord := NewCoordinator(tx, s.engine.phaseTimeout)
	for _, p := range s.engine.buildParticipants(tx) {
		if err := coord.AddParticipant(p); err != nil {
			return err
		}
	}
	coord.state = CoordinatorStatePreparing // skip the prepare phase, decision already made

	if err := coord.Decide(ctx, decision); err != nil {
		return err
	}
	return s.engine.store.DeleteTx(ctx, tx.TxID)
}

// txCreatedAt decodes the 4-byte big-endian unix timestamp NewTxID embeds in
// the first 8 hex characters of its output.
func txCreatedAt(txID string) time.Time {
	if len(txID) < 8 {
		return time.Now()
	}
	var seconds int64
	for i := 0; i < 8; i++ {
		seconds = seconds<<4 | int64(hexNibble(txID[i]))
	}
	return time.Unix(seconds, 0)
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
