package txn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mnohosten/cardmesh/internal/model"
)

// mockParticipant is a mock implementation of the Participant interface for
// testing the generic coordinator fan-out in isolation from HTTP and Redis.
type mockParticipant struct {
	id            string
	prepareVote   model.Vote
	prepareError  error
	decideError   error
	prepareDelay  time.Duration
	decideDelay   time.Duration
	prepareCalled int
	decideCalled  int
	mu            sync.Mutex
}

func newMockParticipant(id string) *mockParticipant {
	return &mockParticipant{id: id, prepareVote: model.VoteCommit}
}

func (m *mockParticipant) ID() string { return m.id }

func (m *mockParticipant) Prepare(ctx context.Context, tx model.Transaction) (model.Vote, string, error) {
	m.mu.Lock()
	m.prepareCalled++
	delay, vote, err := m.prepareDelay, m.prepareVote, m.prepareError
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.VoteAbort, "", ctx.Err()
		}
	}
	return vote, "", err
}

func (m *mockParticipant) Decide(ctx context.Context, txID string, kind model.TxKind, decision model.Decision) error {
	m.mu.Lock()
	m.decideCalled++
	delay, err := m.decideDelay, m.decideError
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *mockParticipant) counts() (prepare, decide int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepareCalled, m.decideCalled
}

func testTx() model.Transaction {
	return model.Transaction{
		TxID: "tx-test",
		Kind: model.TxKindOpenPack,
		OpenPack: &model.OpenPackPayload{
			PlayerID: "player-1",
			Quantity: 1,
		},
	}
}

func TestCoordinatorBasic(t *testing.T) {
	coord := NewCoordinator(testTx(), 5*time.Second)
	if coord.GetState() != CoordinatorStateInit {
		t.Errorf("expected state Init, got %v", coord.GetState())
	}
}

func TestAddParticipantRejectsDuplicate(t *testing.T) {
	coord := NewCoordinator(testTx(), 5*time.Second)
	p1 := newMockParticipant("p1")

	if err := coord.AddParticipant(p1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := coord.AddParticipant(p1); !errors.Is(err, ErrParticipantAlreadyAdded) {
		t.Errorf("expected ErrParticipantAlreadyAdded, got %v", err)
	}
}

func TestExecuteAllCommit(t *testing.T) {
	coord := NewCoordinator(testTx(), 5*time.Second)
	p1, p2, p3 := newMockParticipant("p1"), newMockParticipant("p2"), newMockParticipant("p3")
	for _, p := range []*mockParticipant{p1, p2, p3} {
		coord.AddParticipant(p)
	}

	decision, err := coord.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if decision != model.DecisionGlobalCommit {
		t.Errorf("expected GLOBAL_COMMIT, got %v", decision)
	}
	if coord.GetState() != CoordinatorStateCommitted {
		t.Errorf("expected state Committed, got %v", coord.GetState())
	}

	for _, p := range []*mockParticipant{p1, p2, p3} {
		prep, dec := p.counts()
		if prep != 1 || dec != 1 {
			t.Errorf("participant %s: expected 1 prepare and 1 decide call, got %d/%d", p.ID(), prep, dec)
		}
	}
}

func TestExecuteAbortsOnSingleNoVote(t *testing.T) {
	coord := NewCoordinator(testTx(), 5*time.Second)
	p1 := newMockParticipant("p1")
	p2 := newMockParticipant("p2")
	p2.prepareVote = model.VoteAbort

	coord.AddParticipant(p1)
	coord.AddParticipant(p2)

	decision, err := coord.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if decision != model.DecisionGlobalAbort {
		t.Errorf("expected GLOBAL_ABORT, got %v", decision)
	}
	if coord.GetState() != CoordinatorStateAborted {
		t.Errorf("expected state Aborted, got %v", coord.GetState())
	}
}

func TestExecuteAbortsOnPrepareError(t *testing.T) {
	coord := NewCoordinator(testTx(), 5*time.Second)
	p1 := newMockParticipant("p1")
	p2 := newMockParticipant("p2")
	p2.prepareError = errors.New("boom")

	coord.AddParticipant(p1)
	coord.AddParticipant(p2)

	decision, err := coord.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if decision != model.DecisionGlobalAbort {
		t.Errorf("expected GLOBAL_ABORT, got %v", decision)
	}
}

func TestPrepareTimeoutCountsAsAbort(t *testing.T) {
	coord := NewCoordinator(testTx(), 50*time.Millisecond)
	p1 := newMockParticipant("p1")
	p2 := newMockParticipant("p2")
	p2.prepareDelay = 200 * time.Millisecond

	coord.AddParticipant(p1)
	coord.AddParticipant(p2)

	decision, err := coord.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if decision != model.DecisionGlobalAbort {
		t.Errorf("expected GLOBAL_ABORT on timeout, got %v", decision)
	}
}

func TestDecideBeforePrepareFails(t *testing.T) {
	coord := NewCoordinator(testTx(), 5*time.Second)
	coord.AddParticipant(newMockParticipant("p1"))

	if err := coord.Decide(context.Background(), model.DecisionGlobalCommit); !errors.Is(err, ErrCoordinatorNotPreparing) {
		t.Errorf("expected ErrCoordinatorNotPreparing, got %v", err)
	}
}

func TestDecideReportsUnacknowledgedParticipants(t *testing.T) {
	coord := NewCoordinator(testTx(), 5*time.Second)
	p1 := newMockParticipant("p1")
	p1.decideError = errors.New("peer unreachable")
	coord.AddParticipant(p1)

	if _, _, err := coord.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := coord.Decide(context.Background(), model.DecisionGlobalCommit); err == nil {
		t.Fatal("expected error surfaced from failed decide acknowledgement")
	}
	// The coordinator's own terminal state is still recorded; a failed ack
	// is left to the recovery sweep, not retried inline.
	if coord.GetState() != CoordinatorStateCommitted {
		t.Errorf("expected state Committed despite the ack failure, got %v", coord.GetState())
	}
}

func TestConcurrentParticipantsCompleteInParallel(t *testing.T) {
	coord := NewCoordinator(testTx(), 10*time.Second)
	participants := make([]*mockParticipant, 0, 50)
	for i := 0; i < 50; i++ {
		p := newMockParticipant(string(rune('a' + i%26)))
		p.prepareDelay = time.Duration(i%5) * time.Millisecond
		participants = append(participants, p)
		coord.AddParticipant(p)
	}

	start := time.Now()
	decision, err := coord.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("execution took too long for parallel fan-out")
	}
	if decision != model.DecisionGlobalCommit {
		t.Errorf("expected GLOBAL_COMMIT, got %v", decision)
	}
}
