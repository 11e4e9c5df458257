package txn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mnohosten/cardmesh/internal/model"
)

// localParticipant routes prepare/decide calls straight into the Engine's
// own business logic, skipping the network entirely when a transaction's
// participant list includes this node. Every node is always its own
// participant (spec.md §4.2.1 step 1: "the coordinator also votes").
type localParticipant struct {
	engine *Engine
}

func (p *localParticipant) ID() string { return p.engine.self }

func (p *localParticipant) Prepare(ctx context.Context, tx model.Transaction) (model.Vote, string, error) {
	return p.engine.prepare(ctx, tx)
}

func (p *localParticipant) Decide(ctx context.Context, txID string, kind model.TxKind, decision model.Decision) error {
	return p.engine.decide(ctx, txID, kind, decision)
}

// remoteParticipant reaches a peer node over the RPC Mesh's peer-facing
// endpoints (spec.md §4.3).
type remoteParticipant struct {
	baseURL string
	client  *http.Client
}

func (p *remoteParticipant) ID() string { return p.baseURL }

func (p *remoteParticipant) Prepare(ctx context.Context, tx model.Transaction) (model.Vote, string, error) {
	path := preparePath(tx.Kind)
	if path == "" {
		return model.VoteAbort, "", fmt.Errorf("%w: %s", ErrUnsupportedTxKind, tx.Kind)
	}

	var resp model.VoteResponse
	if err := p.postJSON(ctx, path, model.VoteRequest{Transaction: tx}, &resp); err != nil {
		return model.VoteAbort, "", err
	}
	return resp.Vote, resp.Reason, nil
}

func (p *remoteParticipant) Decide(ctx context.Context, txID string, kind model.TxKind, decision model.Decision) error {
	path := decidePath(kind)
	if path == "" {
		return fmt.Errorf("%w: %s", ErrUnsupportedTxKind, kind)
	}
	return p.postJSON(ctx, path, model.DecideRequest{TxID: txID, Decision: decision}, nil)
}

func (p *remoteParticipant) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("call peer %s%s: %w", p.baseURL, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("peer %s%s returned status %d", p.baseURL, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func preparePath(kind model.TxKind) string {
	switch kind {
	case model.TxKindOpenPack:
		return "/transacao/abrir_pacote/prepare"
	case model.TxKindTradeCards:
		return "/inventario/troca/prepare"
	default:
		return ""
	}
}

func decidePath(kind model.TxKind) string {
	switch kind {
	case model.TxKindOpenPack:
		return "/transacao/abrir_pacote/commit_abort"
	case model.TxKindTradeCards:
		return "/inventario/troca/commit_abort"
	default:
		return ""
	}
}
