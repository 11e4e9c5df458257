// Package model holds the plain data types shared by every component of the
// coordination core: cards, inventories, the global stock counter, the 2PC
// transaction record, votes, decisions and the ephemeral player record.
//
// Field names mirror the wire contract peers exchange (see the JSON tags)
// rather than Go naming convention, since these structs are marshaled
// directly onto HTTP bodies and Redis values that other nodes must decode.
package model

// CardKind enumerates the three card kinds a pack can mint.
type CardKind string

const (
	CardKindRock     CardKind = "rock"
	CardKindPaper    CardKind = "paper"
	CardKindScissors CardKind = "scissors"
)

// Rarity enumerates card rarities, roughly in ascending order of scarcity.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
)

// Card is a value object: it has no owner field of its own, ownership is
// purely positional (which Inventory.Cards slice it lives in).
type Card struct {
	CardID      string   `json:"card_id"`
	Kind        CardKind `json:"kind"`
	Skin        string   `json:"skin"`
	Rarity      Rarity   `json:"rarity"`
	DisplayName string   `json:"display_name"`
}

// Inventory is owned by the Coordination Store and keyed by PlayerID.
//
// Version, ConsumedPackTxIDs and ReservedPackTxIDs are not part of the
// original data model; they exist to make three operations idempotent
// under crash/replay, per the resolved open questions in spec.md §9 (see
// DESIGN.md): Version guards concurrent trade prepares against a stale
// commit; ConsumedPackTxIDs guards card-minting on commit against being
// re-applied after a replayed decide; ReservedPackTxIDs guards the
// coordinator's local packs_available decrement (the pre-step taken before
// prepare, spec.md §4.2.2) against being double-decremented or
// double-restored if a crash lands between journaling the transaction and
// finishing the 2PC round.
type Inventory struct {
	PlayerID       string `json:"player_id"`
	Cards          []Card `json:"cards"`
	PacksAvailable int    `json:"packs_available"`

	Version            int      `json:"version"`
	ConsumedPackTxIDs  []string `json:"consumed_pack_tx_ids,omitempty"`
	ReservedPackTxIDs  []string `json:"reserved_pack_tx_ids,omitempty"`
}

// HasConsumedPack reports whether this inventory has already applied the
// local pack-consumption step for txID.
func (inv *Inventory) HasConsumedPack(txID string) bool {
	for _, id := range inv.ConsumedPackTxIDs {
		if id == txID {
			return true
		}
	}
	return false
}

// HasReservedPack reports whether this inventory's packs_available has
// already been locally decremented for txID.
func (inv *Inventory) HasReservedPack(txID string) bool {
	for _, id := range inv.ReservedPackTxIDs {
		if id == txID {
			return true
		}
	}
	return false
}

// ReservePack decrements PacksAvailable and records txID as the reason,
// guarding against a caller accidentally reserving the same txID twice.
// Returns false if there is no pack available to reserve.
func (inv *Inventory) ReservePack(txID string) bool {
	if inv.HasReservedPack(txID) {
		return true
	}
	if inv.PacksAvailable <= 0 {
		return false
	}
	inv.PacksAvailable--
	inv.ReservedPackTxIDs = append(inv.ReservedPackTxIDs, txID)
	return true
}

// ReleasePack restores PacksAvailable for a txID previously reserved by
// ReservePack, as a no-op if that reservation was already released (or
// never applied) so the restore path is idempotent under replay.
func (inv *Inventory) ReleasePack(txID string) {
	for i, id := range inv.ReservedPackTxIDs {
		if id == txID {
			inv.ReservedPackTxIDs = append(inv.ReservedPackTxIDs[:i], inv.ReservedPackTxIDs[i+1:]...)
			inv.PacksAvailable++
			return
		}
	}
}

// HasCard reports whether a card with the given id is present, along with
// its index so callers can splice it out without a second scan.
func (inv *Inventory) HasCard(cardID string) (int, bool) {
	for i := range inv.Cards {
		if inv.Cards[i].CardID == cardID {
			return i, true
		}
	}
	return -1, false
}

// RemoveCard removes the card at the given index, preserving the rest.
func (inv *Inventory) RemoveCard(idx int) {
	inv.Cards = append(inv.Cards[:idx], inv.Cards[idx+1:]...)
}

// GlobalStock is the singleton pack counter. The initial value is seeded by
// whichever node boots first and finds no stock key in the store.
type GlobalStock struct {
	PacksRemaining int `json:"packs_remaining"`
}

// InitialPackStock is the starting value for GlobalStock.PacksRemaining.
const InitialPackStock = 50

// TxKind discriminates the two operation kinds a Transaction can carry.
// Wire values use the original Portuguese terms per the external interface
// contract. TxKind is a plain string: JSON decoding accepts any value and
// does not reject an unknown kind; the engine rejects it later, when prepare
// or decide dispatches on it (ErrUnsupportedTxKind).
type TxKind string

const (
	TxKindOpenPack   TxKind = "abrir_pacote"
	TxKindTradeCards TxKind = "troca_cartas"
)

// TxStatus is the status a Transaction record carries in the Coordination
// Store. PREPARING is the only non-terminal state; once COMMITTED or
// ABORTED is written it is never revisited (I5).
type TxStatus string

const (
	TxStatusPreparing TxStatus = "PREPARING"
	TxStatusCommitted TxStatus = "COMMITTED"
	TxStatusAborted   TxStatus = "ABORTED"
)

// OpenPackPayload is the payload carried by an open_pack Transaction.
type OpenPackPayload struct {
	PlayerID string `json:"player_id"`
	Quantity int    `json:"quantity"`
}

// TradeCardsPayload is the payload carried by a trade_cards Transaction.
//
// LockedVersionA/LockedVersionB are written by whichever participant owns
// that side of the trade during prepare, capturing Inventory.Version at the
// moment the card's presence was confirmed. At decide time the same
// participant re-checks its inventory's current version against the locked
// one; a mismatch means the inventory moved between prepare and decide
// (e.g. a second trade raced in) and the swap is skipped as a compensating
// no-op rather than applied against stale state. This is the explicit
// per-inventory version token described in spec.md §9's open question on
// trade locking.
type TradeCardsPayload struct {
	PlayerA string `json:"player_a"`
	CardA   string `json:"card_a"`
	PlayerB string `json:"player_b"`
	CardB   string `json:"card_b"`

	LockedVersionA *int `json:"locked_version_a,omitempty"`
	LockedVersionB *int `json:"locked_version_b,omitempty"`
}

// Transaction is the durable 2PC record. Exactly one of OpenPack or
// TradeCards is populated, selected by Kind; this is the tagged-variant
// replacement for the original's untyped payload dict (see DESIGN.md).
type Transaction struct {
	TxID           string             `json:"tx_id"`
	CoordinatorURL string             `json:"coordinator_url"`
	Kind           TxKind             `json:"kind"`
	Status         TxStatus           `json:"status"`
	OpenPack       *OpenPackPayload   `json:"open_pack,omitempty"`
	TradeCards     *TradeCardsPayload `json:"trade_cards,omitempty"`
}

// Vote is a participant's phase-1 answer.
type Vote string

const (
	VoteCommit Vote = "VOTE_COMMIT"
	VoteAbort  Vote = "VOTE_ABORT"
)

// Decision is the coordinator's phase-2 ruling.
type Decision string

const (
	DecisionGlobalCommit Decision = "GLOBAL_COMMIT"
	DecisionGlobalAbort  Decision = "GLOBAL_ABORT"
)

// Player is an ephemeral, non-authoritative record: it is never persisted to
// the Coordination Store on its own, only echoed back on join.
type Player struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	HomeRegion  string `json:"home_region"`
}

// VoteRequest is the body of a peer prepare call.
type VoteRequest struct {
	Transaction Transaction `json:"transaction"`
}

// VoteResponse is the body returned by a peer prepare call.
type VoteResponse struct {
	Vote    Vote   `json:"vote"`
	Reason  string `json:"reason,omitempty"`
	PeerURL string `json:"peer_url"`
}

// DecideRequest is the body of a peer commit_abort call.
type DecideRequest struct {
	TxID     string   `json:"tx_id"`
	Decision Decision `json:"decision"`
}
