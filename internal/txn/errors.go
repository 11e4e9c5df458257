package txn

import "errors"

var (
	// ErrCoordinatorNotInit is returned when Prepare is called twice on the
	// same coordinator.
	ErrCoordinatorNotInit = errors.New("coordinator not in init state")

	// ErrCoordinatorNotPreparing is returned when Decide is called before
	// Prepare.
	ErrCoordinatorNotPreparing = errors.New("coordinator not in preparing state")

	// ErrAlreadyDecided is returned when Decide is called on a coordinator
	// that already reached a terminal state.
	ErrAlreadyDecided = errors.New("transaction already decided")

	// ErrParticipantAlreadyAdded is returned by AddParticipant on a duplicate
	// peer URL.
	ErrParticipantAlreadyAdded = errors.New("participant already added")

	// ErrNotAllPrepared is returned by Engine.OpenPack and Engine.TradeCards
	// when the decision is GLOBAL_ABORT because at least one participant
	// voted VOTE_ABORT or failed to answer prepare.
	ErrNotAllPrepared = errors.New("not all participants voted VOTE_COMMIT")

	// ErrUnknownCard is returned by Engine.TradeCards when a trade references
	// a card id the inventory does not hold; participant-side prepare reports
	// the same condition as a VOTE_ABORT reason instead of an error.
	ErrUnknownCard = errors.New("card not found in inventory")

	// ErrUnknownPlayer is returned when a referenced player has no inventory
	// record at all.
	ErrUnknownPlayer = errors.New("player has no inventory record")

	// ErrVersionMismatch is the VOTE_ABORT reason trade prepare reports when
	// an inventory's version no longer matches the one the coordinator
	// locked, per the trade-locking resolution in DESIGN.md. Decide treats
	// the same condition as a compensating no-op and returns nil.
	ErrVersionMismatch = errors.New("inventory version changed since prepare")

	// ErrUnsupportedTxKind is returned when a Transaction carries a Kind this
	// engine does not know how to handle.
	ErrUnsupportedTxKind = errors.New("unsupported transaction kind")

	// ErrNoPacksAvailable is the precondition error surfaced when a player's
	// local packs_available is already zero, per spec.md §7's Precondition
	// taxonomy. Checked before the coordinator ever journals a transaction.
	ErrNoPacksAvailable = errors.New("no packs available")
)
