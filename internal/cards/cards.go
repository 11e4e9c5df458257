// Package cards implements the one pure function this system treats as an
// external collaborator: turning a transaction id into a bounded list of
// minted cards. Kept deterministic (seeded from tx_id) so every participant
// that independently runs the commit-side mint for an open_pack transaction
// produces byte-identical cards — see the second open question in
// spec.md §9 and its resolution in DESIGN.md.
package cards

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/mnohosten/cardmesh/internal/model"
)

var kinds = []model.CardKind{model.CardKindRock, model.CardKindPaper, model.CardKindScissors}

var skins = []string{"default", "neon", "gilded", "shadow", "frost", "ember"}

// rarityTable mirrors a typical loot-table shape: commons dominate,
// legendaries are rare. Each entry is drawn with equal probability, so a
// rarity's share of the table is its weight.
var rarityTable = []model.Rarity{
	model.RarityCommon, model.RarityCommon, model.RarityCommon, model.RarityCommon,
	model.RarityUncommon, model.RarityUncommon, model.RarityUncommon,
	model.RarityRare, model.RarityRare,
	model.RarityLegendary,
}

// CardsPerPack is how many cards a single pack yields.
const CardsPerPack = 3

// Seed derives a deterministic PRNG seed from a tx_id so that every caller
// minting cards for the same transaction gets the same sequence.
func Seed(txID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(txID))
	return int64(h.Sum64())
}

// Mint generates quantity*CardsPerPack cards for the given tx_id. The
// resulting card_ids are derived from tx_id and a running index so they are
// also deterministic and collision-free within one transaction.
func Mint(txID string, quantity int) []model.Card {
	rng := rand.New(rand.NewSource(Seed(txID)))

	out := make([]model.Card, 0, quantity*CardsPerPack)
	for i := 0; i < quantity*CardsPerPack; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		skin := skins[rng.Intn(len(skins))]
		rarity := rarityTable[rng.Intn(len(rarityTable))]

		out = append(out, model.Card{
			CardID:      fmt.Sprintf("%s-%d", txID, i),
			Kind:        kind,
			Skin:        skin,
			Rarity:      rarity,
			DisplayName: fmt.Sprintf("%s %s (%s)", capitalize(skin), capitalize(string(kind)), rarity),
		})
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
