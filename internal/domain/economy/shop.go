// Package economy is the fixed shop that turns coins into companion food.
package economy

import (
	"strings"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// ItemID identifies a shop item.
type ItemID string

const (
	ItemBasic   ItemID = "BASIC"
	ItemPremium ItemID = "PREMIUM"
	ItemDeluxe  ItemID = "DELUXE"
)

// Item is a food pack for sale.
type Item struct {
	ID    ItemID `json:"id"`
	Name  string `json:"name"`
	Price int    `json:"price"`
	Yield int    `json:"yield"`
}

// YieldPerCoin is food per coin; larger packs are cheaper per unit.
func (i Item) YieldPerCoin() float64 {
	if i.Price <= 0 {
		return 0
	}
	return float64(i.Yield) / float64(i.Price)
}

var catalog = []Item{
	{ID: ItemBasic, Name: "Basic Food", Price: 10, Yield: 1},
	{ID: ItemPremium, Name: "Premium Food", Price: 45, Yield: 5},
	{ID: ItemDeluxe, Name: "Deluxe Feast", Price: 80, Yield: 10},
}

// Catalog returns a copy of the items in display order.
func Catalog() []Item {
	out := make([]Item, len(catalog))
	copy(out, catalog)
	return out
}

// FindItem looks up an item by id in any case.
func FindItem(id string) (Item, error) {
	want := ItemID(strings.ToUpper(strings.TrimSpace(id)))
	for _, it := range catalog {
		if it.ID == want {
			return it, nil
		}
	}
	return Item{}, shared.ErrUnknownShopItem
}

// CanAfford reports balance >= price.
func CanAfford(balance shared.Coins, item Item) bool {
	return balance.Covers(item.Price)
}

// Purchase deducts the price and adds the yield to the companion's food.
// With insufficient coins nothing changes.
func Purchase(acc companion.Account, item Item) (companion.Account, companion.Outcome) {
	if !CanAfford(acc.Wallet.Coins, item) {
		return acc, companion.Rejected(companion.ReasonInsufficientFunds)
	}
	acc.Wallet.Coins = acc.Wallet.Coins.Add(-item.Price)
	acc.State = companion.AddFood(acc.State, item.Yield)
	return acc, companion.Applied()
}
