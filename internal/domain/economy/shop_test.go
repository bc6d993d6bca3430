package economy

import (
	"testing"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(coins int) companion.Account {
	return companion.Account{
		UserID: "u1",
		Wallet: shared.Wallet{Coins: shared.Coins(coins)},
		State:  companion.NewState(companion.SpeciesCat),
	}
}

func TestCatalog(t *testing.T) {
	items := Catalog()
	require.Len(t, items, 3)
	assert.Equal(t, Item{ID: ItemBasic, Name: "Basic Food", Price: 10, Yield: 1}, items[0])
	assert.Equal(t, 45, items[1].Price)
	assert.Equal(t, 5, items[1].Yield)
	assert.Equal(t, 80, items[2].Price)
	assert.Equal(t, 10, items[2].Yield)

	// Bulk packs are cheaper per unit.
	assert.Less(t, items[0].YieldPerCoin(), items[1].YieldPerCoin())
	assert.Less(t, items[1].YieldPerCoin(), items[2].YieldPerCoin())

	items[0].Price = 1
	assert.Equal(t, 10, Catalog()[0].Price)
}

func TestFindItem(t *testing.T) {
	it, err := FindItem("premium")
	require.NoError(t, err)
	assert.Equal(t, ItemPremium, it.ID)

	_, err = FindItem("gold")
	assert.True(t, shared.IsNotFound(err))
}

func TestPurchase(t *testing.T) {
	premium, _ := FindItem("PREMIUM")

	t.Run("exact balance", func(t *testing.T) {
		acc, out := Purchase(account(45), premium)
		assert.True(t, out.Applied)
		assert.Equal(t, shared.Coins(0), acc.Wallet.Coins)
		assert.Equal(t, 5, acc.State.Food)
	})

	t.Run("insufficient funds is a no-op", func(t *testing.T) {
		before := account(44)
		acc, out := Purchase(before, premium)
		assert.False(t, out.Applied)
		assert.Equal(t, companion.ReasonInsufficientFunds, out.Reason)
		assert.Equal(t, before, acc)
	})

	t.Run("deluxe", func(t *testing.T) {
		deluxe, _ := FindItem("DELUXE")
		acc, out := Purchase(account(100), deluxe)
		assert.True(t, out.Applied)
		assert.Equal(t, shared.Coins(20), acc.Wallet.Coins)
		assert.Equal(t, 10, acc.State.Food)
	})
}

func TestCanAfford(t *testing.T) {
	basic, _ := FindItem("BASIC")
	assert.True(t, CanAfford(10, basic))
	assert.False(t, CanAfford(9, basic))
}
