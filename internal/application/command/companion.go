package command

import (
	"context"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/economy"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPANION COMMANDS
// Feed, level up and purchase all act on the selected companion through one
// atomic Apply. A failed precondition comes back as an Outcome, not an error.
// ══════════════════════════════════════════════════════════════════════════════

// CompanionResult is the state after a companion command.
type CompanionResult struct {
	Outcome companion.Outcome
	State   companion.State
	Wallet  shared.Wallet
}

// CompanionHandler handles the feed, level-up and purchase commands.
type CompanionHandler struct {
	profiles   profile.Repository
	companions companion.Repository
	publisher  shared.EventPublisher
	cache      profile.Invalidator
	rules      companion.Rules
}

// NewCompanionHandler creates a new CompanionHandler. cache may be nil.
func NewCompanionHandler(
	profiles profile.Repository,
	companions companion.Repository,
	publisher shared.EventPublisher,
	cache profile.Invalidator,
	rules companion.Rules,
) *CompanionHandler {
	return &CompanionHandler{
		profiles:   profiles,
		companions: companions,
		publisher:  publisher,
		cache:      cache,
		rules:      rules,
	}
}

// Feed spends one food on the selected companion.
func (h *CompanionHandler) Feed(ctx context.Context, userID string) (*CompanionResult, error) {
	res, err := h.apply(ctx, userID, "Feed", func(acc companion.Account) (companion.Account, companion.Outcome) {
		st, out := companion.Feed(acc.State, h.rules)
		acc.State = st
		return acc, out
	})
	if err != nil || !res.Outcome.Applied {
		return res, err
	}
	h.publishState(ctx, shared.EventCompanionFed, userID, res)
	return res, nil
}

// LevelUp raises the selected companion's level when progress reached the goal.
func (h *CompanionHandler) LevelUp(ctx context.Context, userID string) (*CompanionResult, error) {
	res, err := h.apply(ctx, userID, "LevelUp", func(acc companion.Account) (companion.Account, companion.Outcome) {
		st, out := companion.LevelUp(acc.State, h.rules)
		acc.State = st
		return acc, out
	})
	if err != nil || !res.Outcome.Applied {
		return res, err
	}
	h.publishState(ctx, shared.EventCompanionLevelUp, userID, res)
	return res, nil
}

// PurchaseFoodCommand buys one shop item for the selected companion.
type PurchaseFoodCommand struct {
	UserID string
	ItemID string
}

// Purchase deducts the price and stocks the food. Unknown items are an error;
// insufficient funds is an Outcome.
func (h *CompanionHandler) Purchase(ctx context.Context, cmd PurchaseFoodCommand) (*CompanionResult, error) {
	item, err := economy.FindItem(cmd.ItemID)
	if err != nil {
		return nil, err
	}

	res, err := h.apply(ctx, cmd.UserID, "Purchase", func(acc companion.Account) (companion.Account, companion.Outcome) {
		return economy.Purchase(acc, item)
	})
	if err != nil || !res.Outcome.Applied {
		return res, err
	}

	invalidate(ctx, h.cache, cmd.UserID)
	h.publishState(ctx, shared.EventFoodPurchased, cmd.UserID, res)
	return res, nil
}

func (h *CompanionHandler) apply(ctx context.Context, userID, op string, m companion.Mutation) (*CompanionResult, error) {
	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.SelectedCompanion == "" {
		return &CompanionResult{
			Outcome: companion.Rejected(companion.ReasonNoCompanion),
			State:   companion.NewState(""),
			Wallet:  p.Wallet,
		}, nil
	}

	acc, out, err := h.companions.Apply(ctx, userID, p.SelectedCompanion, m)
	if err != nil {
		logger.FromContext(ctx).Error("companion update failed",
			logger.UserID(userID),
			logger.Species(string(p.SelectedCompanion)),
			logger.Operation(op),
			logger.Err(err),
		)
		return nil, err
	}
	return &CompanionResult{Outcome: out, State: acc.State, Wallet: acc.Wallet}, nil
}

func (h *CompanionHandler) publishState(ctx context.Context, t shared.EventType, userID string, res *CompanionResult) {
	publish(ctx, h.publisher, shared.NewCompanionEvent(
		t,
		userID,
		string(res.State.Species),
		res.State.Level,
		res.State.Progress,
		res.State.Food,
		res.Wallet.Coins.Int(),
	))
}
