package query

import (
	"context"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/economy"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// CompanionDTO is the companion card. Without a selection it shows the
// defaults: "Your Pet", level 1, zero stats.
type CompanionDTO struct {
	Selected   bool   `json:"selected"`
	Species    string `json:"species,omitempty"`
	Name       string `json:"name"`
	Subtitle   string `json:"subtitle,omitempty"`
	Level      int    `json:"level"`
	Progress   int    `json:"progress"`
	Goal       int    `json:"goal"`
	Percent    int    `json:"percent"`
	Food       int    `json:"food"`
	CanLevelUp bool   `json:"can_level_up"`
}

// NewCompanionDTO builds the card for st.
func NewCompanionDTO(st companion.State, rules companion.Rules) CompanionDTO {
	st = st.Normalize()
	return CompanionDTO{
		Selected:   st.Species != "",
		Species:    string(st.Species),
		Name:       st.Name(),
		Subtitle:   st.Species.Subtitle(),
		Level:      st.Level,
		Progress:   st.Progress,
		Goal:       rules.Goal,
		Percent:    companion.PercentToGoal(st, rules),
		Food:       st.Food,
		CanLevelUp: companion.CanLevelUp(st, rules),
	}
}

// GetCompanionHandler reads the selected companion.
type GetCompanionHandler struct {
	profiles   profile.Repository
	companions companion.Repository
	rules      companion.Rules
}

// NewGetCompanionHandler creates a new GetCompanionHandler.
func NewGetCompanionHandler(profiles profile.Repository, companions companion.Repository, rules companion.Rules) *GetCompanionHandler {
	return &GetCompanionHandler{profiles: profiles, companions: companions, rules: rules}
}

// Handle returns the card for the caller's selected companion.
func (h *GetCompanionHandler) Handle(ctx context.Context, userID string) (*CompanionDTO, error) {
	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return h.forProfile(ctx, p)
}

func (h *GetCompanionHandler) forProfile(ctx context.Context, p *profile.Profile) (*CompanionDTO, error) {
	st := companion.NewState(p.SelectedCompanion)
	if p.SelectedCompanion != "" {
		stored, err := h.companions.Get(ctx, p.ID, p.SelectedCompanion)
		switch {
		case err == nil:
			st = stored
		case !shared.IsNotFound(err):
			return nil, err
		}
	}
	dto := NewCompanionDTO(st, h.rules)
	return &dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET SHOP QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ShopItemDTO is a catalog entry with the caller's affordability.
type ShopItemDTO struct {
	economy.Item
	YieldPerCoin float64 `json:"yield_per_coin"`
	Affordable   bool    `json:"affordable"`
}

// ShopDTO is the shop screen.
type ShopDTO struct {
	Coins int           `json:"coins"`
	Items []ShopItemDTO `json:"items"`
}

// GetShopHandler lists the catalog for a user.
type GetShopHandler struct {
	profiles profile.Repository
}

// NewGetShopHandler creates a new GetShopHandler.
func NewGetShopHandler(profiles profile.Repository) *GetShopHandler {
	return &GetShopHandler{profiles: profiles}
}

// Handle marks which items the caller can afford.
func (h *GetShopHandler) Handle(ctx context.Context, userID string) (*ShopDTO, error) {
	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := economy.Catalog()
	dto := &ShopDTO{Coins: p.Wallet.Coins.Int(), Items: make([]ShopItemDTO, 0, len(items))}
	for _, it := range items {
		dto.Items = append(dto.Items, ShopItemDTO{
			Item:         it,
			YieldPerCoin: it.YieldPerCoin(),
			Affordable:   economy.CanAfford(p.Wallet.Coins, it),
		})
	}
	return dto, nil
}
