package companion

import (
	"strings"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// Species is the kind of virtual pet.
type Species string

const (
	SpeciesCat    Species = "CAT"
	SpeciesDog    Species = "DOG"
	SpeciesBird   Species = "BIRD"
	SpeciesRabbit Species = "RABBIT"
)

type speciesInfo struct {
	title      string
	subtitle   string
	selectable bool
}

var species = map[Species]speciesInfo{
	SpeciesCat:  {"Cat", "Calm & Independent", true},
	SpeciesDog:  {"Dog", "Loyal & Energetic", true},
	SpeciesBird: {"Bird", "Free & Soaring", true},
	// Defined but not offered in the picker.
	SpeciesRabbit: {"Rabbit", "Gentle & Swift", false},
}

// DefaultName is shown when no companion is selected.
const DefaultName = "Your Pet"

// IsValid reports whether s is a known species.
func (s Species) IsValid() bool {
	_, ok := species[s]
	return ok
}

// IsSelectable reports whether users may pick s.
func (s Species) IsSelectable() bool {
	return species[s].selectable
}

// Title is the display name, or DefaultName for the empty species.
func (s Species) Title() string {
	if info, ok := species[s]; ok {
		return info.title
	}
	return DefaultName
}

// Subtitle is the one-line personality blurb.
func (s Species) Subtitle() string {
	return species[s].subtitle
}

// ParseSpecies accepts the species name in any case.
func ParseSpecies(v string) (Species, error) {
	s := Species(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", shared.ErrInvalidSpecies
	}
	return s, nil
}

// ValidateSelectable rejects unknown and hidden species.
func ValidateSelectable(s Species) error {
	if !s.IsValid() {
		return shared.ErrInvalidSpecies
	}
	if !s.IsSelectable() {
		return shared.ErrSpeciesUnavailable
	}
	return nil
}

// SelectableSpecies lists the picker options in display order.
func SelectableSpecies() []Species {
	return []Species{SpeciesCat, SpeciesDog, SpeciesBird}
}
