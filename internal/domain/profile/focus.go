package profile

import (
	"strings"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// FocusArea is a wellness topic a student wants to work on.
type FocusArea string

const (
	FocusAnxiety    FocusArea = "ANXIETY"
	FocusStress     FocusArea = "STRESS"
	FocusDepression FocusArea = "DEPRESSION"
	FocusMotivation FocusArea = "MOTIVATION"
	FocusObesity    FocusArea = "OBESITY"
	FocusSleep      FocusArea = "SLEEP"
)

// AllFocusAreas lists the areas in display order.
var AllFocusAreas = []FocusArea{
	FocusAnxiety, FocusStress, FocusDepression, FocusMotivation, FocusObesity, FocusSleep,
}

var focusLabels = map[FocusArea]string{
	FocusAnxiety:    "Anxiety",
	FocusStress:     "Stress",
	FocusDepression: "Depression",
	FocusMotivation: "Motivation",
	FocusObesity:    "Obesity",
	FocusSleep:      "Sleep",
}

// IsValid reports whether a is a known area.
func (a FocusArea) IsValid() bool {
	_, ok := focusLabels[a]
	return ok
}

// Label returns the human-readable name.
func (a FocusArea) Label() string {
	return focusLabels[a]
}

func (a FocusArea) bit() FocusSet {
	for i, v := range AllFocusAreas {
		if v == a {
			return 1 << i
		}
	}
	return 0
}

// ParseFocusArea accepts the enum name in any case.
func ParseFocusArea(s string) (FocusArea, error) {
	a := FocusArea(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", shared.ErrInvalidFocusArea
	}
	return a, nil
}

// FocusSet is an immutable set of focus areas.
type FocusSet uint8

// NewFocusSet builds a set from areas. Unknown areas are ignored.
func NewFocusSet(areas ...FocusArea) FocusSet {
	var s FocusSet
	for _, a := range areas {
		s |= a.bit()
	}
	return s
}

// ParseFocusSet parses area names, rejecting unknown ones.
func ParseFocusSet(names []string) (FocusSet, error) {
	var s FocusSet
	for _, n := range names {
		a, err := ParseFocusArea(n)
		if err != nil {
			return 0, err
		}
		s |= a.bit()
	}
	return s, nil
}

// Toggle adds a if absent, removes it if present. Toggling twice is the identity.
func (s FocusSet) Toggle(a FocusArea) FocusSet {
	return s ^ a.bit()
}

// Contains reports whether a is in the set.
func (s FocusSet) Contains(a FocusArea) bool {
	b := a.bit()
	return b != 0 && s&b != 0
}

// Len returns the number of areas.
func (s FocusSet) Len() int {
	n := 0
	for _, a := range AllFocusAreas {
		if s.Contains(a) {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no area is selected.
func (s FocusSet) IsEmpty() bool {
	return s.Len() == 0
}

// Areas returns the members in display order.
func (s FocusSet) Areas() []FocusArea {
	out := make([]FocusArea, 0, len(AllFocusAreas))
	for _, a := range AllFocusAreas {
		if s.Contains(a) {
			out = append(out, a)
		}
	}
	return out
}

// Strings returns the member names in display order.
func (s FocusSet) Strings() []string {
	areas := s.Areas()
	out := make([]string, len(areas))
	for i, a := range areas {
		out[i] = string(a)
	}
	return out
}
