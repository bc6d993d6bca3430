// Package companion holds the progression rules for a user's virtual pet.
// All operations are pure: they take a value and return a new value plus an
// Outcome. A failed precondition is an Outcome, never an error.
package companion

// State is one companion's stats. One per user per species.
type State struct {
	Species  Species
	Level    int
	Progress int
	Food     int
}

// NewState returns the starting stats for s.
func NewState(s Species) State {
	return State{Species: s, Level: 1}
}

// Name is the display name of the companion.
func (s State) Name() string {
	return s.Species.Title()
}

// Valid reports whether the invariants hold: level >= 1, progress >= 0,
// food >= 0.
func (s State) Valid() bool {
	return s.Level >= 1 && s.Progress >= 0 && s.Food >= 0
}

// Normalize repairs documents written by older clients (missing or zeroed
// fields) so they satisfy the invariants.
func (s State) Normalize() State {
	if s.Level < 1 {
		s.Level = 1
	}
	if s.Progress < 0 {
		s.Progress = 0
	}
	if s.Food < 0 {
		s.Food = 0
	}
	return s
}

// Rules are the tunable progression constants.
type Rules struct {
	Goal         int
	FeedProgress int
}

// DefaultRules are goal 100 and +15 progress per feed.
func DefaultRules() Rules {
	return Rules{Goal: 100, FeedProgress: 15}
}

// Reason explains why an operation was not applied.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoFood            Reason = "no_food"
	ReasonBelowGoal         Reason = "progress_below_goal"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonNoCompanion       Reason = "no_companion_selected"
)

// Outcome reports whether a mutation took effect.
type Outcome struct {
	Applied bool   `json:"applied"`
	Reason  Reason `json:"reason,omitempty"`
}

// Applied is the successful Outcome.
func Applied() Outcome { return Outcome{Applied: true} }

// Rejected is a no-op Outcome with a reason.
func Rejected(r Reason) Outcome { return Outcome{Reason: r} }

// Feed spends one food for FeedProgress progress. Progress is not clamped at
// the goal: 95 + 15 = 110.
func Feed(s State, r Rules) (State, Outcome) {
	if s.Food <= 0 {
		return s, Rejected(ReasonNoFood)
	}
	s.Food--
	s.Progress += r.FeedProgress
	return s, Applied()
}

// CanLevelUp reports whether progress reached the goal.
func CanLevelUp(s State, r Rules) bool {
	return s.Progress >= r.Goal
}

// LevelUp raises the level by one and resets progress to 0. Any overflow
// above the goal is discarded.
func LevelUp(s State, r Rules) (State, Outcome) {
	if !CanLevelUp(s, r) {
		return s, Rejected(ReasonBelowGoal)
	}
	s.Level++
	s.Progress = 0
	return s, Applied()
}

// AddProgress applies a reward's progress part. Negative amounts are ignored.
func AddProgress(s State, amount int) State {
	if amount > 0 {
		s.Progress += amount
	}
	return s
}

// AddFood stocks purchased food.
func AddFood(s State, amount int) State {
	if amount > 0 {
		s.Food += amount
	}
	return s
}

// PercentToGoal is progress as a 0-100 percentage for display.
func PercentToGoal(s State, r Rules) int {
	if r.Goal <= 0 {
		return 100
	}
	p := s.Progress * 100 / r.Goal
	if p > 100 {
		return 100
	}
	return p
}
