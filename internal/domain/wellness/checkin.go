package wellness

import (
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// CheckinKind tags the anxiety questionnaire.
const CheckinKind = "anxiety_checkin"

// CheckinQuestions are asked in this order on every check-in.
var CheckinQuestions = []string{
	"How often do you feel nervous, anxious or on edge?",
	"How often are you unable to stop worrying?",
	"How often do you worry about different things?",
	"How often do you become easily annoyed and irritable?",
	"How often do you feel afraid, as if something bad might happen?",
}

// CheckinOptions are the allowed answers.
var CheckinOptions = []string{"Not at all", "Few days a week", "All the time"}

// Checkin is an immutable submitted questionnaire.
type Checkin struct {
	ID        string
	UserID    string
	Kind      string
	Date      time.Time
	Questions []string
	// Index-aligned with Questions.
	Answers []string
}

// NewCheckin validates answers: every question answered with one of the
// options.
func NewCheckin(id, userID string, answers []string, now time.Time) (Checkin, error) {
	if len(answers) != len(CheckinQuestions) {
		return Checkin{}, shared.ErrIncompleteCheckin
	}
	for _, a := range answers {
		if a == "" {
			return Checkin{}, shared.ErrIncompleteCheckin
		}
		if !isOption(a) {
			return Checkin{}, shared.ErrInvalidAnswer
		}
	}

	qs := make([]string, len(CheckinQuestions))
	copy(qs, CheckinQuestions)
	as := make([]string, len(answers))
	copy(as, answers)

	return Checkin{
		ID:        id,
		UserID:    userID,
		Kind:      CheckinKind,
		Date:      now,
		Questions: qs,
		Answers:   as,
	}, nil
}

func isOption(a string) bool {
	for _, o := range CheckinOptions {
		if o == a {
			return true
		}
	}
	return false
}

// Score sums answer indices (0-2 each) for a 0-10 anxiety indicator.
func (c Checkin) Score() int {
	total := 0
	for _, a := range c.Answers {
		for i, o := range CheckinOptions {
			if o == a {
				total += i
			}
		}
	}
	return total
}

// GrantKey is the check-in's one-time reward key.
func (c Checkin) GrantKey() string {
	return CheckinGrantKey(c.ID)
}
