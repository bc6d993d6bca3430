package profile

import (
	"testing"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func TestFocusSet_Toggle(t *testing.T) {
	var s FocusSet
	s = s.Toggle(FocusSleep).Toggle(FocusAnxiety)

	assert.Equal(t, []FocusArea{FocusAnxiety, FocusSleep}, s.Areas())
	assert.Equal(t, 2, s.Len())

	// Double toggle is the identity.
	for _, a := range AllFocusAreas {
		assert.Equal(t, s, s.Toggle(a).Toggle(a))
	}

	s = s.Toggle(FocusAnxiety)
	assert.False(t, s.Contains(FocusAnxiety))
	assert.Equal(t, []string{"SLEEP"}, s.Strings())
}

func TestParseFocusSet(t *testing.T) {
	s, err := ParseFocusSet([]string{"stress", "SLEEP", "stress"})
	require.NoError(t, err)
	assert.Equal(t, NewFocusSet(FocusStress, FocusSleep), s)

	_, err = ParseFocusSet([]string{"boredom"})
	assert.ErrorIs(t, err, shared.ErrInvalidFocusArea)
	assert.Equal(t, "Obesity", FocusObesity.Label())
}

func TestNewProfile(t *testing.T) {
	p, err := NewProfile(" uid-1 ", "a@b.c", RoleStudent, now)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", p.ID)
	assert.True(t, p.IsStudent())
	assert.False(t, p.HasConfirmedFocus())
	assert.Zero(t, p.Wallet)

	_, err = NewProfile("", "a@b.c", RoleStudent, now)
	assert.True(t, shared.IsValidation(err))

	_, err = NewProfile("x", "a@b.c", Role("ADMIN"), now)
	assert.ErrorIs(t, err, shared.ErrInvalidRole)
}

func TestConfirmFocus(t *testing.T) {
	p, _ := NewProfile("u", "", RoleStudent, now)

	assert.ErrorIs(t, p.ConfirmFocus(0, now), shared.ErrNoFocusSelected)
	assert.False(t, p.HasConfirmedFocus())

	require.NoError(t, p.ConfirmFocus(NewFocusSet(FocusStress), now))
	require.NoError(t, p.ConfirmFocus(NewFocusSet(FocusSleep), now.Add(time.Hour)))
	assert.Equal(t, NewFocusSet(FocusSleep), p.Focus)
	assert.Equal(t, now.Add(time.Hour), p.FocusConfirmedAt)
}

func TestSelectCompanion(t *testing.T) {
	p, _ := NewProfile("u", "", RoleStudent, now)

	require.NoError(t, p.SelectCompanion(companion.SpeciesCat, now))
	require.NoError(t, p.SelectCompanion(companion.SpeciesDog, now))
	assert.Equal(t, companion.SpeciesDog, p.SelectedCompanion)

	assert.ErrorIs(t, p.SelectCompanion(companion.SpeciesRabbit, now), shared.ErrSpeciesUnavailable)
	assert.Equal(t, companion.SpeciesDog, p.SelectedCompanion)
}

func TestSaveMentorDetails(t *testing.T) {
	student, _ := NewProfile("s", "", RoleStudent, now)
	details := MentorDetails{Name: " Dana ", Bio: "CBT practitioner", Availability: AvailabilityWeeknights}
	assert.ErrorIs(t, student.SaveMentorDetails(details, now), shared.ErrNotAMentor)

	mentor, _ := NewProfile("m", "m@x.io", RoleMentor, now)
	assert.Equal(t, "m@x.io", mentor.DisplayName())

	assert.ErrorIs(t, mentor.SaveMentorDetails(MentorDetails{Name: "D", Availability: "SOMETIMES"}, now), shared.ErrInvalidAvailability)
	assert.True(t, shared.IsValidation(mentor.SaveMentorDetails(MentorDetails{Availability: AvailabilityFlexible}, now)))

	require.NoError(t, mentor.SaveMentorDetails(details, now))
	assert.Equal(t, "Dana", mentor.DisplayName())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("mentor")
	require.NoError(t, err)
	assert.Equal(t, RoleMentor, r)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestPaired(t *testing.T) {
	student, _ := NewProfile("s1", "", RoleStudent, now)
	mentor, _ := NewProfile("m1", "", RoleMentor, now)
	other, _ := NewProfile("m2", "", RoleMentor, now)

	assert.False(t, Paired(student, mentor))

	student.AssignedMentorID = "m1"
	assert.True(t, Paired(student, mentor))
	assert.True(t, Paired(mentor, student))
	assert.False(t, Paired(student, other))
	assert.False(t, Paired(mentor, other))
	assert.False(t, Paired(student, nil))
}
