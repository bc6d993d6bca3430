package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/economy"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, id string, role profile.Role, coins int) {
	t.Helper()
	p, err := profile.NewProfile(id, id+"@example.com", role, t0)
	require.NoError(t, err)
	p.Wallet.Coins = shared.Coins(coins)
	require.NoError(t, s.Profiles().Create(context.Background(), p))
}

func TestProfiles_CreateGetAndCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "u1", profile.RoleStudent, 0)

	p, err := s.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	p.Email = "mutated"

	again, _ := s.Profiles().Get(ctx, "u1")
	assert.Equal(t, "u1@example.com", again.Email)

	assert.ErrorIs(t, s.Profiles().Create(ctx, again), shared.ErrProfileAlreadyExists)
	_, err = s.Profiles().Get(ctx, "ghost")
	assert.True(t, shared.IsNotFound(err))
}

func TestProfiles_AssignAndListMentees(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "m1", profile.RoleMentor, 0)
	seed(t, s, "s1", profile.RoleStudent, 0)
	seed(t, s, "s2", profile.RoleStudent, 0)

	require.NoError(t, s.Profiles().AssignMentor(ctx, "s2", "m1"))
	require.NoError(t, s.Profiles().AssignMentor(ctx, "s1", "m1"))
	assert.ErrorIs(t, s.Profiles().AssignMentor(ctx, "s1", "s2"), shared.ErrNotAMentor)
	assert.ErrorIs(t, s.Profiles().AssignMentor(ctx, "m1", "m1"), shared.ErrNotAStudent)
	assert.True(t, shared.IsNotFound(s.Profiles().AssignMentor(ctx, "s1", "nobody")))

	mentees, err := s.Profiles().ListMentees(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, mentees, 2)
	assert.Equal(t, "s1", mentees[0].ID)
	assert.Equal(t, "s2", mentees[1].ID)
}

func TestCompanions_InitNeverResets(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "u1", profile.RoleStudent, 0)

	st, err := s.Companions().Init(ctx, "u1", companion.SpeciesCat)
	require.NoError(t, err)
	assert.Equal(t, companion.NewState(companion.SpeciesCat), st)

	_, _, err = s.Companions().Apply(ctx, "u1", companion.SpeciesCat, func(a companion.Account) (companion.Account, companion.Outcome) {
		a.State.Level = 4
		return a, companion.Applied()
	})
	require.NoError(t, err)

	st, err = s.Companions().Init(ctx, "u1", companion.SpeciesCat)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Level)
}

func TestCompanions_ApplyIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "u1", profile.RoleStudent, 100)
	basic, _ := economy.FindItem("BASIC")

	var wg sync.WaitGroup
	applied := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, out, err := s.Companions().Apply(ctx, "u1", companion.SpeciesDog, func(a companion.Account) (companion.Account, companion.Outcome) {
				return economy.Purchase(a, basic)
			})
			assert.NoError(t, err)
			applied <- out.Applied
		}()
	}
	wg.Wait()
	close(applied)

	n := 0
	for ok := range applied {
		if ok {
			n++
		}
	}
	assert.Equal(t, 10, n)

	p, _ := s.Profiles().Get(ctx, "u1")
	assert.Equal(t, shared.Coins(0), p.Wallet.Coins)
	st, _ := s.Companions().Get(ctx, "u1", companion.SpeciesDog)
	assert.Equal(t, 10, st.Food)
}

func TestCompanions_RejectedOutcomeWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "u1", profile.RoleStudent, 0)

	_, out, err := s.Companions().Apply(ctx, "u1", companion.SpeciesCat, func(a companion.Account) (companion.Account, companion.Outcome) {
		st, out := companion.Feed(a.State, companion.DefaultRules())
		a.State = st
		return a, out
	})
	require.NoError(t, err)
	assert.Equal(t, companion.ReasonNoFood, out.Reason)

	_, err = s.Companions().Get(ctx, "u1", companion.SpeciesCat)
	assert.ErrorIs(t, err, shared.ErrCompanionNotFound)
}

func TestMessages_AppendAssignsSeqAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewStore(WithClock(func() time.Time { return t0 }))
	conv, _ := chat.NewConversation("a", "b")

	for _, text := range []string{"one", "two", "three"} {
		m, err := chat.NewMessage(conv, text, "a", text)
		require.NoError(t, err)
		_, err = s.Messages().Append(ctx, m)
		require.NoError(t, err)
	}

	all, err := s.Messages().History(ctx, chat.HistoryQuery{ConversationID: conv.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{all[0].Text, all[1].Text, all[2].Text})
	assert.Less(t, all[0].Seq, all[1].Seq)

	tail, _ := s.Messages().History(ctx, chat.HistoryQuery{ConversationID: conv.ID, AfterSeq: all[0].Seq, Limit: 1})
	require.Len(t, tail, 1)
	assert.Equal(t, "two", tail[0].Text)
}

func TestWellness_GrantOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "u1", profile.RoleStudent, 0)

	c, err := wellness.NewCheckin("c1", "u1", []string{"Not at all", "Not at all", "Not at all", "Not at all", "Not at all"}, t0)
	require.NoError(t, err)
	g := wellness.Grant{UserID: "u1", Key: c.GrantKey(), Reward: wellness.DefaultRewardTable().Checkin, GrantedAt: t0}

	require.NoError(t, s.Wellness().ApplyGrant(ctx, g, companion.SpeciesCat, &c))
	assert.ErrorIs(t, s.Wellness().ApplyGrant(ctx, g, companion.SpeciesCat, &c), shared.ErrGrantAlreadyExists)

	p, _ := s.Profiles().Get(ctx, "u1")
	assert.Equal(t, shared.Wallet{Coins: 50, XP: 50}, p.Wallet)
	st, _ := s.Companions().Get(ctx, "u1", companion.SpeciesCat)
	assert.Equal(t, 10, st.Progress)

	list, err := s.Wellness().ListCheckins(ctx, "u1", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWellness_GrantWithoutCompanion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "u1", profile.RoleStudent, 0)

	g := wellness.Grant{UserID: "u1", Key: "lesson:x:1", Reward: wellness.DefaultRewardTable().Lesson}
	require.NoError(t, s.Wellness().ApplyGrant(ctx, g, "", nil))

	p, _ := s.Profiles().Get(ctx, "u1")
	assert.Equal(t, shared.Wallet{Coins: 15, XP: 15}, p.Wallet)
	_, err := s.Companions().Get(ctx, "u1", companion.SpeciesCat)
	assert.Error(t, err)
}

func TestWellness_Attempts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Wellness().GetAttempt(ctx, "u1", "a1")
	assert.ErrorIs(t, err, shared.ErrAttemptNotFound)

	require.NoError(t, s.Wellness().SaveAttempt(ctx, wellness.Attempt{ID: "a1", UserID: "u1", LessonID: "l"}))
	a, err := s.Wellness().GetAttempt(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "l", a.LessonID)
}
