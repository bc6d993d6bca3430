package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/companion-hub/companion-hub/internal/application/command"
	"github.com/companion-hub/companion-hub/internal/application/query"
	"github.com/companion-hub/companion-hub/internal/application/saga"
	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
	"github.com/companion-hub/companion-hub/internal/infrastructure/messaging"
	"github.com/companion-hub/companion-hub/internal/infrastructure/persistence/memory"
	"github.com/companion-hub/companion-hub/internal/interface/http/handlers"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "identity.test"
	testAdminKey = "admin-key"
)

type gate map[string]bool

func (g gate) IsEnabled(name, _ string) bool {
	on, ok := g[name]
	return !ok || on
}

type harness struct {
	t      *testing.T
	srv    *Server
	store  *memory.Store
	tokens *handlers.TokenVerifier
}

func newHarness(t *testing.T, mutate func(*Config, *Dependencies)) *harness {
	t.Helper()

	store := memory.NewStore()
	profiles := store.Profiles()
	broker := messaging.NewLocalBroker(16, logger.Nop())
	rules := companion.DefaultRules()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)
	tokens := handlers.NewTokenVerifier(testSecret, testIssuer)

	deps := Dependencies{
		RegisterProfile:    command.NewRegisterProfileHandler(profiles, nil),
		SaveMentorProfile:  command.NewSaveMentorProfileHandler(profiles, nil),
		AssignMentor:       command.NewAssignMentorHandler(profiles, nil),
		Companion:          command.NewCompanionHandler(profiles, store.Companions(), nil, nil, rules),
		Rewards:            command.NewRewardHandler(profiles, store.Wellness(), nil, nil, wellness.DefaultRewardTable()),
		SendMessage:        command.NewSendMessageHandler(profiles, store.Messages(), broker, nil),
		Onboarding:         saga.NewOnboardingSaga(profiles, store.Companions(), nil, nil),
		GetProfile:         query.NewGetProfileHandler(profiles),
		GetHome:            query.NewGetHomeHandler(profiles, store.Companions(), store.Wellness(), rules, query.HomeConfig{}),
		GetCompanion:       query.NewGetCompanionHandler(profiles, store.Companions(), rules),
		GetShop:            query.NewGetShopHandler(profiles),
		GetAssignedMentor:  query.NewGetAssignedMentorHandler(profiles),
		GetMentorDashboard: query.NewGetMentorDashboardHandler(profiles),
		GetHistory:         query.NewGetHistoryHandler(profiles, store.Messages()),
		WatchConversation:  query.NewWatchConversationHandler(profiles, store.Messages(), broker),
		Rules:              rules,
		Tokens:             tokens,
		AdminKey:           handlers.NewAdminKeyAuth("", string(hash)),
		Logger:             logger.Nop(),
	}
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.StreamHeartbeat = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	srv := NewServer(cfg, deps)
	t.Cleanup(func() {
		if srv.local != nil {
			srv.local.Stop()
		}
	})
	return &harness{t: t, srv: srv, store: store, tokens: tokens}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (h *harness) token(userID string) string {
	h.t.Helper()
	tok, err := h.tokens.Sign(userID, userID+"@example.com", time.Hour)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, userID string, body any) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(userID))
	}

	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (h *harness) admin(key string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	b, err := json.Marshal(body)
	require.NoError(h.t, err)
	req := httptest.NewRequest(http.MethodPut, "/admin/v1/assignments", bytes.NewReader(b))
	req.Header.Set("X-Admin-Key", key)
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) register(userID, role string) {
	h.t.Helper()
	rec, _ := h.do(http.MethodPost, "/api/v1/me", userID, map[string]string{"role": role})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (h *harness) pair(studentID, mentorID string) {
	h.t.Helper()
	h.register(studentID, "student")
	h.register(mentorID, "mentor")
	rec := h.admin(testAdminKey, map[string]string{"student_id": studentID, "mentor_id": mentorID})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
}

func data[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

func TestAuth_RejectsMissingAndForeignTokens(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", env.Error.Code)

	other := handlers.NewTokenVerifier(testSecret, "someone-else")
	tok, err := other.Sign("abc", "", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	expired, err := h.tokens.Sign("abc", "", -time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rr = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdmin_RequiresKey(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")
	h.register("xyz", "mentor")

	rec := h.admin("wrong", map[string]string{"student_id": "abc", "mentor_id": "xyz"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.admin(testAdminKey, map[string]string{"student_id": "abc", "mentor_id": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.admin(testAdminKey, map[string]string{"student_id": "xyz", "mentor_id": "abc"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.admin(testAdminKey, map[string]string{"student_id": "abc", "mentor_id": "xyz"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE & ONBOARDING
// ══════════════════════════════════════════════════════════════════════════════

func TestProfile_RegisterAndRead(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(http.MethodGet, "/api/v1/me", "abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)

	h.register("abc", "student")

	rec, env = h.do(http.MethodPost, "/api/v1/me", "abc", map[string]string{"role": "student"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = h.do(http.MethodGet, "/api/v1/me", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := data[query.ProfileDTO](t, env)
	assert.Equal(t, "abc", p.ID)
	assert.Equal(t, "abc@example.com", p.Email)
	assert.Equal(t, "STUDENT", p.Role)
	assert.False(t, p.FocusConfirmed)

	rec, _ = h.do(http.MethodPost, "/api/v1/me", "def", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnboarding_ConfirmFocusAndCompanion(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")

	rec, _ := h.do(http.MethodPut, "/api/v1/me/focus", "abc", map[string]any{"focus": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := h.do(http.MethodPut, "/api/v1/me/focus", "abc", map[string]any{
		"focus":     []string{"ANXIETY", "SLEEP"},
		"companion": "DOG",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := data[onboardingResponse](t, env)
	assert.ElementsMatch(t, []string{"ANXIETY", "SLEEP"}, out.Profile.Focus)
	require.NotNil(t, out.Companion)
	assert.Equal(t, "DOG", out.Companion.Species)
	assert.Equal(t, 1, out.Companion.Level)
	assert.NotEmpty(t, out.ConfirmedAt)

	rec, env = h.do(http.MethodPut, "/api/v1/me/companion", "abc", map[string]string{"species": "RABBIT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodPut, "/api/v1/me/companion", "abc", map[string]string{"species": "cat"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CAT", data[onboardingResponse](t, env).Profile.SelectedCompanion)
}

func TestMentorProfile_OnlyMentors(t *testing.T) {
	h := newHarness(t, nil)
	h.pair("abc", "xyz")

	body := map[string]any{
		"name":          "Sam",
		"bio":           "Here to help",
		"support_areas": []string{"STRESS"},
		"availability":  "WEEKENDS",
	}
	rec, _ := h.do(http.MethodPut, "/api/v1/me/mentor-profile", "abc", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(http.MethodPut, "/api/v1/me/mentor-profile", "xyz", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env := h.do(http.MethodGet, "/api/v1/me/mentor", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := data[struct {
		Mentor *query.MentorDTO `json:"mentor"`
	}](t, env)
	require.NotNil(t, got.Mentor)
	assert.Equal(t, "Sam", got.Mentor.Name)
	assert.Equal(t, "abc_xyz", got.Mentor.ConversationID)

	rec, env = h.do(http.MethodGet, "/api/v1/mentor/dashboard", "xyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := data[query.MentorDashboardDTO](t, env)
	require.Len(t, dash.Students, 1)
	assert.Equal(t, "abc", dash.Students[0].ID)

	rec, _ = h.do(http.MethodGet, "/api/v1/mentor/dashboard", "abc", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssignedMentor_NoneIsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")

	rec, env := h.do(http.MethodGet, "/api/v1/me/mentor", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mentor":null}`, string(env.Data))
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPANION & SHOP
// ══════════════════════════════════════════════════════════════════════════════

func TestCompanion_DefaultsAndOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")

	rec, env := h.do(http.MethodGet, "/api/v1/me/companion", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	card := data[query.CompanionDTO](t, env)
	assert.Equal(t, "Your Pet", card.Name)
	assert.False(t, card.Selected)

	rec, env = h.do(http.MethodPost, "/api/v1/me/companion/feed", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := data[companionResponse](t, env)
	assert.False(t, res.Outcome.Applied)
	assert.Equal(t, companion.ReasonNoCompanion, res.Outcome.Reason)

	rec, _ = h.do(http.MethodPut, "/api/v1/me/companion", "abc", map[string]string{"species": "DOG"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/me/companion/feed", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, companion.ReasonNoFood, data[companionResponse](t, env).Outcome.Reason)

	rec, env = h.do(http.MethodPost, "/api/v1/me/companion/level-up", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, companion.ReasonBelowGoal, data[companionResponse](t, env).Outcome.Reason)
}

func TestShop_PurchaseAndFeed(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")
	rec, _ := h.do(http.MethodPut, "/api/v1/me/companion", "abc", map[string]string{"species": "DOG"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := h.do(http.MethodPost, "/api/v1/shop/purchase", "abc", map[string]string{"item_id": "BASIC"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, companion.ReasonInsufficientFunds, data[companionResponse](t, env).Outcome.Reason)

	rec, _ = h.do(http.MethodPost, "/api/v1/shop/purchase", "abc", map[string]string{"item_id": "caviar"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A check-in pays 50 coins.
	rec, _ = h.do(http.MethodPost, "/api/v1/checkins", "abc", map[string]any{"answers": allAnswers("Not at all")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = h.do(http.MethodGet, "/api/v1/shop", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, data[query.ShopDTO](t, env).Coins)

	rec, env = h.do(http.MethodPost, "/api/v1/shop/purchase", "abc", map[string]string{"item_id": "premium"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := data[companionResponse](t, env)
	assert.True(t, res.Outcome.Applied)
	assert.Equal(t, 5, res.Companion.Food)
	assert.Equal(t, 5, res.Wallet.Coins.Int())

	rec, env = h.do(http.MethodPost, "/api/v1/me/companion/feed", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res = data[companionResponse](t, env)
	assert.True(t, res.Outcome.Applied)
	assert.Equal(t, 4, res.Companion.Food)
	// Check-in progress 10 plus one feed of 15.
	assert.Equal(t, 25, res.Companion.Progress)
}

// ══════════════════════════════════════════════════════════════════════════════
// WELLNESS
// ══════════════════════════════════════════════════════════════════════════════

func allAnswers(a string) []string {
	out := make([]string, len(wellness.CheckinQuestions))
	for i := range out {
		out[i] = a
	}
	return out
}

func TestCheckins(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")

	rec, env := h.do(http.MethodGet, "/api/v1/checkins/questions", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	form := data[query.CheckinFormDTO](t, env)
	assert.Len(t, form.Questions, len(wellness.CheckinQuestions))

	rec, _ = h.do(http.MethodPost, "/api/v1/checkins", "abc", map[string]any{"answers": []string{"Not at all"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(http.MethodPost, "/api/v1/checkins", "abc", map[string]any{"answers": allAnswers("All the time")})
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		Grant grantResponse `json:"grant"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, out.Grant.Granted)
	assert.Equal(t, 50, out.Grant.Wallet.Coins.Int())

	rec, env = h.do(http.MethodGet, "/api/v1/me/home", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	home := data[query.HomeDTO](t, env)
	require.NotNil(t, home.Streak)
	assert.Equal(t, 1, home.Streak.Days)
	assert.True(t, home.Streak.CheckedToday)
}

func TestLessons_RewardOncePerAttempt(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")
	lessonPath := "/api/v1/lessons/" + string(wellness.LessonCopingWithDepression)

	rec, env := h.do(http.MethodGet, lessonPath, "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lesson := data[wellness.Lesson](t, env)
	assert.NotEmpty(t, lesson.Questions)

	rec, _ = h.do(http.MethodGet, "/api/v1/lessons/astrology", "abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = h.do(http.MethodPost, lessonPath+"/attempts", "abc", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	attempt := data[attemptResponse](t, env)
	require.NotEmpty(t, attempt.ID)

	complete := lessonPath + "/attempts/" + attempt.ID + "/complete"
	rec, env = h.do(http.MethodPost, complete, "abc", map[string]any{"answers": []int{0, 0, 0}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first struct {
		Grant grantResponse `json:"grant"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.True(t, first.Grant.Granted)
	assert.Equal(t, len(lesson.Questions), first.Total)

	rec, env = h.do(http.MethodPost, complete, "abc", map[string]any{"answers": []int{0, 0, 0}})
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		Grant grantResponse `json:"grant"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.False(t, second.Grant.Granted)

	rec, _ = h.do(http.MethodPost, lessonPath+"/attempts/nope/complete", "abc", map[string]any{"answers": []int{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResources_Filter(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(http.MethodGet, "/api/v1/resources", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := data[query.ResourceListDTO](t, env)
	assert.Equal(t, wellness.FilterAll, all.Filter)

	rec, env = h.do(http.MethodGet, "/api/v1/resources?filter=no-such-filter", "abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, data[query.ResourceListDTO](t, env).Resources)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT
// ══════════════════════════════════════════════════════════════════════════════

func TestChat_SendAndHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.pair("abc", "xyz")
	h.register("other", "student")

	rec, _ := h.do(http.MethodPost, "/api/v1/chats/xyz/messages", "other", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(http.MethodPost, "/api/v1/chats/xyz/messages", "abc", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, text := range []string{"one", "two", "three"} {
		rec, _ = h.do(http.MethodPost, "/api/v1/chats/xyz/messages", "abc", map[string]string{"text": text})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec, env := h.do(http.MethodGet, "/api/v1/chats/abc/messages?limit=2", "xyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := data[query.HistoryDTO](t, env)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "abc_xyz", page.ConversationID)
	assert.Equal(t, "one", page.Messages[0].Text)

	rec, env = h.do(http.MethodGet, fmt.Sprintf("/api/v1/chats/abc/messages?after_seq=%d", page.NextAfterSeq), "xyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rest := data[query.HistoryDTO](t, env)
	require.Len(t, rest.Messages, 1)
	assert.Equal(t, "three", rest.Messages[0].Text)

	rec, _ = h.do(http.MethodGet, "/api/v1/chats/abc/messages?after_seq=-1", "xyz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_StreamReplaysThenTails(t *testing.T) {
	h := newHarness(t, nil)
	h.pair("abc", "xyz")

	rec, _ := h.do(http.MethodPost, "/api/v1/chats/xyz/messages", "abc", map[string]string{"text": "before"})
	require.Equal(t, http.StatusCreated, rec.Code)

	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/chats/abc/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token("xyz"))

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				events <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	next := func() string {
		select {
		case e, ok := <-events:
			require.True(t, ok, "stream ended")
			return e
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Contains(t, next(), `"text":"before"`)

	rec, _ = h.do(http.MethodPost, "/api/v1/chats/abc/messages", "xyz", map[string]string{"text": "live"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, next(), `"text":"live"`)
}

func TestChat_StreamRejectsUnpaired(t *testing.T) {
	h := newHarness(t, nil)
	h.register("abc", "student")
	h.register("xyz", "mentor")

	rec, env := h.do(http.MethodGet, "/api/v1/chats/xyz/stream", "abc", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Error.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestFeatureFlags_GateRoutes(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Dependencies) {
		d.Features = gate{FeatureShop: false}
	})
	h.register("abc", "student")

	rec, env := h.do(http.MethodGet, "/api/v1/shop", "abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "feature_disabled", env.Error.Code)

	rec, _ = h.do(http.MethodGet, "/api/v1/checkins/questions", "abc", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Dependencies) {
		c.RateLimitPerMinute = 2
	})

	for i := 0; i < 2; i++ {
		rec, _ := h.do(http.MethodGet, "/api/v1/resources", "abc", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := h.do(http.MethodGet, "/api/v1/resources", "abc", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)

	rec, _ = h.do(http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "probes are not limited")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := newHarness(t, func(c *Config, d *Dependencies) {
		c.RateLimitPerMinute = 1
		d.Limiter = failingLimiter{}
	})
	for i := 0; i < 3; i++ {
		rec, _ := h.do(http.MethodGet, "/api/v1/resources", "abc", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestHealth_OptionalDependencyKeepsReady(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("store", true, func(context.Context) error { return nil })
	checker.AddCheck("redis", false, func(context.Context) error { return errors.New("connection refused") })

	h := newHarness(t, func(_ *Config, d *Dependencies) {
		d.HealthChecker = checker
	})

	rec, env := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status := data[handlers.HealthStatus](t, env)
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis", status.Message)

	rec, _ = h.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.AddCheck("store", true, func(context.Context) error { return errors.New("pool closed") })
	rec, _ = h.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	h := newHarness(t, nil)
	handler := h.srv.requestIDMiddleware(h.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "internal_server_error", env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagates(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)
}

func TestMalformedJSON(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/me", strings.NewReader(`{"role":`))
	req.Header.Set("Authorization", "Bearer "+h.token("abc"))
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.ErrProfileNotFound, http.StatusNotFound},
		{shared.ErrNotPaired, http.StatusForbidden},
		{shared.ErrInvalidSpecies, http.StatusBadRequest},
		{shared.ErrProfileAlreadyExists, http.StatusConflict},
		{shared.StoreError("profile", "Get", errors.New("conn reset")), http.StatusBadGateway},
		{&saga.StepError{Step: saga.StepSaveFocus, Err: shared.ErrNoFocusSelected}, http.StatusBadRequest},
		{errors.New("mystery"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
