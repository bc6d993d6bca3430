package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD COMMANDS
// Lesson completion and check-in submission each grant a flat reward once.
// The grant key is stored with the reward, so a repeated submission finds
// the key taken and grants nothing.
// ══════════════════════════════════════════════════════════════════════════════

// GrantResult reports what a completion earned.
type GrantResult struct {
	// Granted is false when the completion was already rewarded.
	Granted bool
	Key     string
	Reward  wellness.Reward
	Wallet  shared.Wallet
}

// RewardHandler handles lesson attempts and check-ins.
type RewardHandler struct {
	profiles  profile.Repository
	wellness  wellness.Repository
	publisher shared.EventPublisher
	cache     profile.Invalidator
	rewards   wellness.RewardTable
	now       Clock
	newID     func() string
}

// NewRewardHandler creates a new RewardHandler. cache may be nil.
func NewRewardHandler(
	profiles profile.Repository,
	repo wellness.Repository,
	publisher shared.EventPublisher,
	cache profile.Invalidator,
	rewards wellness.RewardTable,
) *RewardHandler {
	return &RewardHandler{
		profiles:  profiles,
		wellness:  repo,
		publisher: publisher,
		cache:     cache,
		rewards:   rewards,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// StartLesson opens an attempt. Its id is the key of the one-time reward.
func (h *RewardHandler) StartLesson(ctx context.Context, userID, lessonID string) (wellness.Attempt, error) {
	lesson, err := wellness.FindLesson(lessonID)
	if err != nil {
		return wellness.Attempt{}, err
	}
	if _, err := h.profiles.Get(ctx, userID); err != nil {
		return wellness.Attempt{}, err
	}

	a := wellness.Attempt{
		ID:        h.newID(),
		UserID:    userID,
		LessonID:  lesson.ID,
		StartedAt: h.now().UTC(),
	}
	if err := h.wellness.SaveAttempt(ctx, a); err != nil {
		return wellness.Attempt{}, fmt.Errorf("start_lesson: %w", err)
	}
	return a, nil
}

// CompleteLessonCommand submits an attempt's quiz answers.
type CompleteLessonCommand struct {
	UserID    string
	LessonID  string
	AttemptID string

	// Scored for display only; the reward does not depend on it.
	Answers []int
}

// CompleteLessonResult adds the quiz score to the grant.
type CompleteLessonResult struct {
	GrantResult
	Score int
	Total int
}

// CompleteLesson grants the lesson reward once per attempt.
func (h *RewardHandler) CompleteLesson(ctx context.Context, cmd CompleteLessonCommand) (*CompleteLessonResult, error) {
	lesson, err := wellness.FindLesson(cmd.LessonID)
	if err != nil {
		return nil, err
	}

	attempt, err := h.wellness.GetAttempt(ctx, cmd.UserID, cmd.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.LessonID != lesson.ID {
		return nil, shared.ErrAttemptNotFound
	}

	res := &CompleteLessonResult{
		Score: lesson.Score(cmd.Answers),
		Total: len(lesson.Questions),
	}
	if attempt.IsCompleted() {
		res.Score = attempt.Score
		res.Key = attempt.GrantKey()
		return res, nil
	}

	gr, err := h.grant(ctx, cmd.UserID, attempt.GrantKey(), h.rewards.Lesson, nil)
	if err != nil {
		return nil, err
	}
	res.GrantResult = *gr

	attempt.CompletedAt = h.now().UTC()
	attempt.Score = res.Score
	if err := h.wellness.SaveAttempt(ctx, attempt); err != nil {
		// The grant key already blocks a second reward.
		logger.FromContext(ctx).Warn("mark attempt completed failed", logger.UserID(cmd.UserID), logger.Err(err))
	}

	if gr.Granted {
		publish(ctx, h.publisher, shared.NewRewardGrantedEvent(
			shared.EventLessonCompleted, cmd.UserID, gr.Key, gr.Reward.XP, gr.Reward.Coins, gr.Reward.Progress,
		))
	}
	return res, nil
}

// SubmitCheckinCommand carries the check-in answers, index-aligned with
// wellness.CheckinQuestions.
type SubmitCheckinCommand struct {
	UserID  string
	Answers []string
}

// SubmitCheckinResult is the stored record plus its grant.
type SubmitCheckinResult struct {
	GrantResult
	Checkin wellness.Checkin
}

// SubmitCheckin stores the check-in and grants its reward in one unit.
func (h *RewardHandler) SubmitCheckin(ctx context.Context, cmd SubmitCheckinCommand) (*SubmitCheckinResult, error) {
	c, err := wellness.NewCheckin(h.newID(), cmd.UserID, cmd.Answers, h.now().UTC())
	if err != nil {
		return nil, err
	}

	gr, err := h.grant(ctx, cmd.UserID, c.GrantKey(), h.rewards.Checkin, &c)
	if err != nil {
		return nil, err
	}

	if gr.Granted {
		publish(ctx, h.publisher, shared.NewRewardGrantedEvent(
			shared.EventCheckinSubmitted, cmd.UserID, gr.Key, gr.Reward.XP, gr.Reward.Coins, gr.Reward.Progress,
		))
	}
	return &SubmitCheckinResult{GrantResult: *gr, Checkin: c}, nil
}

func (h *RewardHandler) grant(ctx context.Context, userID, key string, reward wellness.Reward, c *wellness.Checkin) (*GrantResult, error) {
	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	g := wellness.Grant{
		UserID:    userID,
		Key:       key,
		Reward:    reward,
		GrantedAt: h.now().UTC(),
	}

	log := logger.FromContext(ctx).With(logger.UserID(userID), logger.GrantKey(key))

	err = h.wellness.ApplyGrant(ctx, g, p.SelectedCompanion, c)
	switch {
	case errors.Is(err, shared.ErrGrantAlreadyExists):
		log.Info("reward already granted")
		return &GrantResult{Key: key, Wallet: p.Wallet}, nil
	case err != nil:
		log.Error("apply grant failed", logger.Err(err))
		return nil, err
	}

	invalidate(ctx, h.cache, userID)
	log.Info("reward granted", logger.XPAmount(reward.XP))

	return &GrantResult{
		Granted: true,
		Key:     key,
		Reward:  reward,
		Wallet:  p.Wallet.Credit(reward.XP, reward.Coins),
	}, nil
}
