// Package wellness holds the lesson quizzes, the anxiety check-in, the
// resource catalog and the one-time rewards their completion grants.
package wellness

import (
	"fmt"
	"time"
)

// Reward is the flat amount a completion grants.
type Reward struct {
	XP       int `json:"xp"`
	Progress int `json:"progress"`
	Coins    int `json:"coins"`
}

// IsZero reports whether the reward grants nothing.
func (r Reward) IsZero() bool {
	return r == Reward{}
}

// RewardTable is the single named source of reward amounts.
type RewardTable struct {
	Lesson  Reward
	Checkin Reward
}

// DefaultRewardTable matches the built-in configuration.
func DefaultRewardTable() RewardTable {
	return RewardTable{
		Lesson:  Reward{XP: 15, Progress: 15, Coins: 15},
		Checkin: Reward{XP: 50, Progress: 10, Coins: 50},
	}
}

// Grant is the persisted record that a completion was rewarded. Key is
// unique per user, so the same completion never grants twice.
type Grant struct {
	UserID    string
	Key       string
	Reward    Reward
	GrantedAt time.Time
}

// LessonGrantKey identifies one completed lesson attempt.
func LessonGrantKey(lessonID, attemptID string) string {
	return fmt.Sprintf("lesson:%s:%s", lessonID, attemptID)
}

// CheckinGrantKey identifies one submitted check-in.
func CheckinGrantKey(checkinID string) string {
	return "checkin:" + checkinID
}
