package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RewardAmount is one row of the reward table.
type RewardAmount struct {
	XP       int `yaml:"xp"`
	Progress int `yaml:"progress"`
	Coins    int `yaml:"coins"`
}

// Rewards is the single named table of progression constants.
//
// Example file:
//
//	goal: 100
//	feed_progress: 15
//	lesson:  {xp: 15, progress: 15, coins: 15}
//	checkin: {xp: 50, progress: 10, coins: 50}
type Rewards struct {
	Goal         int          `yaml:"goal"`
	FeedProgress int          `yaml:"feed_progress"`
	Lesson       RewardAmount `yaml:"lesson"`
	Checkin      RewardAmount `yaml:"checkin"`
}

// DefaultRewards returns the built-in reward table.
func DefaultRewards() Rewards {
	return Rewards{
		Goal:         100,
		FeedProgress: 15,
		Lesson:       RewardAmount{XP: 15, Progress: 15, Coins: 15},
		Checkin:      RewardAmount{XP: 50, Progress: 10, Coins: 50},
	}
}

// LoadRewards reads a YAML reward table. Keys missing from the file keep
// their default values.
func LoadRewards(path string) (Rewards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rewards{}, fmt.Errorf("read %s: %w", path, err)
	}

	r := DefaultRewards()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rewards{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return r, r.Validate()
}

// Validate rejects tables that would break the progression invariants.
func (r Rewards) Validate() error {
	if r.Goal <= 0 {
		return errors.New("rewards: goal must be positive")
	}
	if r.FeedProgress <= 0 {
		return errors.New("rewards: feed_progress must be positive")
	}
	for name, a := range map[string]RewardAmount{"lesson": r.Lesson, "checkin": r.Checkin} {
		if a.XP < 0 || a.Progress < 0 || a.Coins < 0 {
			return fmt.Errorf("rewards: %s amounts must not be negative", name)
		}
	}
	return nil
}
