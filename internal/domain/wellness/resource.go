package wellness

import (
	"strings"

	"github.com/companion-hub/companion-hub/internal/domain/profile"
)

// ResourceType is how a resource is consumed.
type ResourceType string

const (
	ResourceQuiz ResourceType = "QUIZ"
	ResourceTask ResourceType = "TASK"
)

// Resource is an entry in the self-help library.
type Resource struct {
	ID          string            `json:"id"`
	FocusArea   profile.FocusArea `json:"focus_area"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Minutes     int               `json:"minutes"`
	Type        ResourceType      `json:"type"`
	XP          int               `json:"xp"`
	Category    string            `json:"category"`

	// Set when the resource opens a lesson.
	LessonID string `json:"lesson_id,omitempty"`
}

var resources = []Resource{
	{
		ID:          "res_1",
		FocusArea:   profile.FocusDepression,
		Title:       "Coping with Depression",
		Description: "Understand depression, recognize signs, and learn simple ways to cope.",
		Minutes:     5,
		Type:        ResourceQuiz,
		XP:          15,
		Category:    "Depression",
		LessonID:    LessonCopingWithDepression,
	},
	{
		ID:          "res_2",
		FocusArea:   profile.FocusAnxiety,
		Title:       "5-4-3-2-1 Grounding",
		Description: "Connect with your senses to stop panic.",
		Minutes:     5,
		Type:        ResourceTask,
		XP:          20,
		Category:    "Grounding",
	},
	{
		ID:          "res_3",
		FocusArea:   profile.FocusAnxiety,
		Title:       "Understanding Panic",
		Description: "Learn the physiology behind anxiety attacks.",
		Minutes:     7,
		Type:        ResourceTask,
		XP:          25,
		Category:    "Education",
	},
	{
		ID:          "res_4",
		FocusArea:   profile.FocusAnxiety,
		Title:       "Box Breathing",
		Description: "Navy SEAL technique for immediate calm.",
		Minutes:     4,
		Type:        ResourceQuiz,
		XP:          10,
		Category:    "Breathing",
	},
	{
		ID:          "res_5",
		FocusArea:   profile.FocusDepression,
		Title:       "Mood Journaling",
		Description: "Write down your thoughts to process emotions.",
		Minutes:     10,
		Type:        ResourceTask,
		XP:          15,
		Category:    "Journaling",
	},
}

// Filter chips shown above the library.
const (
	FilterAll     = "All"
	FilterAnxiety = "Anxiety"
)

// FilterOptions lists the chips in display order.
func FilterOptions() []string {
	return []string{FilterAll, FilterAnxiety, "Breathing", "Grounding", "Education", "Journaling"}
}

// Resources returns the catalog narrowed by a filter chip: "All" (or empty)
// keeps everything, "Anxiety" keeps the anxiety focus area, anything else
// matches the category case-insensitively.
func Resources(filter string) []Resource {
	filter = strings.TrimSpace(filter)
	out := make([]Resource, 0, len(resources))
	for _, r := range resources {
		switch {
		case filter == "" || strings.EqualFold(filter, FilterAll):
		case strings.EqualFold(filter, FilterAnxiety):
			if r.FocusArea != profile.FocusAnxiety {
				continue
			}
		default:
			if !strings.EqualFold(r.Category, filter) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
