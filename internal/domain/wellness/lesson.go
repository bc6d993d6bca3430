package wellness

import (
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct int      `json:"correct"`
}

// Section is one block of lesson reading material.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Lesson is static reading plus a short quiz.
type Lesson struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary"`
	Sections  []Section      `json:"sections"`
	Questions []QuizQuestion `json:"questions"`
}

// LessonCopingWithDepression is the id of the built-in lesson.
const LessonCopingWithDepression = "coping-with-depression"

var lessons = map[string]Lesson{
	LessonCopingWithDepression: {
		ID:      LessonCopingWithDepression,
		Title:   "Coping with Depression",
		Summary: "Learn to recognise signs and seek support.",
		Sections: []Section{
			{
				Title:   "What Is It?",
				Content: "Feeling sad sometimes is normal, but depression is more than just sadness. It affects your mood, thoughts, and energy. If feelings last for weeks and affect daily life, it may be depression.",
			},
			{
				Title:   "Common Signs",
				Content: "Persistent sadness or low mood. Loss of interest in hobbies. Sleep or appetite changes. Feeling tired or low energy. Difficulty concentrating.",
			},
			{
				Title:   "Causes",
				Content: "Depression can arise from a mix of factors, including stressful life events, ongoing pressure, family history, and brain chemistry. It can happen to anyone.",
			},
			{
				Title:   "Coping & Support",
				Content: "Talk with someone you trust. Maintain a healthy routine. Do enjoyable activities. Reach out for professional help. There is no shame in asking for help.",
			},
		},
		Questions: []QuizQuestion{
			{
				Prompt: "What is a key difference between normal sadness and depression?",
				Options: []string{
					"Depression only lasts a few hours",
					"Depression affects daily life and lasts longer",
					"Sadness makes people more energetic",
				},
				Correct: 1,
			},
			{
				Prompt: "Which is a common sign of depression?",
				Options: []string{
					"Always feeling happy",
					"Persistent low mood or loss of interest",
					"Better focus than usual",
				},
				Correct: 1,
			},
			{
				Prompt: "A healthy way to cope with depression is to:",
				Options: []string{
					"Keep feelings to yourself",
					"Reach out for support or talk to someone trusted",
					"Ignore feelings and stay isolated",
				},
				Correct: 1,
			},
		},
	},
}

// FindLesson returns a lesson by id.
func FindLesson(id string) (Lesson, error) {
	l, ok := lessons[id]
	if !ok {
		return Lesson{}, shared.ErrLessonNotFound
	}
	return l, nil
}

// Score counts correct answers. Answers are index-aligned with Questions;
// out-of-range or missing answers count as wrong. The score is informational
// and never gates the reward.
func (l Lesson) Score(answers []int) int {
	n := 0
	for i, q := range l.Questions {
		if i < len(answers) && answers[i] == q.Correct {
			n++
		}
	}
	return n
}

// Attempt is one run through a lesson's quiz.
type Attempt struct {
	ID        string
	UserID    string
	LessonID  string
	StartedAt time.Time

	// Zero until completed.
	CompletedAt time.Time
	Score       int
}

// IsCompleted reports whether the attempt was submitted.
func (a Attempt) IsCompleted() bool {
	return !a.CompletedAt.IsZero()
}

// GrantKey is the attempt's one-time reward key.
func (a Attempt) GrantKey() string {
	return LessonGrantKey(a.LessonID, a.ID)
}
