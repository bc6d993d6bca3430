package query

import (
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
)

// ResourceListDTO is the library screen.
type ResourceListDTO struct {
	Filter    string              `json:"filter"`
	Filters   []string            `json:"filters"`
	Resources []wellness.Resource `json:"resources"`
}

// ListResources narrows the static catalog by a filter chip.
func ListResources(filter string) ResourceListDTO {
	if filter == "" {
		filter = wellness.FilterAll
	}
	return ResourceListDTO{
		Filter:    filter,
		Filters:   wellness.FilterOptions(),
		Resources: wellness.Resources(filter),
	}
}

// GetLesson returns a lesson's reading and quiz.
func GetLesson(id string) (wellness.Lesson, error) {
	return wellness.FindLesson(id)
}

// CheckinFormDTO is the check-in questionnaire.
type CheckinFormDTO struct {
	Kind      string   `json:"kind"`
	Questions []string `json:"questions"`
	Options   []string `json:"options"`
}

// GetCheckinForm returns the fixed questions and answer options.
func GetCheckinForm() CheckinFormDTO {
	return CheckinFormDTO{
		Kind:      wellness.CheckinKind,
		Questions: append([]string(nil), wellness.CheckinQuestions...),
		Options:   append([]string(nil), wellness.CheckinOptions...),
	}
}
