// Package protocol provides the built-in starter templates a new user can
// initialize their habit list from.
package protocol

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"optimal-protocol-sync/internal/model"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is one named starter protocol.
type Template struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Subtitle string          `yaml:"subtitle"`
	Habits   []TemplateHabit `yaml:"habits"`
}

// TemplateHabit is one habit within a template.
type TemplateHabit struct {
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
}

// ToHabits expands the template into habit values ready for the engine's
// bulk-set operation. Ids are left for the engine to assign.
func (t Template) ToHabits() []model.Habit {
	habits := make([]model.Habit, 0, len(t.Habits))
	for _, h := range t.Habits {
		habits = append(habits, model.Habit{
			Title:    h.Title,
			Category: model.ParseCategory(h.Category),
		})
	}
	return habits
}

var templates = mustLoad()

func mustLoad() []Template {
	var doc struct {
		Protocols []Template `yaml:"protocols"`
	}
	if err := yaml.Unmarshal(templatesYAML, &doc); err != nil {
		panic(fmt.Sprintf("invalid embedded protocol templates: %v", err))
	}
	return doc.Protocols
}

// All returns every built-in template, in display order.
func All() []Template {
	return append([]Template(nil), templates...)
}

// ByID looks up a template by its identifier.
func ByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
