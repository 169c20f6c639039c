// Package params turns raw job trigger input into validated JobParameters.
//
// Validation is pure and runs before any execution node is touched, so
// input that is always going to be rejected never costs node time.
package params

import (
	"fmt"

	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// Level bounds, inclusive.
const (
	MinLevel = 1
	MaxLevel = 100
)

// MaxNameLength is the longest participant name accepted, in runes.
const MaxNameLength = 64

// Category is the closed set of hero categories a job may request.
type Category string

const (
	CategoryA Category = "A"
	CategoryB Category = "B"
	CategoryC Category = "C"
)

// heroClasses maps each category onto the simulator's --hero_class value.
var heroClasses = map[Category]string{
	CategoryA: "Warrior",
	CategoryB: "Mage",
	CategoryC: "Rogue",
}

// HeroClass returns the simulator class name for the category.
func (c Category) HeroClass() string {
	return heroClasses[c]
}

// Raw is the unvalidated input as received from the job trigger.
type Raw struct {
	ParticipantName string `yaml:"participant_name"`
	Category        string `yaml:"category"`
	Level           string `yaml:"level"`
	Hardcore        bool   `yaml:"hardcore"`
	Platform        string `yaml:"platform"`
}

// JobParameters is the validated, immutable description of one job.
type JobParameters struct {
	ParticipantName string           `json:"participant_name"`
	Category        Category         `json:"category"`
	Level           int              `json:"level"`
	Hardcore        bool             `json:"hardcore"`
	Platform        platform.Request `json:"platform"`
}

// Invocation renders the parameters as simulator arguments for a given date.
func (p JobParameters) Invocation(battleDate string) platform.Invocation {
	return platform.Invocation{
		PlayerName: p.ParticipantName,
		HeroClass:  p.Category.HeroClass(),
		Level:      p.Level,
		BattleDate: battleDate,
		Hardcore:   p.Hardcore,
	}
}

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
