package params

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/specialistvlad/dungeonjob/internal/platform"
)

// Validate checks raw input in a fixed order (level, category, participant
// name, platform) and returns the first violation as a *ValidationError.
func Validate(raw Raw) (JobParameters, error) {
	level, err := validateLevel(raw.Level)
	if err != nil {
		return JobParameters{}, err
	}

	category, err := validateCategory(raw.Category)
	if err != nil {
		return JobParameters{}, err
	}

	name, err := validateName(raw.ParticipantName)
	if err != nil {
		return JobParameters{}, err
	}

	request, err := platform.ParseRequest(raw.Platform)
	if err != nil {
		return JobParameters{}, &ValidationError{Field: "platform", Reason: err.Error()}
	}

	return JobParameters{
		ParticipantName: name,
		Category:        category,
		Level:           level,
		Hardcore:        raw.Hardcore,
		Platform:        request,
	}, nil
}

func validateLevel(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, &ValidationError{Field: "level", Reason: "must not be empty"}
	}
	level, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, &ValidationError{Field: "level", Reason: fmt.Sprintf("'%s' is not an integer", s)}
	}
	if level < MinLevel || level > MaxLevel {
		return 0, &ValidationError{Field: "level", Reason: fmt.Sprintf("must be between %d and %d, got %d", MinLevel, MaxLevel, level)}
	}
	return level, nil
}

func validateCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := heroClasses[c]; !ok {
		return "", &ValidationError{Field: "category", Reason: fmt.Sprintf("must be one of A, B, C, got '%s'", s)}
	}
	return c, nil
}

func validateName(s string) (string, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return "", &ValidationError{Field: "participant_name", Reason: "must not be empty"}
	}
	if !utf8.ValidString(name) {
		return "", &ValidationError{Field: "participant_name", Reason: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return "", &ValidationError{Field: "participant_name", Reason: fmt.Sprintf("must be at most %d characters, got %d", MaxNameLength, n)}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", &ValidationError{Field: "participant_name", Reason: fmt.Sprintf("contains control character %U", r)}
		}
	}
	return name, nil
}
