package app

import (
	"fmt"
	"strings"

	"contest-engine/internal/domain"
	"contest-engine/internal/scoring"
	"github.com/shopspring/decimal"
)

const (
	minParticipants = 2
	maxParticipants = 100
)

// MinEntryFee is the smallest entry fee a contest may charge.
var MinEntryFee = decimal.NewFromInt(5)

// ValidateSpec rejects contest specs that could never run or pay out.
func ValidateSpec(spec domain.ContestSpec) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrInvalidContestSpec, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(spec.Name) == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(spec.CreatorID) == "" {
		return invalid("creator id is required")
	}
	if spec.EntryFee.LessThan(MinEntryFee) {
		return invalid("entry fee %s is below the minimum of %s", spec.EntryFee, MinEntryFee)
	}
	if spec.MaxParticipants < minParticipants || spec.MaxParticipants > maxParticipants {
		return invalid("max participants must be between %d and %d", minParticipants, maxParticipants)
	}
	if spec.MinParticipants != 0 && (spec.MinParticipants < minParticipants || spec.MinParticipants > spec.MaxParticipants) {
		return invalid("min participants must be between %d and max participants", minParticipants)
	}
	if spec.QuestionCount < 1 {
		return invalid("question count must be positive")
	}
	if spec.TimePerQuestion <= 0 {
		return invalid("time per question must be positive")
	}
	if strings.TrimSpace(spec.QuestionSetID) == "" {
		return invalid("question set id is required")
	}
	return scoring.ValidateSplit(spec.PrizeSplit)
}

// validateQuestion checks content handed over by the question source.
func validateQuestion(q domain.Question) error {
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s: needs at least two options", q.ID)
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := seen[opt]; dup {
			return fmt.Errorf("question %s: duplicate option %q", q.ID, opt)
		}
		seen[opt] = struct{}{}
	}
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
		return fmt.Errorf("question %s: correct option %d out of range", q.ID, q.CorrectOptionIndex)
	}
	return nil
}
