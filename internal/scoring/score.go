// Package scoring holds the pure calculators of the contest engine: per-answer
// points, final ranking and prize distribution. Nothing here reads the clock
// or mutates its inputs, so results can be recomputed for audits.
package scoring

import (
	"math"

	"contest-engine/internal/domain"
)

// BasePoints is awarded for every correct answer before the speed bonus.
const BasePoints = 100

// Score returns the points for one answer. Correctness is binary; a correct
// answer earns BasePoints plus a speed bonus of up to half of BasePoints that
// shrinks linearly over the question's time limit.
func Score(q domain.Question, rec domain.AnswerRecord) int {
	if !IsCorrect(q, rec) {
		return 0
	}
	return BasePoints + speedBonus(rec.ResponseTimeMs, q.TimeLimit.Milliseconds())
}

// IsCorrect reports whether rec selected the question's correct option.
func IsCorrect(q domain.Question, rec domain.AnswerRecord) bool {
	return rec.SelectedIndex != nil && *rec.SelectedIndex == q.CorrectOptionIndex
}

func speedBonus(responseMs, limitMs int64) int {
	if limitMs <= 0 {
		return 0
	}
	responseMs = ClampResponse(responseMs, limitMs)
	bonus := math.Round(float64(BasePoints) * 0.5 * float64(limitMs-responseMs) / float64(limitMs))
	if bonus < 0 {
		return 0
	}
	return int(bonus)
}

// ClampResponse bounds a response time to [0, limitMs].
func ClampResponse(responseMs, limitMs int64) int64 {
	if responseMs < 0 {
		return 0
	}
	if responseMs > limitMs {
		return limitMs
	}
	return responseMs
}
