package scoring

import (
	"sort"

	"contest-engine/internal/domain"
)

// Rank orders standings by score (desc), total response time (asc) and join
// order (asc), and assigns ranks 1..n. The input slice is not modified.
func Rank(standings []domain.Standing) []domain.Standing {
	ranked := make([]domain.Standing, len(standings))
	copy(ranked, standings)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.TotalResponseTimeMs != b.TotalResponseTimeMs {
			return a.TotalResponseTimeMs < b.TotalResponseTimeMs
		}
		if a.JoinSeq != b.JoinSeq {
			return a.JoinSeq < b.JoinSeq
		}
		return a.UserID < b.UserID
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
