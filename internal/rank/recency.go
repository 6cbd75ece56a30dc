package rank

import (
	"sort"
	"time"

	"github.com/mkwan/memtier/internal/model"
)

// Clock abstracts the time source for recency scoring.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RecencyBoost scores how fresh a record is: 1/(1 + ageInDays).
// A record created at now scores exactly 1.0 and the score decreases
// monotonically with age (a 9-day-old record scores 0.1). Clock skew
// producing a negative age is treated as age zero.
func RecencyBoost(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + ageDays)
}

// sortByScore orders by hybrid score descending, breaking ties toward
// the more recently created record.
func sortByScore(results []model.ScoredRecord) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
}
