package dataset

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gisa-chat/server/internal/agent/model"
)

// RankedActivity is an activity with its aggregated risk.
type RankedActivity struct {
	Activity string  `json:"activity"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	NCCount  int     `json:"nc_count"`
}

// RankedEstablishment is an establishment with its priority score.
type RankedEstablishment struct {
	model.Establishment
	Score       float64   `json:"score"`
	NCCount     int       `json:"nc_count"`
	LastControl time.Time `json:"last_control,omitempty"`
}

// NeverControlled reports whether no control is on record.
func (r RankedEstablishment) NeverControlled() bool {
	return r.LastControl.IsZero()
}

// RiskAnalyzer ranks activities and establishments from the risk points
// the dataset provides. Scores are plain sums; ties break by name.
type RiskAnalyzer struct {
	data model.Dataset
}

func NewRiskAnalyzer(d model.Dataset) *RiskAnalyzer {
	return &RiskAnalyzer{data: d}
}

func activityKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TopActivities sums risk points per activity. n <= 0 returns all.
func (a *RiskAnalyzer) TopActivities(ctx context.Context, asl string, n int) ([]RankedActivity, error) {
	scores, err := a.data.RiskScores(ctx, asl)
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	out := []RankedActivity{}
	for _, s := range scores {
		k := activityKey(s.Activity)
		if k == "" {
			continue
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, RankedActivity{Activity: s.Activity, Category: s.Category})
		}
		out[i].Score += s.Score
		out[i].NCCount += s.NCCount
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Activity < out[j].Activity
	})
	return truncate(out, n), nil
}

// PriorityEstablishments scores each establishment in scope as the risk of
// its activity plus the non-conformities found on it.
func (a *RiskAnalyzer) PriorityEstablishments(ctx context.Context, asl, comune string, n int) ([]RankedEstablishment, error) {
	ests, err := a.data.Establishments(ctx, asl, comune)
	if err != nil {
		return nil, err
	}
	activities, err := a.TopActivities(ctx, asl, 0)
	if err != nil {
		return nil, err
	}
	controls, err := a.data.Controls(ctx, asl)
	if err != nil {
		return nil, err
	}

	risk := make(map[string]float64, len(activities))
	for _, act := range activities {
		risk[activityKey(act.Activity)] = act.Score
	}
	nc := map[string]int{}
	last := map[string]time.Time{}
	for _, c := range controls {
		id := strings.TrimSpace(c.EstablishmentID)
		nc[id] += c.NCCount
		if c.Date.After(last[id]) {
			last[id] = c.Date
		}
	}

	out := make([]RankedEstablishment, 0, len(ests))
	for _, e := range ests {
		id := strings.TrimSpace(e.ID)
		out = append(out, RankedEstablishment{
			Establishment: e,
			Score:         risk[activityKey(e.Activity)] + float64(nc[id]),
			NCCount:       nc[id],
			LastControl:   last[id],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return truncate(out, n), nil
}

// SuggestedControls favours establishments never controlled, then the ones
// controlled longest ago, keeping risk order within each group.
func (a *RiskAnalyzer) SuggestedControls(ctx context.Context, asl string, n int) ([]RankedEstablishment, error) {
	ranked, err := a.PriorityEstablishments(ctx, asl, "", 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		ni, nj := ranked[i].NeverControlled(), ranked[j].NeverControlled()
		if ni != nj {
			return ni
		}
		return ranked[i].LastControl.Before(ranked[j].LastControl)
	})
	return truncate(ranked, n), nil
}

func truncate[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
