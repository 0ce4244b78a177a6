package store

import (
	"maps"
	"slices"
)

// Delta is the change of one metric between two runs.
type Delta struct {
	Metric   string `json:"metric"`
	Baseline int64  `json:"baseline"`
	Current  int64  `json:"current"`
	// Change is (Current-Baseline)/Baseline. Zero when Baseline is zero.
	Change float64 `json:"change"`
	// Regression is set when the metric grew by more than the threshold.
	// Every recorded metric is lower-is-better.
	Regression bool `json:"regression"`
	// Missing is set when the metric exists in only one of the runs.
	Missing bool `json:"missing,omitempty"`
}

// Compare reports every metric of baseline and current, sorted by name.
// threshold is a fraction: 0.1 flags growth above 10%.
func Compare(baseline, current Run, threshold float64) []Delta {
	names := slices.Sorted(maps.Keys(baseline.Metrics))
	for name := range current.Metrics {
		if _, ok := baseline.Metrics[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	out := make([]Delta, 0, len(names))
	for _, name := range names {
		base, inBase := baseline.Metrics[name]
		cur, inCur := current.Metrics[name]
		d := Delta{Metric: name, Baseline: base, Current: cur, Missing: !inBase || !inCur}
		if !d.Missing && base != 0 {
			d.Change = float64(cur-base) / float64(base)
			d.Regression = d.Change > threshold
		}
		out = append(out, d)
	}
	return out
}

// Regressions filters deltas down to regressions.
func Regressions(deltas []Delta) []Delta {
	var out []Delta
	for _, d := range deltas {
		if d.Regression {
			out = append(out, d)
		}
	}
	return out
}
