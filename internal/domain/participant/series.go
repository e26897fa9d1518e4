package participant

import (
	"sort"
	"time"
)

// SeriesPoint is one step of a cumulative answers-by-date series.
type SeriesPoint struct {
	// Date is the exact timestamp at which the running count changed.
	Date time.Time

	// Count is the running number of answered cells at and after Date.
	Count int
}

// CumulativeByDate groups the given cell dates by exact timestamp, sorts
// them ascending and accumulates counts, producing a monotonically
// non-decreasing step function usable directly for plotting. The final
// count equals len(dates).
func CumulativeByDate(dates []time.Time) []SeriesPoint {
	if len(dates) == 0 {
		return nil
	}

	counts := make(map[time.Time]int)
	for _, d := range dates {
		counts[d]++
	}

	distinct := make([]time.Time, 0, len(counts))
	for d := range counts {
		distinct = append(distinct, d)
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i].Before(distinct[j]) })

	series := make([]SeriesPoint, 0, len(distinct))
	accumulated := 0
	for _, d := range distinct {
		accumulated += counts[d]
		series = append(series, SeriesPoint{Date: d, Count: accumulated})
	}
	return series
}
