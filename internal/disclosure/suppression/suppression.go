// Package suppression applies k-anonymity rules to counts. It is pure: the
// same inputs always give the same visible set.
package suppression

import (
	"math"
	"sort"
)

// Cell is a true count for one key (an option or a cohort).
type Cell struct {
	Key   string
	Count int
}

// Result is a cell as it may be disclosed. Count is zero when Suppressed.
type Result struct {
	Key        string
	Count      int
	Percentage float64
	Suppressed bool
}

// Rules holds the thresholds.
type Rules struct {
	K                 int
	MinVisibleCohorts int
}

// TotalVisible reports whether a total may be disclosed at all.
func (r Rules) TotalVisible(total int) bool {
	return total >= r.K
}

// TotalWithHidden reports whether a total may be disclosed next to cells
// whose hidden counts add up to hidden. A hidden mass below k would be
// recoverable as total minus the visible cells.
func (r Rules) TotalWithHidden(total, hidden int) bool {
	return r.TotalVisible(total) && (hidden == 0 || hidden >= r.K)
}

// Options discloses each option whose count reaches k. Suppressed options
// still count toward total.
func (r Rules) Options(cells []Cell, total int) []Result {
	out := make([]Result, len(cells))
	for i, c := range cells {
		if c.Count < r.K {
			out[i] = Result{Key: c.Key, Suppressed: true}
			continue
		}
		out[i] = Result{Key: c.Key, Count: c.Count, Percentage: percentage(c.Count, total)}
	}
	return out
}

// Cohorts applies complementary suppression to one breakdown dimension.
// total is the poll total; votes with no value for the dimension are not in
// cells and therefore count as suppressed mass. The second return is true
// when the whole dimension must be withheld.
func (r Rules) Cohorts(cells []Cell, total int) ([]Result, bool) {
	visible := make([]bool, len(cells))
	for i, c := range cells {
		visible[i] = c.Count >= r.K
	}

	// A lone survivor equals total minus the rest.
	if countVisible(visible) == 1 {
		for i := range visible {
			visible[i] = false
		}
	}

	// When something is hidden, the hidden mass must itself reach k or it
	// can be recovered by subtraction.
	if suppressed := total - visibleSum(cells, visible); suppressed > 0 && suppressed < r.K {
		if i := smallestVisible(cells, visible); i >= 0 {
			visible[i] = false
		}
	}

	if countVisible(visible) < r.MinVisibleCohorts {
		out := make([]Result, len(cells))
		for i, c := range cells {
			out[i] = Result{Key: c.Key, Suppressed: true}
		}
		return out, true
	}

	out := make([]Result, len(cells))
	for i, c := range cells {
		if !visible[i] {
			out[i] = Result{Key: c.Key, Suppressed: true}
			continue
		}
		out[i] = Result{Key: c.Key, Count: c.Count, Percentage: percentage(c.Count, total)}
	}
	return out, false
}

// SortCells orders cells by key so responses are stable.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool { return cells[i].Key < cells[j].Key })
}

func countVisible(visible []bool) int {
	n := 0
	for _, v := range visible {
		if v {
			n++
		}
	}
	return n
}

func visibleSum(cells []Cell, visible []bool) int {
	sum := 0
	for i, c := range cells {
		if visible[i] {
			sum += c.Count
		}
	}
	return sum
}

// smallestVisible breaks ties by key for determinism.
func smallestVisible(cells []Cell, visible []bool) int {
	best := -1
	for i, c := range cells {
		if !visible[i] {
			continue
		}
		if best < 0 || c.Count < cells[best].Count || (c.Count == cells[best].Count && c.Key < cells[best].Key) {
			best = i
		}
	}
	return best
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)*10000/float64(total)) / 100
}
