package suppression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rules = Rules{K: 30, MinVisibleCohorts: 3}

func cells(counts ...int) []Cell {
	out := make([]Cell, len(counts))
	for i, c := range counts {
		out[i] = Cell{Key: string(rune('a' + i)), Count: c}
	}
	return out
}

func sum(counts ...int) int {
	s := 0
	for _, c := range counts {
		s += c
	}
	return s
}

func TestTotalVisible(t *testing.T) {
	assert.False(t, rules.TotalVisible(12))
	assert.False(t, rules.TotalVisible(29))
	assert.True(t, rules.TotalVisible(30))
}

func TestTotalWithHidden(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		hidden int
		want   bool
	}{
		{name: "nothing hidden", total: 40, hidden: 0, want: true},
		{name: "hidden mass below k", total: 42, hidden: 2, want: false},
		{name: "hidden mass one short of k", total: 70, hidden: 29, want: false},
		{name: "hidden mass at k", total: 70, hidden: 30, want: true},
		{name: "total below k", total: 20, hidden: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.TotalWithHidden(tt.total, tt.hidden))
		})
	}
}

func TestOptions(t *testing.T) {
	t.Run("35 and 5 out of 40", func(t *testing.T) {
		out := rules.Options([]Cell{{Key: "A", Count: 35}, {Key: "B", Count: 5}}, 40)
		require.Len(t, out, 2)
		assert.Equal(t, Result{Key: "A", Count: 35, Percentage: 87.5}, out[0])
		assert.Equal(t, Result{Key: "B", Suppressed: true}, out[1])
	})

	t.Run("reported count is exact or suppressed", func(t *testing.T) {
		for c := 0; c < 100; c++ {
			out := rules.Options([]Cell{{Key: "x", Count: c}}, 100)
			if c >= rules.K {
				assert.Equal(t, c, out[0].Count)
				assert.False(t, out[0].Suppressed)
			} else {
				assert.True(t, out[0].Suppressed)
				assert.Zero(t, out[0].Count)
				assert.Zero(t, out[0].Percentage)
			}
		}
	})
}

func TestCohorts(t *testing.T) {
	t.Run("40 2 1 57 suppresses the dimension", func(t *testing.T) {
		out, whole := rules.Cohorts(cells(40, 2, 1, 57), 100)
		assert.True(t, whole)
		for _, r := range out {
			assert.True(t, r.Suppressed)
			assert.Zero(t, r.Count)
		}
	})

	t.Run("all cohorts above k are shown", func(t *testing.T) {
		counts := []int{30, 40, 50}
		out, whole := rules.Cohorts(cells(counts...), sum(counts...))
		assert.False(t, whole)
		for i, r := range out {
			assert.False(t, r.Suppressed)
			assert.Equal(t, counts[i], r.Count)
		}
	})

	t.Run("nothing hidden keeps every safe cohort", func(t *testing.T) {
		counts := []int{40, 35, 31}
		out, whole := rules.Cohorts(cells(counts...), sum(counts...))
		assert.False(t, whole)
		for i, r := range out {
			assert.False(t, r.Suppressed)
			assert.Equal(t, counts[i], r.Count)
		}
	})

	t.Run("lone survivor is suppressed", func(t *testing.T) {
		_, whole := Rules{K: 30, MinVisibleCohorts: 1}.Cohorts(cells(100, 5, 5), 110)
		assert.True(t, whole)
	})

	t.Run("small suppressed mass hides the smallest visible cohort", func(t *testing.T) {
		counts := []int{31, 40, 50, 60, 5}
		out, whole := rules.Cohorts(cells(counts...), sum(counts...))
		require.False(t, whole)
		assert.True(t, out[0].Suppressed, "31 joins the suppressed mass")
		assert.False(t, out[1].Suppressed)
		assert.False(t, out[2].Suppressed)
		assert.False(t, out[3].Suppressed)
		assert.True(t, out[4].Suppressed)
	})

	t.Run("large suppressed mass needs no extra cell", func(t *testing.T) {
		counts := []int{40, 50, 60, 20, 15}
		out, whole := rules.Cohorts(cells(counts...), sum(counts...))
		require.False(t, whole)
		assert.False(t, out[0].Suppressed)
		assert.True(t, out[3].Suppressed)
		assert.True(t, out[4].Suppressed)
	})

	t.Run("votes without a value count as suppressed mass", func(t *testing.T) {
		counts := []int{40, 50, 60}
		out, whole := rules.Cohorts(cells(counts...), sum(counts...)+3)
		assert.True(t, whole, "hiding 40 leaves two visible cohorts")
		assert.True(t, out[0].Suppressed)
	})

	t.Run("no visible value is below k", func(t *testing.T) {
		for _, counts := range [][]int{{30, 31, 32, 1}, {29, 100, 100, 100}, {45, 45, 45, 45}} {
			out, _ := rules.Cohorts(cells(counts...), sum(counts...))
			for _, r := range out {
				if !r.Suppressed {
					assert.GreaterOrEqual(t, r.Count, rules.K)
				}
			}
		}
	})
}

func TestCohortsSuppressedMassNeverBelowK(t *testing.T) {
	// Whenever anything is hidden and the dimension is shown, the hidden
	// total must not be recoverable as a sub-k value.
	for a := 0; a < 80; a += 7 {
		for b := 0; b < 80; b += 11 {
			for c := 0; c < 80; c += 13 {
				for d := 0; d < 80; d += 17 {
					counts := []int{a, b, c, d}
					total := sum(counts...)
					if !rules.TotalVisible(total) {
						continue
					}
					out, whole := rules.Cohorts(cells(counts...), total)
					if whole {
						continue
					}
					hidden := total
					for _, r := range out {
						hidden -= r.Count
					}
					if hidden > 0 {
						assert.GreaterOrEqual(t, hidden, rules.K, counts)
					}
				}
			}
		}
	}
}
