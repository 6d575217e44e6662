package overlap

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attmodels "anonpoll/internal/attestation/models"
)

var (
	gender = attmodels.DimensionGender
	region = attmodels.DimensionRegion
	age    = attmodels.DimensionAgeBucket
	citz   = attmodels.DimensionCitizenship
)

func dims(d ...attmodels.Dimension) []attmodels.Dimension { return d }

func TestCompare(t *testing.T) {
	tests := []struct {
		name       string
		prev, next []attmodels.Dimension
		want       Relation
	}{
		{"no record", nil, dims(gender), Unrelated},
		{"equal", dims(gender, region), dims(region, gender), Equal},
		{"subset", dims(gender, region), dims(gender), Subset},
		{"superset", dims(gender), dims(gender, region), Superset},
		{"disjoint", dims(gender, region), dims(age), Unrelated},
		{"partial overlap", dims(gender, region), dims(gender, age), Unrelated},
		{"duplicates ignored", dims(gender), dims(gender, gender), Equal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.prev, tt.next))
		})
	}
	assert.True(t, Subset.Denied())
	assert.True(t, Superset.Denied())
	assert.False(t, Equal.Denied())
	assert.False(t, Unrelated.Denied())
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "gender,region", encode(dims(region, gender, region)))
	assert.Equal(t, dims(gender, region), decode("gender,region"))
	assert.Nil(t, decode(""))
}

// guardBehaviour runs the shared scenario against any Guard.
func guardBehaviour(t *testing.T, g Guard, pollID string) {
	ctx := context.Background()

	ok, err := g.CheckAndRecord(ctx, pollID, dims(gender, region))
	require.NoError(t, err)
	assert.True(t, ok, "first query is always allowed")

	ok, err = g.CheckAndRecord(ctx, pollID, dims(gender))
	require.NoError(t, err)
	assert.False(t, ok, "strict subset is denied")

	ok, err = g.CheckAndRecord(ctx, pollID, dims(gender, region, citz))
	require.NoError(t, err)
	assert.False(t, ok, "denial leaves the record untouched, so a superset is denied too")

	ok, err = g.CheckAndRecord(ctx, pollID, dims(region, gender))
	require.NoError(t, err)
	assert.True(t, ok, "equal set is allowed")

	ok, err = g.CheckAndRecord(ctx, pollID, dims(age))
	require.NoError(t, err)
	assert.True(t, ok, "disjoint set is allowed")

	ok, err = g.CheckAndRecord(ctx, pollID, dims(gender))
	require.NoError(t, err)
	assert.True(t, ok, "record now holds age_bucket only")

	ok, err = g.CheckAndRecord(ctx, "other-"+pollID, dims(gender, region))
	require.NoError(t, err)
	assert.True(t, ok, "polls are independent")

	require.NoError(t, g.Reset(ctx, pollID))
	ok, err = g.CheckAndRecord(ctx, pollID, dims(gender, region))
	require.NoError(t, err)
	assert.True(t, ok, "reset clears the record")
}

// concurrentNested asserts that of two nested sets raced against an empty
// record, exactly one pair member is served per round.
func concurrentNested(t *testing.T, g Guard, pollID string) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		require.NoError(t, g.Reset(ctx, pollID))
		var allowed atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for _, set := range [][]attmodels.Dimension{dims(gender), dims(gender, region)} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := g.CheckAndRecord(ctx, pollID, set)
				assert.NoError(t, err)
				if ok {
					allowed.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()
		assert.Equal(t, int32(1), allowed.Load())
	}
}

func TestMemoryGuard(t *testing.T) {
	guardBehaviour(t, NewMemoryGuard(), "poll-1")
}

func TestMemoryGuardConcurrentNested(t *testing.T) {
	concurrentNested(t, NewMemoryGuard(), "poll-race")
}
