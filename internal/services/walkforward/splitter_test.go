package walkforward

import (
	"testing"

	"FinSignal/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedSplitExplicitCutoff(t *testing.T) {
	plan, err := FixedSplit(1000, 600, 200, 5)
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, models.Window{Number: 0, TrainStart: 0, TrainEnd: 595, TestStart: 600, TestEnd: 800}, plan[0])
	assert.Equal(t, models.Window{Number: 1, TrainStart: 0, TrainEnd: 795, TestStart: 800, TestEnd: 1000}, plan[1])
	assert.NoError(t, plan.Validate(5))
}

func TestFixedSplitDerivedCutoff(t *testing.T) {
	// max(200+5, 500) = 500
	plan, err := FixedSplit(1000, 0, 200, 5)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, 500, plan[0].TestStart)
	assert.Equal(t, 495, plan[0].TrainEnd)
	assert.Equal(t, 700, plan[1].TestStart)
	assert.Equal(t, 900, plan[1].TestEnd)
}

func TestFixedSplitFallbackWindow(t *testing.T) {
	// cutoff max(55, 30) = 55, 55+50 > 60: no regular window.
	plan, err := FixedSplit(60, 0, 50, 5)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, 10, plan[0].TestStart)
	assert.Equal(t, 60, plan[0].TestEnd)
	assert.Equal(t, 5, plan[0].TrainEnd)
	assert.NoError(t, plan.Validate(5))
}

func TestFixedSplitTooShort(t *testing.T) {
	plan, err := FixedSplit(30, 0, 50, 5)
	require.NoError(t, err)
	assert.Empty(t, plan)

	plan, err = FixedSplit(0, 0, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestCountedSplit(t *testing.T) {
	plan, err := CountedSplit(1000, 500, 100, 3, 0, 10)
	require.NoError(t, err)
	require.Len(t, plan, 5)
	for i, w := range plan {
		assert.Equal(t, 500+i*100, w.TestStart)
		assert.Equal(t, w.TestStart+100, w.TestEnd)
		assert.Equal(t, w.TestStart-3, w.TrainEnd)
	}
	assert.NoError(t, plan.Validate(3))
}

func TestCountedSplitStopsEarly(t *testing.T) {
	plan, err := CountedSplit(250, 100, 100, 0, 100, 3)
	require.NoError(t, err)
	assert.Len(t, plan, 1)
}

func TestSplitConfigErrors(t *testing.T) {
	cases := []SplitParams{
		{Policy: PolicyFixed, TestSize: 0},
		{Policy: PolicyFixed, TestSize: 10, Embargo: -1},
		{Policy: PolicyFixed, TestSize: 10, InitialTrain: -5},
		{Policy: PolicyCounted, TestSize: 10, Splits: 0},
		{Policy: PolicyCounted, TestSize: 10, Splits: 2, Step: 5},
		{Policy: "rolling", TestSize: 10},
	}
	for _, p := range cases {
		_, err := Plan(100, p)
		require.Error(t, err, "%+v", p)
		assert.True(t, models.IsConfigError(err), "%+v", p)
	}
}

func TestPlansAreOrderedWithEmbargo(t *testing.T) {
	for n := 0; n <= 400; n += 7 {
		for _, testSize := range []int{1, 5, 20, 64} {
			for _, embargo := range []int{0, 1, 5, 13} {
				for _, initial := range []int{0, 10, 100} {
					fixed, err := FixedSplit(n, initial, testSize, embargo)
					require.NoError(t, err)
					checkPlan(t, fixed, n, embargo)

					counted, err := CountedSplit(n, initial, testSize, embargo, 0, 6)
					require.NoError(t, err)
					checkPlan(t, counted, n, embargo)
				}
			}
		}
	}
}

func checkPlan(t *testing.T, plan models.Plan, n, embargo int) {
	t.Helper()
	require.NoError(t, plan.Validate(embargo))
	for i, w := range plan {
		assert.Equal(t, 0, w.TrainStart)
		assert.Greater(t, w.TrainEnd, 0)
		assert.LessOrEqual(t, w.TestEnd, n)
		assert.Greater(t, w.TestStart, w.TrainEnd-1+embargo)
		assert.Equal(t, i, w.Number)
	}
}
