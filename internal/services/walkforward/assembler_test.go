package walkforward

import (
	"math"
	"testing"
	"time"

	"FinSignal/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTable(t *testing.T, cols map[string][]float64, order ...string) *models.Table {
	t.Helper()
	n := len(cols[order[0]])
	times := make([]time.Time, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range times {
		times[i] = base.AddDate(0, 0, i)
	}
	tbl := models.NewTable("SPY", "1d", times)
	for _, name := range order {
		var err error
		tbl, err = tbl.WithColumn(name, cols[name])
		require.NoError(t, err)
	}
	return tbl
}

func TestAssembleDirection(t *testing.T) {
	nan := math.NaN()
	tbl := buildTable(t, map[string][]float64{
		"ret":   {nan, 0.01, -0.02, 0.03, nan, 0.01},
		"sma":   {1, 2, 3, math.Inf(1), 5, 6},
		"empty": {nan, nan, nan, nan, nan, nan},
	}, "ret", "sma", "empty")

	ds, err := Assemble(tbl, AssembleOptions{Kind: models.TargetDirection, Target: "ret", Horizon: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"sma"}, ds.Features)
	// row 3 has its only feature infinite; row 3 label is undefined (ret[4] NaN)
	assert.Equal(t, []int{0, 1, 2, 4}, ds.Rows)
	assert.Equal(t, []float64{1, 0, 1, 1}, ds.Y)
	for _, row := range ds.X {
		for _, v := range row {
			assert.False(t, math.IsInf(v, 0))
		}
	}
	assert.Equal(t, []int{5}, ds.PendingRows)
}

func TestAssembleReturnTarget(t *testing.T) {
	tbl := buildTable(t, map[string][]float64{
		"ret":  {0.1, 0.2, 0.3, 0.4},
		"lag1": {0, 0.1, 0.2, 0.3},
	}, "ret", "lag1")

	ds, err := Assemble(tbl, AssembleOptions{Kind: models.TargetReturn, Target: "ret", Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.4}, ds.Y)
	assert.Equal(t, []int{0, 1}, ds.Rows)
	assert.Equal(t, []int{2, 3}, ds.PendingRows)
}

func TestAssembleErrors(t *testing.T) {
	tbl := buildTable(t, map[string][]float64{"sma": {1, 2, 3}}, "sma")

	_, err := Assemble(tbl, AssembleOptions{Kind: models.TargetDirection, Target: "ret", Horizon: 1})
	require.Error(t, err)
	assert.False(t, models.IsConfigError(err))

	only := buildTable(t, map[string][]float64{"ret": {1, 2, 3}}, "ret")
	_, err = Assemble(only, AssembleOptions{Kind: models.TargetDirection, Target: "ret", Horizon: 1})
	require.Error(t, err)

	_, err = Assemble(tbl, AssembleOptions{Kind: "bogus", Target: "ret", Horizon: 1})
	assert.True(t, models.IsConfigError(err))

	_, err = Assemble(tbl, AssembleOptions{Kind: models.TargetReturn, Target: "sma", Horizon: 0})
	assert.True(t, models.IsConfigError(err))
}

func TestSplitRespectsLabelHorizon(t *testing.T) {
	n := 20
	ret := make([]float64, n)
	feat := make([]float64, n)
	for i := range ret {
		ret[i] = float64(i%3) - 1
		feat[i] = float64(i)
	}
	tbl := buildTable(t, map[string][]float64{"ret": ret, "f": feat}, "ret", "f")
	w := models.Window{TrainEnd: 10, TestStart: 10, TestEnd: 15}

	ds, err := Assemble(tbl.Head(w.TestEnd), AssembleOptions{Kind: models.TargetDirection, Target: "ret", Horizon: 1})
	require.NoError(t, err)
	p := ds.Split(w, 1)

	// the label of row 9 is observed at row 10, inside the test range
	assert.Equal(t, 9, len(p.TrainRows))
	assert.Equal(t, 8, p.TrainRows[len(p.TrainRows)-1])
	assert.Equal(t, []int{10, 11, 12, 13, 14}, p.TestRows)
}
