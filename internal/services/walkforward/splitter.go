package walkforward

import (
	"FinSignal/internal/domain/models"
)

// Policy names a split policy.
type Policy string

const (
	PolicyFixed   Policy = "fixed"
	PolicyCounted Policy = "counted"
)

// SplitParams configures a split policy. InitialTrain <= 0 means "derive"
// for the fixed policy; Step <= 0 defaults to TestSize.
type SplitParams struct {
	Policy       Policy
	InitialTrain int
	TestSize     int
	Embargo      int
	Step         int
	Splits       int
}

// Validate returns a configuration error for impossible parameters.
func (p SplitParams) Validate() error {
	if p.TestSize < 1 {
		return models.ConfigError("test_size must be >= 1, got %d", p.TestSize)
	}
	if p.Embargo < 0 {
		return models.ConfigError("embargo must be >= 0, got %d", p.Embargo)
	}
	if p.InitialTrain < 0 {
		return models.ConfigError("initial_train must be >= 0, got %d", p.InitialTrain)
	}
	if p.Step < 0 {
		return models.ConfigError("step must be >= 0, got %d", p.Step)
	}
	switch p.Policy {
	case PolicyFixed, "":
	case PolicyCounted:
		if p.Splits < 1 {
			return models.ConfigError("n_splits must be >= 1 for the counted policy, got %d", p.Splits)
		}
		if p.Step > 0 && p.Step < p.TestSize {
			return models.ConfigError("step %d would overlap test ranges of size %d", p.Step, p.TestSize)
		}
	default:
		return models.ConfigError("unknown split policy %q", p.Policy)
	}
	return nil
}

// Plan dispatches to the configured policy.
func Plan(n int, p SplitParams) (models.Plan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Policy == PolicyCounted {
		return CountedSplit(n, p.InitialTrain, p.TestSize, p.Embargo, p.Step, p.Splits)
	}
	return FixedSplit(n, p.InitialTrain, p.TestSize, p.Embargo)
}

// FixedSplit produces expanding-train windows from a single cutoff. The
// cutoff is initialTrain when positive, otherwise
// max(testSize+embargo, n/2). The start cursor advances by testSize until
// a test range would pass n. When that yields nothing, a single fallback
// window tests the last testSize rows.
func FixedSplit(n, initialTrain, testSize, embargo int) (models.Plan, error) {
	if err := (SplitParams{Policy: PolicyFixed, InitialTrain: initialTrain, TestSize: testSize, Embargo: embargo}).Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return models.Plan{}, nil
	}

	start := initialTrain
	if start <= 0 {
		start = max(testSize+embargo, n/2)
	}

	plan := models.Plan{}
	for ; start+testSize <= n; start += testSize {
		trainEnd := start - embargo
		if trainEnd <= 0 {
			continue
		}
		plan = append(plan, models.Window{
			Number:    len(plan),
			TrainEnd:  trainEnd,
			TestStart: start,
			TestEnd:   start + testSize,
		})
	}
	if len(plan) > 0 {
		return plan, nil
	}

	testStart := max(0, n-testSize)
	trainEnd := testStart - embargo
	if trainEnd <= 0 {
		return models.Plan{}, nil
	}
	return models.Plan{{
		Number:    0,
		TrainEnd:  trainEnd,
		TestStart: testStart,
		TestEnd:   n,
	}}, nil
}

// CountedSplit produces at most splits windows with
// train_end = initialTrain + i*step, stopping early when a test range
// would pass n.
func CountedSplit(n, initialTrain, testSize, embargo, step, splits int) (models.Plan, error) {
	p := SplitParams{Policy: PolicyCounted, InitialTrain: initialTrain, TestSize: testSize, Embargo: embargo, Step: step, Splits: splits}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if step <= 0 {
		step = testSize
	}

	plan := models.Plan{}
	for i := 0; i < splits; i++ {
		testStart := initialTrain + i*step
		testEnd := testStart + testSize
		if testEnd > n {
			break
		}
		trainEnd := testStart - embargo
		if trainEnd <= 0 {
			continue
		}
		plan = append(plan, models.Window{
			Number:    len(plan),
			TrainEnd:  trainEnd,
			TestStart: testStart,
			TestEnd:   testEnd,
		})
	}
	return plan, nil
}
