package ensemble

import (
	"fmt"
	"math"
	"sort"

	"FinSignal/internal/domain/models"
)

// Policy selects how per-model outputs are merged.
type Policy string

const (
	PolicyMean         Policy = "mean"
	PolicyInverseError Policy = "inverse_error"
)

// Epsilon keeps inverse-error weights finite for zero errors.
const Epsilon = 1e-8

// Combiner merges the outputs of one window. It holds no state across
// windows.
type Combiner struct {
	policy Policy
	task   models.Task
}

// New creates a combiner for the policy and task.
func New(policy Policy, task models.Task) (*Combiner, error) {
	switch policy {
	case PolicyMean, PolicyInverseError:
	case "":
		policy = PolicyMean
	default:
		return nil, models.ConfigError("unknown ensemble policy %q", policy)
	}
	return &Combiner{policy: policy, task: task}, nil
}

func (c *Combiner) Policy() Policy { return c.policy }

// NeedsErrors reports whether outputs must carry a validation error.
func (c *Combiner) NeedsErrors() bool { return c.policy == PolicyInverseError }

// Combine merges outputs in their given order. Classification results are
// clipped to [0,1].
func (c *Combiner) Combine(outputs []models.ModelOutput) (float64, error) {
	if len(outputs) == 0 {
		return math.NaN(), fmt.Errorf("combine: no model outputs")
	}
	var weights map[string]float64
	if c.policy == PolicyInverseError {
		errs := make(map[string]float64, len(outputs))
		for _, o := range outputs {
			if o.Scored {
				errs[o.Name] = o.Error
			}
		}
		weights = InverseErrorWeights(errs)
	}
	v := Weighted(outputs, weights)
	if c.task == models.TaskClassification {
		v = Clip(v)
	}
	return v, nil
}

// Mean is the arithmetic mean of the output values.
func Mean(outputs []models.ModelOutput) float64 {
	if len(outputs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, o := range outputs {
		sum += o.Value
	}
	return sum / float64(len(outputs))
}

// InverseErrorWeights maps each model with a finite, non-negative error to
// (1/(e+eps)) / sum_j(1/(e_j+eps)). Models with unusable errors get no
// weight. When no weight mass remains the usable models share uniformly.
func InverseErrorWeights(errs map[string]float64) map[string]float64 {
	names := make([]string, 0, len(errs))
	for name, e := range errs {
		if math.IsNaN(e) || math.IsInf(e, 0) || e < 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	inv := make(map[string]float64, len(names))
	total := 0.0
	for _, name := range names {
		w := 1 / (errs[name] + Epsilon)
		inv[name] = w
		total += w
	}
	out := make(map[string]float64, len(names))
	if total == 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		for _, name := range names {
			out[name] = 1 / float64(len(names))
		}
		return out
	}
	for _, name := range names {
		out[name] = inv[name] / total
	}
	return out
}

// Weighted sums value*weight over outputs present in weights. Outputs
// missing from weights are left out; when none match, or weights is nil,
// the uniform mean of all outputs is returned.
func Weighted(outputs []models.ModelOutput, weights map[string]float64) float64 {
	sum := 0.0
	matched := 0
	for _, o := range outputs {
		w, ok := weights[o.Name]
		if !ok {
			continue
		}
		sum += o.Value * w
		matched++
	}
	if matched == 0 {
		return Mean(outputs)
	}
	return sum
}

// Clip bounds a probability to [0,1].
func Clip(p float64) float64 {
	return math.Min(1, math.Max(0, p))
}
