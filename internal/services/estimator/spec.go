package estimator

import (
	"fmt"
	"math"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/service"
)

// Kind is the closed set of estimator variants.
type Kind string

const (
	KindLogistic     Kind = "logistic"
	KindRandomForest Kind = "random_forest"
	KindLinear       Kind = "linear"
	KindSVR          Kind = "svr"
)

// Spec is a named, configured estimator. A fresh estimator is built from
// it for every window.
type Spec struct {
	Name   string             `yaml:"name" validate:"required"`
	Kind   Kind               `yaml:"kind" validate:"required,oneof=logistic random_forest linear svr"`
	Params map[string]float64 `yaml:"params"`
}

// Param returns a hyperparameter or its default.
func (s Spec) Param(key string, def float64) float64 {
	if v, ok := s.Params[key]; ok && !math.IsNaN(v) {
		return v
	}
	return def
}

// Validate checks that the kind exists and supports the task.
func (s Spec) Validate(task models.Task) error {
	if s.Name == "" {
		return models.ConfigError("model name is required")
	}
	switch s.Kind {
	case KindLogistic:
		if task != models.TaskClassification {
			return models.ConfigError("model %q: logistic supports classification only", s.Name)
		}
	case KindLinear, KindSVR:
		if task != models.TaskRegression {
			return models.ConfigError("model %q: %s supports regression only", s.Name, s.Kind)
		}
	case KindRandomForest:
	default:
		return models.ConfigError("model %q: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

// Registry is the ordered set of models evaluated per window. Order fixes
// output columns and the ensemble summation order.
type Registry struct {
	task  models.Task
	specs []Spec
}

// NewRegistry validates specs for the task and keeps them in order.
func NewRegistry(task models.Task, specs ...Spec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, models.ConfigError("at least one model is required")
	}
	seen := make(map[string]bool, len(specs))
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		if err := s.Validate(task); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, models.ConfigError("duplicate model name %q", s.Name)
		}
		seen[s.Name] = true
		out = append(out, s)
	}
	return &Registry{task: task, specs: out}, nil
}

func (r *Registry) Task() models.Task { return r.task }
func (r *Registry) Len() int          { return len(r.specs) }

// Specs returns the specs in registry order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Names returns model names in registry order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.specs))
	for i, s := range r.specs {
		out[i] = s.Name
	}
	return out
}

// DefaultClassifiers mirrors the research setup: a balanced logistic
// regression and a balanced random forest.
func DefaultClassifiers() []Spec {
	return []Spec{
		{Name: "logreg", Kind: KindLogistic, Params: map[string]float64{"c": 1, "max_iter": 100, "balanced": 1}},
		{Name: "rf", Kind: KindRandomForest, Params: map[string]float64{"trees": 400, "min_leaf": 1, "balanced": 1}},
	}
}

// DefaultRegressors returns linear, forest and support-vector regressors.
func DefaultRegressors() []Spec {
	return []Spec{
		{Name: "linreg", Kind: KindLinear, Params: map[string]float64{"alpha": 1e-6}},
		{Name: "rf", Kind: KindRandomForest, Params: map[string]float64{"trees": 400, "min_leaf": 1}},
		{Name: "svr", Kind: KindSVR, Params: map[string]float64{"c": 10, "epsilon": 0.001, "max_iter": 1000}},
	}
}

// Options carries run-wide settings applied to every estimator.
type Options struct {
	Seed    int64
	Workers int
}

// New builds a fresh estimator for the spec, wrapped in its preprocessing.
func New(spec Spec, task models.Task, opts Options) (service.Estimator, error) {
	if err := spec.Validate(task); err != nil {
		return nil, err
	}
	var (
		est   service.Estimator
		scale bool
	)
	switch spec.Kind {
	case KindLogistic:
		est = &Logistic{
			C:        spec.Param("c", 1),
			MaxIter:  int(spec.Param("max_iter", 100)),
			Balanced: spec.Param("balanced", 0) > 0,
		}
		scale = true
	case KindLinear:
		est = &Linear{Alpha: spec.Param("alpha", 1e-6)}
		scale = true
	case KindSVR:
		est = &LinearSVR{
			C:       spec.Param("c", 1),
			Epsilon: spec.Param("epsilon", 0.1),
			MaxIter: int(spec.Param("max_iter", 1000)),
		}
		scale = true
	case KindRandomForest:
		est = &Forest{
			Trees:       int(spec.Param("trees", 100)),
			MaxDepth:    int(spec.Param("max_depth", 0)),
			MinLeaf:     int(spec.Param("min_leaf", 1)),
			MaxFeatures: spec.Param("max_features", 0),
			Balanced:    task == models.TaskClassification && spec.Param("balanced", 0) > 0,
			Classifier:  task == models.TaskClassification,
			Seed:        opts.Seed,
			Workers:     opts.Workers,
		}
	default:
		return nil, fmt.Errorf("unsupported kind %q", spec.Kind)
	}
	return &Pipeline{Scale: spec.Param("scale", boolParam(scale)) > 0, Model: est}, nil
}

func boolParam(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
