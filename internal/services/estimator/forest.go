package estimator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
)

// Forest is a bagged ensemble of CART trees. Tree i draws its bootstrap
// and feature subsets from a generator seeded with (Seed, i), so results do
// not depend on Workers or scheduling.
type Forest struct {
	Trees       int
	MaxDepth    int
	MinLeaf     int
	MaxFeatures float64 // fraction of features per split; 0 picks sqrt(p) for classifiers, p otherwise
	Balanced    bool
	Classifier  bool
	Seed        int64
	Workers     int

	trees []*tree
}

func (f *Forest) Fit(X [][]float64, y []float64) error {
	n, p := len(X), width(X)
	if n == 0 || p == 0 {
		return fmt.Errorf("forest: empty training set")
	}
	count := f.Trees
	if count <= 0 {
		count = 100
	}
	params := treeParams{
		maxDepth:    f.MaxDepth,
		minLeaf:     max(1, f.MinLeaf),
		maxFeatures: f.featuresPerSplit(p),
	}
	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*tree, count)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			rng := rand.New(rand.NewPCG(uint64(f.Seed), uint64(i)))
			idx := make([]int, n)
			for k := range idx {
				idx[k] = rng.IntN(n)
			}
			trees[i] = fitTree(X, y, f.sampleWeights(y, idx), idx, params, rng)
		}(i)
	}
	wg.Wait()
	f.trees = trees
	return nil
}

func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, fmt.Errorf("forest: predict before fit")
	}
	out := make([]float64, len(X))
	for r, row := range X {
		sum := 0.0
		for _, t := range f.trees {
			sum += t.predict(row)
		}
		out[r] = sum / float64(len(f.trees))
	}
	return out, nil
}

func (f *Forest) featuresPerSplit(p int) int {
	if f.MaxFeatures > 0 {
		return max(1, int(math.Round(f.MaxFeatures*float64(p))))
	}
	if f.Classifier {
		return max(1, int(math.Sqrt(float64(p))))
	}
	return p
}

// sampleWeights returns one weight per original row. Balanced weights are
// computed on the bootstrap sample itself. A row drawn several times keeps a
// single weight here and occurs that many times in idx, so tree building
// adds its weight once per draw.
func (f *Forest) sampleWeights(y []float64, idx []int) []float64 {
	w := make([]float64, len(y))
	if !f.Balanced {
		for _, i := range idx {
			w[i] = 1
		}
		return w
	}
	drawn := make([]float64, len(idx))
	for k, i := range idx {
		drawn[k] = y[i]
	}
	cw := classWeights(drawn, true)
	for k, i := range idx {
		w[i] = cw[k]
	}
	return w
}
