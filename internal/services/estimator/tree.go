package estimator

import (
	"math/rand/v2"
	"sort"
)

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	leaf      bool
}

// tree is a CART regression tree on weighted squared error. With 0/1
// targets the leaf value is the weighted fraction of positives, so the same
// tree serves as a probability classifier.
type tree struct {
	nodes []node
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int
}

type treeBuilder struct {
	X      [][]float64
	y      []float64
	w      []float64
	params treeParams
	rng    *rand.Rand
	nodes  []node
	order  []int
}

func fitTree(X [][]float64, y, w []float64, idx []int, params treeParams, rng *rand.Rand) *tree {
	b := &treeBuilder{X: X, y: y, w: w, params: params, rng: rng}
	b.build(idx, 0)
	return &tree{nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{})

	var sw, swy float64
	for _, i := range idx {
		sw += b.w[i]
		swy += b.w[i] * b.y[i]
	}
	value := 0.0
	if sw > 0 {
		value = swy / sw
	}

	pure := true
	for _, i := range idx[1:] {
		if b.y[i] != b.y[idx[0]] {
			pure = false
			break
		}
	}
	if pure || len(idx) < 2*b.params.minLeaf || (b.params.maxDepth > 0 && depth >= b.params.maxDepth) {
		b.nodes[id] = node{leaf: true, value: value}
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sw, swy)
	if !ok {
		b.nodes[id] = node{leaf: true, value: value}
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id] = node{feature: feature, threshold: threshold, left: l, right: r, value: value}
	return id
}

// bestSplit scans a random subset of features for the threshold with the
// largest weighted variance reduction.
func (b *treeBuilder) bestSplit(idx []int, sw, swy float64) (int, float64, bool) {
	if sw <= 0 {
		return 0, 0, false
	}
	p := len(b.X[0])
	mf := b.params.maxFeatures
	if mf <= 0 || mf > p {
		mf = p
	}
	features := b.rng.Perm(p)[:mf]

	best := 0.0
	bestFeature, bestThreshold, found := -1, 0.0, false
	parent := swy * swy / sw
	order := append(b.order[:0], idx...)
	for _, f := range features {
		sort.SliceStable(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var lw, lwy float64
		lcount := 0
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			lw += b.w[i]
			lwy += b.w[i] * b.y[i]
			lcount++
			cur, next := b.X[i][f], b.X[order[k+1]][f]
			if cur == next {
				continue
			}
			if lcount < b.params.minLeaf || len(order)-lcount < b.params.minLeaf {
				continue
			}
			rw, rwy := sw-lw, swy-lwy
			if lw <= 0 || rw <= 0 {
				continue
			}
			gain := lwy*lwy/lw + rwy*rwy/rw - parent
			if gain > best+1e-12 {
				best = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	b.order = order
	return bestFeature, bestThreshold, found
}

func (t *tree) predict(row []float64) float64 {
	id := 0
	for {
		n := t.nodes[id]
		if n.leaf {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			id = n.left
		} else {
			id = n.right
		}
	}
}
