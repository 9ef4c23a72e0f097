package model

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
)

// ForestConfig parameterises the random forest. Zero fields take defaults.
type ForestConfig struct {
	Trees    int    // default 100
	MaxDepth int    // default 5
	Seed     uint64 // default DefaultSeed
}

// Forest is a bagged ensemble of CART trees split on Gini impurity.
type Forest struct {
	cfg ForestConfig
}

// NewForest creates a Forest classifier.
func NewForest(cfg ForestConfig) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	return &Forest{cfg: cfg}
}

// Name returns "Random Forest".
func (f *Forest) Name() string { return "Random Forest" }

// Fit grows cfg.Trees trees, each on its own bootstrap sample. Tree t draws
// from a PCG stream keyed by (seed, t), so identical input always yields an
// identical forest.
func (f *Forest) Fit(x [][]float64, y []int) (Model, error) {
	if err := checkTrainingSet(x, y); err != nil {
		return nil, err
	}

	width := len(x[0])
	mtry := max(1, int(math.Sqrt(float64(width))))
	fm := &forestModel{
		trees:       make([]*tree, f.cfg.Trees),
		importances: make([]float64, width),
	}

	n := len(x)
	for t := range f.cfg.Trees {
		rng := rand.New(rand.NewPCG(f.cfg.Seed, uint64(t)))
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		b := &treeBuilder{
			x:        x,
			y:        y,
			rng:      rng,
			maxDepth: f.cfg.MaxDepth,
			mtry:     mtry,
			gain:     make([]float64, width),
		}
		tr := &tree{}
		b.grow(tr, sample, 0)
		fm.trees[t] = tr

		// Per-tree importances are normalised before averaging.
		total := 0.0
		for _, g := range b.gain {
			total += g
		}
		if total > 0 {
			for j, g := range b.gain {
				fm.importances[j] += g / total
			}
		}
	}

	total := 0.0
	for _, v := range fm.importances {
		total += v
	}
	if total > 0 {
		for j := range fm.importances {
			fm.importances[j] /= total
		}
	}
	return fm, nil
}

type forestModel struct {
	trees       []*tree
	importances []float64
}

func (m *forestModel) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		sum := 0.0
		for _, t := range m.trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(m.trees))
	}
	return out
}

// Importances returns mean-decrease-in-impurity weights summing to 1, or all
// zeros when no tree ever split.
func (m *forestModel) Importances() []float64 {
	return slices.Clone(m.importances)
}

// tree is a flat array of nodes; node 0 is the root.
type tree struct {
	nodes []node
}

type node struct {
	leaf      bool
	value     float64 // fraction of positive labels, used at leaves
	feature   int
	threshold float64
	left      int
	right     int
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type treeBuilder struct {
	x        [][]float64
	y        []int
	rng      *rand.Rand
	maxDepth int
	mtry     int
	gain     []float64 // impurity decrease per feature, weighted by samples
}

// grow appends the subtree for sample to t and returns its node index.
func (b *treeBuilder) grow(t *tree, sample []int, depth int) int {
	pos := 0
	for _, i := range sample {
		pos += b.y[i]
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{leaf: true, value: float64(pos) / float64(len(sample))})

	if depth >= b.maxDepth || len(sample) < 2 || pos == 0 || pos == len(sample) {
		return idx
	}

	s, ok := b.bestSplit(sample, pos)
	if !ok {
		return idx
	}

	var left, right []int
	for _, i := range sample {
		if b.x[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.gain[s.feature] += s.gain

	l := b.grow(t, left, depth+1)
	r := b.grow(t, right, depth+1)
	t.nodes[idx] = node{feature: s.feature, threshold: s.threshold, left: l, right: r}
	return idx
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit tries mtry randomly chosen features first and falls back to the
// remaining ones only when none of those yields a valid split.
func (b *treeBuilder) bestSplit(sample []int, pos int) (split, bool) {
	order := b.rng.Perm(len(b.gain))
	best, found := b.searchFeatures(sample, pos, order[:b.mtry])
	if !found {
		best, found = b.searchFeatures(sample, pos, order[b.mtry:])
	}
	return best, found
}

func (b *treeBuilder) searchFeatures(sample []int, pos int, features []int) (split, bool) {
	n := float64(len(sample))
	parent := n * gini(float64(pos), n)

	var best split
	found := false
	sorted := make([]int, len(sample))
	for _, f := range features {
		copy(sorted, sample)
		slices.SortFunc(sorted, func(a, c int) int {
			return cmp.Compare(b.x[a][f], b.x[c][f])
		})

		leftPos := 0
		for k := 0; k < len(sorted)-1; k++ {
			leftPos += b.y[sorted[k]]
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			child := nl*gini(float64(leftPos), nl) + nr*gini(float64(pos-leftPos), nr)
			gain := parent - child
			if gain > 1e-12 && (!found || gain > best.gain) {
				th := lo + (hi-lo)/2
				if th >= hi {
					th = lo
				}
				best = split{feature: f, threshold: th, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func gini(pos, n float64) float64 {
	p := pos / n
	return 2 * p * (1 - p)
}
