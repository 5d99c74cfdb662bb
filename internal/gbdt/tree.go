package gbdt

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

type node struct {
	leaf  bool
	value float64

	feature     int
	threshold   float64 // x < threshold goes left
	defaultLeft bool    // where missing values go
	left, right int
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		v := x[n.feature]
		switch {
		case math.IsNaN(v):
			if n.defaultLeft {
				i = n.left
			} else {
				i = n.right
			}
		case v < n.threshold:
			i = n.left
		default:
			i = n.right
		}
	}
}

// presort returns, per feature, the indices of rows with a non-missing
// value ordered by that value.
func presort(ctx context.Context, X [][]float64, workers int) ([][]int32, error) {
	width := len(X[0])
	order := make([][]int32, width)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for f := 0; f < width; f++ {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			idx := make([]int32, 0, len(X))
			for i := range X {
				if !math.IsNaN(X[i][f]) {
					idx = append(idx, int32(i))
				}
			}
			sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
			order[f] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return order, nil
}

type builder struct {
	ctx     context.Context
	X       [][]float64
	order   [][]int32
	grad    []float64
	hess    []float64
	p       Params
	rowNode []int32
	nodes   []node
}

func newBuilder(ctx context.Context, X [][]float64, order [][]int32, grad, hess []float64, p Params) *builder {
	return &builder{
		ctx:     ctx,
		X:       X,
		order:   order,
		grad:    grad,
		hess:    hess,
		p:       p,
		rowNode: make([]int32, len(X)),
	}
}

func (b *builder) build() (tree, error) {
	rows := make([]int32, len(b.X))
	for i := range rows {
		rows[i] = int32(i)
	}
	if _, err := b.grow(rows, 0); err != nil {
		return tree{}, err
	}
	return tree{nodes: b.nodes}, nil
}

type split struct {
	ok          bool
	gain        float64
	feature     int
	threshold   float64
	defaultLeft bool
}

func (b *builder) grow(rows []int32, depth int) (int, error) {
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{})

	var G, H float64
	for _, i := range rows {
		b.rowNode[i] = int32(id)
		G += b.grad[i]
		H += b.hess[i]
	}

	if depth < b.p.MaxDepth && len(rows) > 1 && H >= 2*b.p.MinChildWeight {
		best, err := b.bestSplit(id, len(rows), G, H)
		if err != nil {
			return 0, err
		}
		if best.ok {
			var left, right []int32
			for _, i := range rows {
				v := b.X[i][best.feature]
				if (math.IsNaN(v) && best.defaultLeft) || v < best.threshold {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			l, err := b.grow(left, depth+1)
			if err != nil {
				return 0, err
			}
			r, err := b.grow(right, depth+1)
			if err != nil {
				return 0, err
			}
			b.nodes[id] = node{
				feature:     best.feature,
				threshold:   best.threshold,
				defaultLeft: best.defaultLeft,
				left:        l,
				right:       r,
			}
			return id, nil
		}
	}

	b.nodes[id] = node{leaf: true, value: -G / (H + b.p.Lambda) * b.p.LearningRate}
	return id, nil
}

// bestSplit evaluates every feature concurrently and returns the split with
// the largest gain. Ties go to the lowest feature index.
func (b *builder) bestSplit(id, count int, G, H float64) (split, error) {
	cands := make([]split, len(b.order))

	g, gCtx := errgroup.WithContext(b.ctx)
	g.SetLimit(b.p.Workers)
	for f := range b.order {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			cands[f] = b.scanFeature(f, int32(id), count, G, H)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return split{}, err
	}

	var best split
	for _, c := range cands {
		if c.ok && (!best.ok || c.gain > best.gain) {
			best = c
		}
	}
	return best, nil
}

type entry struct {
	v, g, h float64
}

func (b *builder) scanFeature(f int, id int32, count int, G, H float64) split {
	entries := make([]entry, 0, count)
	var sg, sh float64
	for _, i := range b.order[f] {
		if b.rowNode[i] != id {
			continue
		}
		entries = append(entries, entry{v: b.X[i][f], g: b.grad[i], h: b.hess[i]})
		sg += b.grad[i]
		sh += b.hess[i]
	}
	if len(entries) < 2 {
		return split{}
	}
	hasMissing := len(entries) < count
	gm, hm := G-sg, H-sh

	parent := b.score(G, H)
	best := split{feature: f}
	try := func(gl, hl float64, thr float64, defaultLeft bool) {
		gr, hr := G-gl, H-hl
		if hl < b.p.MinChildWeight || hr < b.p.MinChildWeight {
			return
		}
		gain := 0.5*(b.score(gl, hl)+b.score(gr, hr)-parent) - b.p.Gamma
		if gain > 1e-12 && gain > best.gain {
			best = split{ok: true, gain: gain, feature: f, threshold: thr, defaultLeft: defaultLeft}
		}
	}

	var gl, hl float64
	for k := 0; k < len(entries)-1; k++ {
		gl += entries[k].g
		hl += entries[k].h
		if entries[k].v == entries[k+1].v {
			continue
		}
		thr := entries[k+1].v
		try(gl, hl, thr, false)
		if hasMissing {
			try(gl+gm, hl+hm, thr, true)
		}
	}
	return best
}

func (b *builder) score(g, h float64) float64 {
	return g * g / (h + b.p.Lambda)
}
