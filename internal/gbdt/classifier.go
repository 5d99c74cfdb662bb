// Package gbdt implements a binary gradient-boosted decision tree classifier
// trained on the logistic loss with second-order (Newton) leaf updates.
package gbdt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
)

// ErrFeatureMismatch is returned when an input vector has the wrong width.
var ErrFeatureMismatch = errors.New("feature count mismatch")

// Params configures training.
type Params struct {
	Rounds         int
	LearningRate   float64
	MaxDepth       int
	Lambda         float64 // L2 regularization on leaf weights
	Gamma          float64 // minimum loss reduction to make a split
	MinChildWeight float64 // minimum hessian sum in a child
	// ScalePosWeight multiplies the gradient and hessian of positive rows.
	ScalePosWeight float64
	BaseScore      float64
	// Workers bounds concurrent split evaluation. Zero means GOMAXPROCS.
	Workers int
}

// DefaultParams returns 100 rounds at learning rate 0.1 with depth-6 trees.
func DefaultParams() Params {
	return Params{
		Rounds:         100,
		LearningRate:   0.1,
		MaxDepth:       6,
		Lambda:         1,
		Gamma:          0,
		MinChildWeight: 1,
		ScalePosWeight: 1,
		BaseScore:      0.5,
	}
}

func (p Params) validate() error {
	switch {
	case p.Rounds <= 0:
		return fmt.Errorf("rounds must be positive, got %d", p.Rounds)
	case !(p.LearningRate > 0) || math.IsInf(p.LearningRate, 0):
		return fmt.Errorf("learning rate must be positive, got %v", p.LearningRate)
	case p.MaxDepth <= 0:
		return fmt.Errorf("max depth must be positive, got %d", p.MaxDepth)
	case p.Lambda < 0, p.Gamma < 0, p.MinChildWeight < 0:
		return fmt.Errorf("lambda, gamma and min child weight must be non-negative")
	case !(p.ScalePosWeight > 0) || math.IsInf(p.ScalePosWeight, 0):
		return fmt.Errorf("scale_pos_weight must be positive and finite, got %v", p.ScalePosWeight)
	case !(p.BaseScore > 0 && p.BaseScore < 1):
		return fmt.Errorf("base score must be in (0, 1), got %v", p.BaseScore)
	}
	return nil
}

// Classifier is a fitted ensemble. It is safe for concurrent use.
type Classifier struct {
	params      Params
	numFeatures int
	baseMargin  float64
	trees       []tree
	lossCurve   []float64
}

// Fit trains a classifier on X (rows by features) and binary labels y.
// After every round the unweighted log-loss on the training rows is
// recorded; see LossCurve.
func Fit(ctx context.Context, X [][]float64, y []int, p Params) (*Classifier, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureMismatch, i, len(row), width)
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("row %d: label must be 0 or 1, got %d", i, label)
		}
	}
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}

	c := &Classifier{
		params:      p,
		numFeatures: width,
		baseMargin:  math.Log(p.BaseScore / (1 - p.BaseScore)),
		trees:       make([]tree, 0, p.Rounds),
		lossCurve:   make([]float64, 0, p.Rounds),
	}

	order, err := presort(ctx, X, p.Workers)
	if err != nil {
		return nil, err
	}

	n := len(X)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = c.baseMargin
	}
	grad := make([]float64, n)
	hess := make([]float64, n)

	for round := 0; round < p.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range margin {
			pr := sigmoid(margin[i])
			w := 1.0
			if y[i] == 1 {
				w = p.ScalePosWeight
			}
			grad[i] = (pr - float64(y[i])) * w
			hess[i] = math.Max(pr*(1-pr), 1e-16) * w
		}

		b := newBuilder(ctx, X, order, grad, hess, p)
		t, err := b.build()
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		c.trees = append(c.trees, t)

		for i := range margin {
			margin[i] += t.predict(X[i])
		}
		c.lossCurve = append(c.lossCurve, logLoss(margin, y))
	}
	return c, nil
}

// NumFeatures returns the input width the classifier was trained on.
func (c *Classifier) NumFeatures() int { return c.numFeatures }

// NumTrees returns the ensemble size.
func (c *Classifier) NumTrees() int { return len(c.trees) }

// LossCurve returns the training log-loss after each boosting round.
func (c *Classifier) LossCurve() []float64 {
	return append([]float64(nil), c.lossCurve...)
}

// PredictProba returns [P(class 0), P(class 1)] for x.
func (c *Classifier) PredictProba(x []float64) ([2]float64, error) {
	if len(x) != c.numFeatures {
		return [2]float64{}, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(x), c.numFeatures)
	}
	m := c.baseMargin
	for i := range c.trees {
		m += c.trees[i].predict(x)
	}
	p := sigmoid(m)
	return [2]float64{1 - p, p}, nil
}

// Predict returns 1 when P(class 1) > 0.5 and 0 otherwise.
func (c *Classifier) Predict(x []float64) (int, error) {
	proba, err := c.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if proba[1] > 0.5 {
		return 1, nil
	}
	return 0, nil
}

func sigmoid(m float64) float64 {
	return 1 / (1 + math.Exp(-m))
}

const lossEps = 1e-15

func logLoss(margin []float64, y []int) float64 {
	var sum float64
	for i, m := range margin {
		p := math.Min(math.Max(sigmoid(m), lossEps), 1-lossEps)
		if y[i] == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(margin))
}
