package gbdt

import (
	"context"
	"errors"
	"math"
	"testing"
)

// separable returns rows where the label is 1 iff the first feature > 5.
func separable(n int) ([][]float64, []int) {
	X := make([][]float64, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		v := float64(i % 10)
		X[i] = []float64{v, float64(i % 3)}
		if v > 5 {
			y[i] = 1
		}
	}
	return X, y
}

func TestFit_LearnsSeparableData(t *testing.T) {
	X, y := separable(200)

	c, err := Fit(context.Background(), X, y, DefaultParams())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if c.NumTrees() != 100 {
		t.Errorf("NumTrees = %d, want 100", c.NumTrees())
	}

	for i, x := range X {
		got, err := c.Predict(x)
		if err != nil {
			t.Fatalf("Predict(%v): %v", x, err)
		}
		if got != y[i] {
			t.Errorf("Predict(%v) = %d, want %d", x, got, y[i])
		}
	}
}

func TestFit_LossCurve(t *testing.T) {
	X, y := separable(100)
	p := DefaultParams()
	p.Rounds = 30

	c, err := Fit(context.Background(), X, y, p)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	curve := c.LossCurve()
	if len(curve) != 30 {
		t.Fatalf("len(LossCurve) = %d, want 30", len(curve))
	}
	if !(curve[len(curve)-1] < curve[0]) {
		t.Errorf("loss did not decrease: first=%v last=%v", curve[0], curve[len(curve)-1])
	}
	if curve[0] >= math.Log(2) {
		t.Errorf("first round loss %v should be below the base-score loss %v", curve[0], math.Log(2))
	}
}

func TestPredictProba_SumsToOne(t *testing.T) {
	X, y := separable(50)
	c, err := Fit(context.Background(), X, y, DefaultParams())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	proba, err := c.PredictProba([]float64{3, 1})
	if err != nil {
		t.Fatal(err)
	}
	if proba[0] < 0 || proba[0] > 1 || proba[1] < 0 || proba[1] > 1 {
		t.Errorf("probabilities out of range: %v", proba)
	}
	if math.Abs(proba[0]+proba[1]-1) > 1e-12 {
		t.Errorf("probabilities do not sum to 1: %v", proba)
	}
}

func TestPredict_FeatureMismatch(t *testing.T) {
	X, y := separable(20)
	c, err := Fit(context.Background(), X, y, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.PredictProba([]float64{1}); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("err = %v, want ErrFeatureMismatch", err)
	}
}

func TestFit_MissingValues(t *testing.T) {
	// Label is 1 exactly when the first feature is missing.
	var X [][]float64
	var y []int
	for i := 0; i < 60; i++ {
		if i%2 == 0 {
			X = append(X, []float64{math.NaN(), float64(i % 4)})
			y = append(y, 1)
		} else {
			X = append(X, []float64{float64(i), float64(i % 4)})
			y = append(y, 0)
		}
	}
	c, err := Fit(context.Background(), X, y, DefaultParams())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if got, _ := c.Predict([]float64{math.NaN(), 0}); got != 1 {
		t.Errorf("Predict(NaN) = %d, want 1", got)
	}
	if got, _ := c.Predict([]float64{7, 0}); got != 0 {
		t.Errorf("Predict(7) = %d, want 0", got)
	}
}

func TestFit_ScalePosWeightRaisesPositiveScores(t *testing.T) {
	// One noisy positive among negatives sharing the same feature value.
	X := [][]float64{{0}, {0}, {0}, {0}, {1}, {1}}
	y := []int{0, 0, 0, 1, 1, 1}

	p := DefaultParams()
	p.Rounds = 10
	plain, err := Fit(context.Background(), X, y, p)
	if err != nil {
		t.Fatal(err)
	}
	p.ScalePosWeight = 5
	weighted, err := Fit(context.Background(), X, y, p)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := plain.PredictProba([]float64{0})
	b, _ := weighted.PredictProba([]float64{0})
	if !(b[1] > a[1]) {
		t.Errorf("weighted P(1) = %v, want > unweighted %v", b[1], a[1])
	}
}

func TestFit_InvalidInput(t *testing.T) {
	ctx := context.Background()
	bad := DefaultParams()
	bad.ScalePosWeight = math.Inf(1)

	tests := []struct {
		name string
		X    [][]float64
		y    []int
		p    Params
	}{
		{"no rows", nil, nil, DefaultParams()},
		{"length mismatch", [][]float64{{1}}, []int{0, 1}, DefaultParams()},
		{"ragged", [][]float64{{1}, {1, 2}}, []int{0, 1}, DefaultParams()},
		{"bad label", [][]float64{{1}}, []int{2}, DefaultParams()},
		{"infinite weight", [][]float64{{1}, {2}}, []int{0, 1}, bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Fit(ctx, tt.X, tt.y, tt.p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	X, y := separable(20)
	if _, err := Fit(ctx, X, y, DefaultParams()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
