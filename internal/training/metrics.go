package training

// notTrainedMessage is reported in Metrics.Error before any model exists.
const notTrainedMessage = "The model hasn't been trained yet, therefore metrics can't be calculated"

// Metrics is the evaluation of the stored model on its test partition.
// Matrix is [[TN, FP], [FN, TP]] with label order 0, 1. Graph is the
// per-round training log-loss.
type Metrics struct {
	Error     *string   `json:"error"`
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	Matrix    [2][2]int `json:"matrix"`
	Graph     []float64 `json:"graph"`
}

// NotTrainedMetrics is the soft-error result returned before training.
func NotTrainedMetrics() Metrics {
	msg := notTrainedMessage
	return Metrics{Error: &msg, Graph: []float64{}}
}

// MetricsFor computes metrics for s. It does not modify s.
func MetricsFor(s *State) Metrics {
	if s == nil || len(s.Predictions) == 0 {
		return NotTrainedMetrics()
	}

	var m Metrics
	for i, pred := range s.Predictions {
		m.Matrix[s.Test.Y[i]][pred]++
	}
	tn, fp := float64(m.Matrix[0][0]), float64(m.Matrix[0][1])
	fn, tp := float64(m.Matrix[1][0]), float64(m.Matrix[1][1])

	m.Accuracy = ratio(tp+tn, tp+tn+fp+fn)
	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	m.F1 = ratio(2*tp, 2*tp+fp+fn)
	m.Graph = append([]float64{}, s.LossCurve...)
	return m
}

// ratio returns 0 when the denominator is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
