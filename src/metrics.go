package lwan

import "context"

// MultiLabelMetric accumulates per-class confusion counts at a decision
// threshold and reports micro/macro averaged precision, recall and F1.
type MultiLabelMetric struct {
	numClasses int
	threshold  float64
	tp, fp, fn []int
}

func NewMultiLabelMetric(numClasses int) *MultiLabelMetric {
	return &MultiLabelMetric{
		numClasses: numClasses,
		threshold:  0.5,
		tp:         make([]int, numClasses),
		fp:         make([]int, numClasses),
		fn:         make([]int, numClasses),
	}
}

func (m *MultiLabelMetric) Reset() {
	for i := 0; i < m.numClasses; i++ {
		m.tp[i], m.fp[i], m.fn[i] = 0, 0, 0
	}
}

// AddBatch accumulates one batch of multi-hot targets and sigmoid scores.
func (m *MultiLabelMetric) AddBatch(labels, scores [][]float64) {
	for i := range labels {
		for c := 0; c < m.numClasses; c++ {
			pred := scores[i][c] >= m.threshold
			truth := labels[i][c] > 0.5
			switch {
			case pred && truth:
				m.tp[c]++
			case pred && !truth:
				m.fp[c]++
			case !pred && truth:
				m.fn[c]++
			}
		}
	}
}

func (m *MultiLabelMetric) addBatchTensors(labels, scores *tensor) {
	m.AddBatch(tensorRows(labels), tensorRows(scores))
}

// Metrics reports the aggregate values accumulated so far.
func (m *MultiLabelMetric) Metrics() map[string]float64 {
	var tp, fp, fn int
	macroF1 := 0.0
	for c := 0; c < m.numClasses; c++ {
		tp += m.tp[c]
		fp += m.fp[c]
		fn += m.fn[c]
		macroF1 += f1(m.tp[c], m.fp[c], m.fn[c])
	}
	return map[string]float64{
		"micro_precision": precision(tp, fp),
		"micro_recall":    recall(tp, fn),
		"micro_f1":        f1(tp, fp, fn),
		"macro_f1":        macroF1 / float64(m.numClasses),
	}
}

func precision(tp, fp int) float64 {
	if tp+fp == 0 {
		return 0
	}
	return float64(tp) / float64(tp+fp)
}

func recall(tp, fn int) float64 {
	if tp+fn == 0 {
		return 0
	}
	return float64(tp) / float64(tp+fn)
}

func f1(tp, fp, fn int) float64 {
	p := precision(tp, fp)
	r := recall(tp, fn)
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// tensorRows views a 2-D tensor as per-sample rows.
func tensorRows(t *tensor) [][]float64 {
	n := t.shape[0]
	width := t.size() / n
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = row(t.data, i, width)
	}
	return rows
}

// Predictor scores batches without updating weights.
type Predictor interface {
	Predict(batch *Batch) (*PredictResult, error)
}

// PredictResult holds one batch of inference output.
type PredictResult struct {
	Logits [][]float64 // pre-sigmoid scores [batch, numClasses]
	Scores [][]float64 // sigmoid probabilities in [0, 1]
}

// Evaluator runs a full validation or test pass and returns an ordered
// sequence of metric snapshots; the first entry carries the aggregate values
// the training loop reads for early stopping.
type Evaluator interface {
	Evaluate(ctx context.Context, p Predictor, loader DataLoader) ([]map[string]float64, error)
}

// MetricEvaluator is the default Evaluator built on MultiLabelMetric.
type MetricEvaluator struct {
	NumClasses int
}

func (e *MetricEvaluator) Evaluate(ctx context.Context, p Predictor, loader DataLoader) ([]map[string]float64, error) {
	metric := NewMultiLabelMetric(e.NumClasses)
	loader.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, ok := loader.Next()
		if !ok {
			break
		}
		result, err := p.Predict(batch)
		if err != nil {
			return nil, err
		}
		metric.AddBatch(batch.Label, result.Scores)
	}
	return []map[string]float64{metric.Metrics()}, nil
}
