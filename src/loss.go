package lwan

import "math"

// Loss computes loss and gradients
type Loss interface {
	compute(pred, target *tensor) float64
	gradient(pred, target *tensor, gradOut *tensor)
	name() string
}

// BCEWithLogitsLoss - binary cross-entropy straight from logits, one
// independent binary decision per label. The log-sum-exp form keeps the loss
// finite for large-magnitude logits; nothing guards against a non-finite loss
// from upstream (documented risk, training continues regardless).
type BCEWithLogitsLoss struct {
	Reduction string // "mean" or "sum"
}

type BCEWithLogitsConfig struct {
	Reduction string
}

func BCEWithLogits(config BCEWithLogitsConfig) Loss {
	return &BCEWithLogitsLoss{Reduction: config.Reduction}
}

func (b *BCEWithLogitsLoss) compute(pred, target *tensor) float64 {
	sum := 0.0
	for i := range pred.data {
		x := pred.data[i]
		t := target.data[i]
		// max(x,0) - x*t + log(1 + exp(-|x|))
		sum += math.Max(x, 0) - x*t + math.Log1p(math.Exp(-math.Abs(x)))
	}
	if b.Reduction == "mean" {
		return sum / float64(len(pred.data))
	}
	return sum
}

func (b *BCEWithLogitsLoss) gradient(pred, target *tensor, gradOut *tensor) {
	scale := 1.0
	if b.Reduction == "mean" {
		scale = 1.0 / float64(len(pred.data))
	}
	for i := range pred.data {
		gradOut.data[i] = scale * (sigmoid(pred.data[i]) - target.data[i])
	}
}

func (b *BCEWithLogitsLoss) name() string { return "bce_with_logits" }
