package lwan

import (
	"errors"
	"math/rand/v2"
)

// =============================================================================
// EMBEDDING LAYER
// Maps integer indices to dense vectors (lookup table)
// =============================================================================

type EmbeddingLayer struct {
	vocabSize   int
	embedDim    int
	initializer Initializer
	paddingIdx  int     // Index whose row receives no gradient, -1 if none
	pretrained  *tensor // Optional [vocabSize, embedDim] weights to copy in
	seqLen      int     // Stored from input shape

	weights  *tensor // [vocabSize, embedDim]
	gradW    *tensor
	inputIdx []int // Cached input indices for backward
	built    bool
}

type EmbeddingBuilder struct {
	layer *EmbeddingLayer
}

// Embedding creates an embedding layer
// Input: integer indices [batch, seqLen] (flattened as []float64)
// Output: dense vectors [batch, seqLen, embedDim]
func Embedding(vocabSize, embedDim int) *EmbeddingBuilder {
	return &EmbeddingBuilder{
		layer: &EmbeddingLayer{
			vocabSize:  vocabSize,
			embedDim:   embedDim,
			paddingIdx: -1,
		},
	}
}

func (b *EmbeddingBuilder) WithInitializer(init Initializer) *EmbeddingBuilder {
	b.layer.initializer = init
	return b
}

func (b *EmbeddingBuilder) WithPaddingIdx(idx int) *EmbeddingBuilder {
	b.layer.paddingIdx = idx
	return b
}

// WithPretrained seeds the table from pretrained vectors. The vectors are
// copied at build time so the source tensor stays immutable during training.
func (b *EmbeddingBuilder) WithPretrained(vecs *tensor) *EmbeddingBuilder {
	b.layer.pretrained = vecs
	return b
}

func (b *EmbeddingBuilder) Build() Layer {
	return b.layer
}

func (e *EmbeddingLayer) build(inputShape []int, src rand.Source) error {
	if e.initializer == nil {
		e.initializer = RandomNormal(0, 0.02)
	}

	if len(inputShape) >= 1 {
		e.seqLen = inputShape[0]
	}

	e.weights = newTensor(e.vocabSize, e.embedDim)
	if e.pretrained != nil {
		if err := validateShape(e.weights.shape, e.pretrained.shape); err != nil {
			return errors.New("lwan: pretrained embedding shape does not match [vocabSize, embedDim]")
		}
		copy(e.weights.data, e.pretrained.data)
	} else {
		e.initializer.initialize(e.weights, e.vocabSize, e.embedDim, src)
		// Padding row starts at zero; it stays trainable but receives no
		// gradient, so it remains near its initial value.
		if e.paddingIdx >= 0 && e.paddingIdx < e.vocabSize {
			for j := 0; j < e.embedDim; j++ {
				e.weights.data[e.paddingIdx*e.embedDim+j] = 0
			}
		}
	}

	e.gradW = newTensor(e.vocabSize, e.embedDim)
	e.built = true
	return nil
}

func (e *EmbeddingLayer) forward(input *tensor, training bool) (*tensor, error) {
	if !e.built {
		return nil, errors.New("lwan: Embedding layer not built")
	}

	batchSize := input.shape[0]
	seqLen := input.shape[1]

	// Cache indices for backward pass
	e.inputIdx = make([]int, batchSize*seqLen)
	for i := range e.inputIdx {
		e.inputIdx[i] = int(input.data[i])
	}

	output := newTensor(batchSize, seqLen, e.embedDim)

	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			idx := e.inputIdx[b*seqLen+s]
			if idx < 0 || idx >= e.vocabSize {
				idx = 0 // Fallback to padding for out-of-range ids
			}
			copy(row(output.data, b*seqLen+s, e.embedDim), row(e.weights.data, idx, e.embedDim))
		}
	}

	return output, nil
}

func (e *EmbeddingLayer) backward(gradOutput *tensor) (*tensor, error) {
	batchSize := gradOutput.shape[0]
	seqLen := gradOutput.shape[1]

	e.gradW.fill(0)

	// Sparse update: only rows that were accessed, skipping the padding row
	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			idx := e.inputIdx[b*seqLen+s]
			if idx < 0 || idx >= e.vocabSize || idx == e.paddingIdx {
				continue
			}
			dst := row(e.gradW.data, idx, e.embedDim)
			src := row(gradOutput.data, b*seqLen+s, e.embedDim)
			for d := range dst {
				dst[d] += src[d]
			}
		}
	}

	// Input gradient is not needed (indices are not differentiable)
	return nil, nil
}

func (e *EmbeddingLayer) parameters() []*tensor {
	return []*tensor{e.weights}
}

func (e *EmbeddingLayer) gradients() []*tensor {
	return []*tensor{e.gradW}
}

func (e *EmbeddingLayer) outputShape() []int {
	return []int{e.seqLen, e.embedDim}
}

func (e *EmbeddingLayer) name() string { return "embedding" }
