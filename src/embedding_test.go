package lwan

import (
	"math/rand/v2"
	"testing"
)

func buildEmbedding(t *testing.T, vecs *tensor) *EmbeddingLayer {
	t.Helper()
	layer := Embedding(vecs.shape[0], vecs.shape[1]).
		WithPaddingIdx(0).
		WithPretrained(vecs).
		Build().(*EmbeddingLayer)
	if err := layer.build([]int{1}, rand.NewPCG(1, 2)); err != nil {
		t.Fatalf("build: %v", err)
	}
	return layer
}

func TestEmbeddingLookup(t *testing.T) {
	vecs := newTensor(3, 2)
	copy(vecs.data, []float64{0, 0, 1, 2, 3, 4})
	layer := buildEmbedding(t, vecs)

	input := newTensor(1, 3)
	copy(input.data, []float64{2, 1, 0})

	out, err := layer.forward(input, true)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	want := []float64{3, 4, 1, 2, 0, 0}
	for i, w := range want {
		if out.data[i] != w {
			t.Fatalf("out = %v, want %v", out.data, want)
		}
	}
}

func TestEmbeddingPretrainedIsCopied(t *testing.T) {
	vecs := newTensor(2, 2)
	copy(vecs.data, []float64{0, 0, 1, 1})
	layer := buildEmbedding(t, vecs)

	// Mutating the source after build must not leak into the layer.
	vecs.data[2] = 99
	if layer.weights.data[2] != 1 {
		t.Fatal("pretrained vectors were not copied at build time")
	}
}

func TestEmbeddingOutOfRangeFallsBackToPadding(t *testing.T) {
	vecs := newTensor(2, 2)
	copy(vecs.data, []float64{0, 0, 5, 5})
	layer := buildEmbedding(t, vecs)

	input := newTensor(1, 2)
	input.data[0] = 7 // beyond the table
	input.data[1] = -1

	out, err := layer.forward(input, true)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	for i, v := range out.data {
		if v != 0 {
			t.Fatalf("out[%d] = %g, want padding row", i, v)
		}
	}

	// Backward must not credit the padding row for those positions either.
	grad := newTensor(1, 2, 2)
	grad.fill(1)
	if _, err := layer.backward(grad); err != nil {
		t.Fatalf("backward: %v", err)
	}
	for i, v := range layer.gradients()[0].data {
		if v != 0 {
			t.Fatalf("gradW[%d] = %g, want all zero", i, v)
		}
	}
}
