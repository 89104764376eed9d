package lwan

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// tensor is the internal compute buffer: a flat float64 slice with a shape.
// Layers keep their own gradient tensors alongside their parameters.
type tensor struct {
	data  []float64
	shape []int
}

func newTensor(shape ...int) *tensor {
	size := 1
	for _, s := range shape {
		if s <= 0 {
			s = 1 // Ensure non-zero size
		}
		size *= s
	}
	return &tensor{
		data:  make([]float64, size),
		shape: shape,
	}
}

func (t *tensor) size() int {
	return len(t.data)
}

func (t *tensor) fill(value float64) {
	for i := range t.data {
		t.data[i] = value
	}
}

func (t *tensor) clone() *tensor {
	nt := newTensor(t.shape...)
	copy(nt.data, t.data)
	return nt
}

// row returns the i-th row of a flat buffer viewed as rows of the given width.
func row(data []float64, i, width int) []float64 {
	return data[i*width : (i+1)*width]
}

func elemMul(a, b, out *tensor) {
	floats.MulTo(out.data, a.data, b.data)
}

func clipValues(a []float64, min, max float64) {
	for i := range a {
		if a[i] < min {
			a[i] = min
		} else if a[i] > max {
			a[i] = max
		}
	}
}

// softmaxRow normalizes a row in place into a probability distribution,
// subtracting the max first for numeric stability.
func softmaxRow(p []float64) {
	max := floats.Max(p)
	for i, v := range p {
		p[i] = math.Exp(v - max)
	}
	sum := floats.Sum(p)
	floats.Scale(1/sum, p)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func validateShape(expected, got []int) error {
	if len(expected) != len(got) {
		return errors.New("lwan: shape mismatch - different dimensions")
	}
	for i := range expected {
		if expected[i] != got[i] {
			return errors.New("lwan: shape mismatch")
		}
	}
	return nil
}

// shuffleIndex permutes a sample index slice in place.
func shuffleIndex(idx []int, rng *rand.Rand) {
	for i := len(idx) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
}
