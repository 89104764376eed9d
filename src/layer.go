package lwan

import (
	"errors"
	"math/rand/v2"
)

// Layer is the capability every network stage implements: produce an output
// tensor from an input tensor, and propagate gradients back through it.
// Network variants compose Layers rather than sharing a mutable base.
type Layer interface {
	build(inputShape []int, src rand.Source) error
	forward(input *tensor, training bool) (*tensor, error)
	backward(gradOutput *tensor) (*tensor, error)
	parameters() []*tensor
	gradients() []*tensor
	outputShape() []int
	name() string
}

// DropoutLayer - randomly zeros elements during training.
// Uses inverted dropout so inference is a plain identity pass-through.
type DropoutLayer struct {
	rate  float64
	mask  *tensor
	rng   *rand.Rand
	built bool
}

type DropoutBuilder struct {
	layer *DropoutLayer
}

func Dropout(rate float64) *DropoutBuilder {
	return &DropoutBuilder{
		layer: &DropoutLayer{
			rate: rate,
		},
	}
}

func (b *DropoutBuilder) Build() Layer {
	return b.layer
}

func (d *DropoutLayer) build(inputShape []int, src rand.Source) error {
	if d.rate < 0 || d.rate >= 1 {
		return errors.New("lwan: dropout rate must be in [0, 1)")
	}
	d.rng = rand.New(src)
	d.built = true
	return nil
}

func (d *DropoutLayer) forward(input *tensor, training bool) (*tensor, error) {
	if !d.built {
		return nil, errors.New("lwan: Dropout layer not built")
	}
	if !training || d.rate == 0 {
		d.mask = nil
		return input, nil
	}

	output := newTensor(input.shape...)
	d.mask = newTensor(input.shape...)

	scale := 1.0 / (1.0 - d.rate)
	for i := range input.data {
		if d.rng.Float64() >= d.rate {
			d.mask.data[i] = scale
			output.data[i] = input.data[i] * scale
		}
	}
	return output, nil
}

func (d *DropoutLayer) backward(gradOutput *tensor) (*tensor, error) {
	if d.mask == nil {
		// Last forward ran in inference mode
		return gradOutput, nil
	}
	gradInput := newTensor(gradOutput.shape...)
	elemMul(gradOutput, d.mask, gradInput)
	return gradInput, nil
}

func (d *DropoutLayer) parameters() []*tensor { return nil }
func (d *DropoutLayer) gradients() []*tensor  { return nil }
func (d *DropoutLayer) outputShape() []int    { return nil }
func (d *DropoutLayer) name() string          { return "dropout" }
