package lwan

import (
	"errors"
	"math/rand/v2"
)

// Conv1DLayer - 1D convolution over the sequence axis.
// Symmetric padding of floor(kernelSize/2) keeps the sequence length, so every
// position gets a feature vector of numFilters channels.
type Conv1DLayer struct {
	filters     int
	kernelSize  int
	activation  Activation
	initializer Initializer
	biasInit    Initializer
	useBias     bool

	weights    *tensor // [filters, inChannels, kernelSize]
	bias       *tensor
	input      *tensor
	preAct     *tensor
	gradW      *tensor
	gradB      *tensor
	inputShape []int // [T, C]
	built      bool
}

type Conv1DBuilder struct {
	layer *Conv1DLayer
}

func Conv1D(filters, kernelSize int) *Conv1DBuilder {
	return &Conv1DBuilder{
		layer: &Conv1DLayer{
			filters:    filters,
			kernelSize: kernelSize,
		},
	}
}

func (b *Conv1DBuilder) WithActivation(act Activation) *Conv1DBuilder {
	b.layer.activation = act
	return b
}

func (b *Conv1DBuilder) WithInitializer(init Initializer) *Conv1DBuilder {
	b.layer.initializer = init
	return b
}

func (b *Conv1DBuilder) WithBiasInitializer(init Initializer) *Conv1DBuilder {
	b.layer.biasInit = init
	return b
}

func (b *Conv1DBuilder) WithBias(useBias bool) *Conv1DBuilder {
	b.layer.useBias = useBias
	return b
}

func (b *Conv1DBuilder) Build() Layer {
	return b.layer
}

func (c *Conv1DLayer) build(inputShape []int, src rand.Source) error {
	if len(inputShape) != 2 {
		return errors.New("lwan: Conv1D requires input shape [T, C]")
	}
	if c.kernelSize <= 0 || c.kernelSize%2 == 0 {
		return errors.New("lwan: Conv1D kernel size must be a positive odd number")
	}
	if c.initializer == nil {
		return errors.New("lwan: Conv1D requires initializer")
	}
	if c.activation == nil {
		return errors.New("lwan: Conv1D requires activation")
	}
	if c.useBias && c.biasInit == nil {
		return errors.New("lwan: Conv1D with bias requires bias initializer")
	}

	c.inputShape = inputShape
	inChannels := inputShape[1]

	c.weights = newTensor(c.filters, inChannels, c.kernelSize)
	fanIn := c.kernelSize * inChannels
	fanOut := c.kernelSize * c.filters
	c.initializer.initialize(c.weights, fanIn, fanOut, src)

	c.gradW = newTensor(c.filters, inChannels, c.kernelSize)

	if c.useBias {
		c.bias = newTensor(c.filters)
		c.biasInit.initialize(c.bias, fanIn, fanOut, src)
		c.gradB = newTensor(c.filters)
	}

	c.built = true
	return nil
}

func (c *Conv1DLayer) forward(input *tensor, training bool) (*tensor, error) {
	if !c.built {
		return nil, errors.New("lwan: Conv1D layer not built")
	}

	batchSize := input.shape[0]
	seqLen := input.shape[1]
	inChannels := input.shape[2]
	if inChannels != c.inputShape[1] {
		return nil, errors.New("lwan: Conv1D input channel mismatch")
	}

	pad := c.kernelSize / 2

	c.input = input
	c.preAct = newTensor(batchSize, seqLen, c.filters)
	output := newTensor(batchSize, seqLen, c.filters)

	for b := 0; b < batchSize; b++ {
		base := b * seqLen
		for t := 0; t < seqLen; t++ {
			for f := 0; f < c.filters; f++ {
				sum := 0.0
				if c.useBias {
					sum = c.bias.data[f]
				}
				for k := 0; k < c.kernelSize; k++ {
					ti := t + k - pad
					if ti < 0 || ti >= seqLen {
						continue
					}
					in := row(input.data, base+ti, inChannels)
					w := c.weights.data[(f*inChannels)*c.kernelSize+k:]
					for e := 0; e < inChannels; e++ {
						sum += w[e*c.kernelSize] * in[e]
					}
				}
				c.preAct.data[(base+t)*c.filters+f] = sum
			}
		}
	}

	c.activation.forward(c.preAct, output)
	return output, nil
}

func (c *Conv1DLayer) backward(gradOutput *tensor) (*tensor, error) {
	batchSize := gradOutput.shape[0]
	seqLen := gradOutput.shape[1]
	inChannels := c.inputShape[1]
	pad := c.kernelSize / 2

	dPre := newTensor(gradOutput.shape...)
	c.activation.backward(c.preAct, gradOutput, dPre)

	c.gradW.fill(0)
	if c.useBias {
		c.gradB.fill(0)
	}
	gradInput := newTensor(batchSize, seqLen, inChannels)

	for b := 0; b < batchSize; b++ {
		base := b * seqLen
		for t := 0; t < seqLen; t++ {
			dp := row(dPre.data, base+t, c.filters)
			for f := 0; f < c.filters; f++ {
				d := dp[f]
				if d == 0 {
					continue
				}
				if c.useBias {
					c.gradB.data[f] += d
				}
				for k := 0; k < c.kernelSize; k++ {
					ti := t + k - pad
					if ti < 0 || ti >= seqLen {
						continue
					}
					in := row(c.input.data, base+ti, inChannels)
					gin := row(gradInput.data, base+ti, inChannels)
					for e := 0; e < inChannels; e++ {
						wi := (f*inChannels+e)*c.kernelSize + k
						c.gradW.data[wi] += d * in[e]
						gin[e] += d * c.weights.data[wi]
					}
				}
			}
		}
	}

	return gradInput, nil
}

func (c *Conv1DLayer) parameters() []*tensor {
	if c.useBias {
		return []*tensor{c.weights, c.bias}
	}
	return []*tensor{c.weights}
}

func (c *Conv1DLayer) gradients() []*tensor {
	if c.useBias {
		return []*tensor{c.gradW, c.gradB}
	}
	return []*tensor{c.gradW}
}

func (c *Conv1DLayer) outputShape() []int {
	return []int{c.inputShape[0], c.filters}
}

func (c *Conv1DLayer) name() string { return "conv1d" }
