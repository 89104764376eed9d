package lwan

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer sets up initial weights for layers
type Initializer interface {
	initialize(t *tensor, fanIn, fanOut int, src rand.Source)
	name() string
}

func fillDist(t *tensor, d distuv.Rander) {
	for i := range t.data {
		t.data[i] = d.Rand()
	}
}

// XavierUniformInit - Xavier/Glorot uniform initialization.
// This is the required scheme for the convolution, attention and classifier
// weights: the attention softmax is sensitive to the initial activation scale.
type XavierUniformInit struct {
	Gain float64
}

func XavierUniform(gain float64) Initializer {
	return &XavierUniformInit{Gain: gain}
}

func (x *XavierUniformInit) initialize(t *tensor, fanIn, fanOut int, src rand.Source) {
	limit := x.Gain * math.Sqrt(6.0/float64(fanIn+fanOut))
	fillDist(t, distuv.Uniform{Min: -limit, Max: limit, Src: src})
}

func (x *XavierUniformInit) name() string { return "xavier_uniform" }

// XavierNormalInit - Xavier/Glorot normal initialization
type XavierNormalInit struct {
	Gain float64
}

func XavierNormal(gain float64) Initializer {
	return &XavierNormalInit{Gain: gain}
}

func (x *XavierNormalInit) initialize(t *tensor, fanIn, fanOut int, src rand.Source) {
	std := x.Gain * math.Sqrt(2.0/float64(fanIn+fanOut))
	fillDist(t, distuv.Normal{Mu: 0, Sigma: std, Src: src})
}

func (x *XavierNormalInit) name() string { return "xavier_normal" }

// HeUniformInit - He/Kaiming uniform initialization
type HeUniformInit struct {
	Gain float64
}

func HeUniform(gain float64) Initializer {
	return &HeUniformInit{Gain: gain}
}

func (h *HeUniformInit) initialize(t *tensor, fanIn, fanOut int, src rand.Source) {
	limit := h.Gain * math.Sqrt(6.0/float64(fanIn))
	fillDist(t, distuv.Uniform{Min: -limit, Max: limit, Src: src})
}

func (h *HeUniformInit) name() string { return "he_uniform" }

// HeNormalInit - He/Kaiming normal initialization
type HeNormalInit struct {
	Gain float64
}

func HeNormal(gain float64) Initializer {
	return &HeNormalInit{Gain: gain}
}

func (h *HeNormalInit) initialize(t *tensor, fanIn, fanOut int, src rand.Source) {
	std := h.Gain * math.Sqrt(2.0/float64(fanIn))
	fillDist(t, distuv.Normal{Mu: 0, Sigma: std, Src: src})
}

func (h *HeNormalInit) name() string { return "he_normal" }

// RandomNormalInit - simple random normal
type RandomNormalInit struct {
	Mean   float64
	StdDev float64
}

func RandomNormal(mean, stddev float64) Initializer {
	return &RandomNormalInit{Mean: mean, StdDev: stddev}
}

func (r *RandomNormalInit) initialize(t *tensor, fanIn, fanOut int, src rand.Source) {
	fillDist(t, distuv.Normal{Mu: r.Mean, Sigma: r.StdDev, Src: src})
}

func (r *RandomNormalInit) name() string { return "random_normal" }

// ZerosInit - initialize with zeros
type ZerosInit struct{}

func Zeros() Initializer { return &ZerosInit{} }

func (z *ZerosInit) initialize(t *tensor, fanIn, fanOut int, src rand.Source) {
	t.fill(0)
}

func (z *ZerosInit) name() string { return "zeros" }

// ConstantInit - initialize with constant value
type ConstantInit struct {
	Value float64
}

func Constant(value float64) Initializer {
	return &ConstantInit{Value: value}
}

func (c *ConstantInit) initialize(t *tensor, fanIn, fanOut int, src rand.Source) {
	t.fill(c.Value)
}

func (c *ConstantInit) name() string { return "constant" }
