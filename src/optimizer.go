package lwan

import "math"

// Optimizer updates network parameters. Its auxiliary buffers are part of the
// resumable training state, so every optimizer can export and restore them.
type Optimizer interface {
	step(params []*tensor, grads []*tensor)
	state() OptimizerState
	setState(s OptimizerState) error
	name() string
}

// OptimizerState is the serializable per-parameter auxiliary state.
// Slot buffers are ordered to match the network's parameters().
type OptimizerState struct {
	Name  string
	Step  int
	Slots map[string][][]float64
}

// NewOptimizer resolves the configured optimizer name. An unsupported name is
// a fatal configuration error; no partial state is constructed.
func NewOptimizer(config *Config) (Optimizer, error) {
	switch config.Optimizer {
	case "sgd":
		return SGD(SGDConfig{
			LR:          config.LearningRate,
			Momentum:    config.Momentum,
			WeightDecay: config.WeightDecay,
		}), nil
	case "adam":
		return Adam(AdamConfig{
			LR:          config.LearningRate,
			Beta1:       0.9,
			Beta2:       0.999,
			Epsilon:     1e-8,
			WeightDecay: config.WeightDecay,
		}), nil
	default:
		return nil, errorf("%w: %q", ErrUnsupportedOptimizer, config.Optimizer)
	}
}

// SGDOptimizer - Stochastic Gradient Descent with momentum
type SGDOptimizer struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
	velocities  []*tensor
	stepCount   int
	initialized bool
}

type SGDConfig struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
}

func SGD(config SGDConfig) Optimizer {
	return &SGDOptimizer{
		LR:          config.LR,
		Momentum:    config.Momentum,
		WeightDecay: config.WeightDecay,
	}
}

func (s *SGDOptimizer) init(params []*tensor) {
	s.velocities = make([]*tensor, len(params))
	for i, p := range params {
		s.velocities[i] = newTensor(p.shape...)
	}
	s.initialized = true
}

func (s *SGDOptimizer) step(params []*tensor, grads []*tensor) {
	if !s.initialized {
		s.init(params)
	}
	s.stepCount++
	for i, p := range params {
		g := grads[i]
		v := s.velocities[i]

		for j := range p.data {
			grad := g.data[j]
			if s.WeightDecay != 0 {
				grad += s.WeightDecay * p.data[j]
			}
			if s.Momentum != 0 {
				v.data[j] = s.Momentum*v.data[j] + grad
				grad = v.data[j]
			}
			p.data[j] -= s.LR * grad
		}
	}
}

func (s *SGDOptimizer) state() OptimizerState {
	return OptimizerState{
		Name: s.name(),
		Step: s.stepCount,
		Slots: map[string][][]float64{
			"velocity": copyBuffers(s.velocities),
		},
	}
}

func (s *SGDOptimizer) setState(st OptimizerState) error {
	if st.Name != s.name() {
		return errorf("optimizer state is for %q, not %q", st.Name, s.name())
	}
	s.stepCount = st.Step
	if vel, ok := st.Slots["velocity"]; ok && len(vel) > 0 {
		s.velocities = buffersToTensors(vel)
		s.initialized = true
	}
	return nil
}

func (s *SGDOptimizer) name() string { return "sgd" }

// AdamOptimizer - Adaptive Moment Estimation
type AdamOptimizer struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	m           []*tensor
	v           []*tensor
	stepCount   int
	initialized bool
}

type AdamConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
}

func Adam(config AdamConfig) Optimizer {
	return &AdamOptimizer{
		LR:          config.LR,
		Beta1:       config.Beta1,
		Beta2:       config.Beta2,
		Epsilon:     config.Epsilon,
		WeightDecay: config.WeightDecay,
	}
}

func (a *AdamOptimizer) init(params []*tensor) {
	a.m = make([]*tensor, len(params))
	a.v = make([]*tensor, len(params))
	for i, p := range params {
		a.m[i] = newTensor(p.shape...)
		a.v[i] = newTensor(p.shape...)
	}
	a.initialized = true
}

func (a *AdamOptimizer) step(params []*tensor, grads []*tensor) {
	if !a.initialized {
		a.init(params)
	}
	a.stepCount++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.stepCount))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.stepCount))

	for i, p := range params {
		g := grads[i]
		m := a.m[i]
		v := a.v[i]

		for j := range p.data {
			grad := g.data[j]
			if a.WeightDecay != 0 {
				grad += a.WeightDecay * p.data[j]
			}
			m.data[j] = a.Beta1*m.data[j] + (1-a.Beta1)*grad
			v.data[j] = a.Beta2*v.data[j] + (1-a.Beta2)*grad*grad

			mHat := m.data[j] / bc1
			vHat := v.data[j] / bc2

			p.data[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

func (a *AdamOptimizer) state() OptimizerState {
	return OptimizerState{
		Name: a.name(),
		Step: a.stepCount,
		Slots: map[string][][]float64{
			"exp_avg":    copyBuffers(a.m),
			"exp_avg_sq": copyBuffers(a.v),
		},
	}
}

func (a *AdamOptimizer) setState(st OptimizerState) error {
	if st.Name != a.name() {
		return errorf("optimizer state is for %q, not %q", st.Name, a.name())
	}
	a.stepCount = st.Step
	m, okM := st.Slots["exp_avg"]
	v, okV := st.Slots["exp_avg_sq"]
	if okM && okV && len(m) > 0 {
		a.m = buffersToTensors(m)
		a.v = buffersToTensors(v)
		a.initialized = true
	}
	return nil
}

func (a *AdamOptimizer) name() string { return "adam" }

func copyBuffers(ts []*tensor) [][]float64 {
	out := make([][]float64, len(ts))
	for i, t := range ts {
		if t == nil {
			continue
		}
		buf := make([]float64, len(t.data))
		copy(buf, t.data)
		out[i] = buf
	}
	return out
}

func buffersToTensors(bufs [][]float64) []*tensor {
	out := make([]*tensor, len(bufs))
	for i, buf := range bufs {
		t := newTensor(len(buf))
		copy(t.data, buf)
		out[i] = t
	}
	return out
}
