package lwan

import (
	"errors"
	"math"
	"testing"
)

func TestNewOptimizerRejectsUnknownName(t *testing.T) {
	config := DefaultConfig()
	config.Optimizer = "lbfgs"
	if _, err := NewOptimizer(config); !errors.Is(err, ErrUnsupportedOptimizer) {
		t.Fatalf("error = %v, want ErrUnsupportedOptimizer", err)
	}
}

func TestSGDStep(t *testing.T) {
	opt := SGD(SGDConfig{LR: 0.1})

	p := newTensor(3)
	copy(p.data, []float64{1, 2, 3})
	g := newTensor(3)
	copy(g.data, []float64{1, -1, 0.5})

	opt.step([]*tensor{p}, []*tensor{g})

	want := []float64{1 - 0.1, 2 + 0.1, 3 - 0.05}
	for i, w := range want {
		if math.Abs(p.data[i]-w) > 1e-12 {
			t.Fatalf("p[%d] = %g, want %g", i, p.data[i], w)
		}
	}
}

func TestSGDMomentumAccumulates(t *testing.T) {
	opt := SGD(SGDConfig{LR: 0.1, Momentum: 0.9})

	p := newTensor(1)
	g := newTensor(1)
	g.data[0] = 1

	opt.step([]*tensor{p}, []*tensor{g}) // v=1, p=-0.1
	opt.step([]*tensor{p}, []*tensor{g}) // v=1.9, p=-0.29

	if math.Abs(p.data[0]+0.29) > 1e-12 {
		t.Fatalf("p = %g, want -0.29", p.data[0])
	}
}

func TestAdamFirstStepMagnitude(t *testing.T) {
	const lr = 0.001
	opt := Adam(AdamConfig{LR: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8})

	p := newTensor(2)
	g := newTensor(2)
	g.data[0] = 3
	g.data[1] = -0.5

	opt.step([]*tensor{p}, []*tensor{g})

	// With bias correction the first update is lr * sign(grad) up to epsilon.
	if math.Abs(p.data[0]+lr) > 1e-6 {
		t.Fatalf("p[0] = %g, want about %g", p.data[0], -lr)
	}
	if math.Abs(p.data[1]-lr) > 1e-6 {
		t.Fatalf("p[1] = %g, want about %g", p.data[1], lr)
	}
}

func TestOptimizerStateRoundTrip(t *testing.T) {
	p := newTensor(4)
	g := newTensor(4)
	copy(g.data, []float64{1, 2, -1, 0.5})

	a := Adam(AdamConfig{LR: 0.01, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8})
	a.step([]*tensor{p}, []*tensor{g})
	a.step([]*tensor{p}, []*tensor{g})

	b := Adam(AdamConfig{LR: 0.01, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8})
	if err := b.setState(a.state()); err != nil {
		t.Fatalf("setState: %v", err)
	}

	// Identical parameters and state must produce identical next steps.
	pa, pb := p.clone(), p.clone()
	a.step([]*tensor{pa}, []*tensor{g})
	b.step([]*tensor{pb}, []*tensor{g})
	for i := range pa.data {
		if pa.data[i] != pb.data[i] {
			t.Fatalf("restored optimizer diverged at %d: %g vs %g", i, pa.data[i], pb.data[i])
		}
	}
}

func TestSetStateRejectsWrongOptimizer(t *testing.T) {
	sgd := SGD(SGDConfig{LR: 0.1})
	if err := sgd.setState(OptimizerState{Name: "adam"}); err == nil {
		t.Fatal("SGD accepted Adam state")
	}
}
