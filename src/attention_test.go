package lwan

import (
	"math"
	"math/rand/v2"
	"testing"
)

func randomTensor(rng *rand.Rand, shape ...int) *tensor {
	t := newTensor(shape...)
	for i := range t.data {
		t.data[i] = rng.NormFloat64()
	}
	return t
}

func buildLabelAttention(t *testing.T, numLabels, featDim int) *LabelAttentionLayer {
	t.Helper()
	layer := LabelAttention(numLabels).
		WithInitializer(XavierUniform(1.0)).
		Build().(*LabelAttentionLayer)
	if err := layer.build([]int{1, featDim}, rand.NewPCG(1, 2)); err != nil {
		t.Fatalf("build: %v", err)
	}
	return layer
}

func TestLabelAttentionDistributions(t *testing.T) {
	const (
		batch     = 4
		seqLen    = 20
		featDim   = 100
		numLabels = 5
	)
	layer := buildLabelAttention(t, numLabels, featDim)
	rng := rand.New(rand.NewPCG(3, 4))
	input := randomTensor(rng, batch, seqLen, featDim)

	out, err := layer.forward(input, true)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	wantShape := []int{batch, numLabels, featDim}
	if err := validateShape(wantShape, out.shape); err != nil {
		t.Fatalf("output shape = %v, want %v", out.shape, wantShape)
	}

	alpha := layer.attentionWeights()
	if err := validateShape([]int{batch, numLabels, seqLen}, alpha.shape); err != nil {
		t.Fatalf("alpha shape = %v", alpha.shape)
	}
	for b := 0; b < batch; b++ {
		for l := 0; l < numLabels; l++ {
			w := row(alpha.data, b*numLabels+l, seqLen)
			sum := 0.0
			for _, v := range w {
				if v < 0 {
					t.Fatalf("negative attention weight %g at batch %d label %d", v, b, l)
				}
				sum += v
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Fatalf("attention weights for batch %d label %d sum to %g, want 1", b, l, sum)
			}
		}
	}
}

// attentionLoss is a scalar probe for finite-difference checks:
// L = sum_i R_i * forward(input)_i for a fixed coefficient tensor R.
func attentionLoss(t *testing.T, layer *LabelAttentionLayer, input, coeff *tensor) float64 {
	t.Helper()
	out, err := layer.forward(input, true)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	sum := 0.0
	for i := range out.data {
		sum += coeff.data[i] * out.data[i]
	}
	return sum
}

func TestLabelAttentionGradients(t *testing.T) {
	const (
		batch     = 2
		seqLen    = 4
		featDim   = 5
		numLabels = 3
	)
	layer := buildLabelAttention(t, numLabels, featDim)
	rng := rand.New(rand.NewPCG(5, 6))
	input := randomTensor(rng, batch, seqLen, featDim)
	coeff := randomTensor(rng, batch, numLabels, featDim)

	attentionLoss(t, layer, input, coeff)
	gradInput, err := layer.backward(coeff)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	gradU := layer.gradients()[0].clone()

	const h = 1e-6
	check := func(name string, buf []float64, i int, analytic float64) {
		orig := buf[i]
		buf[i] = orig + h
		plus := attentionLoss(t, layer, input, coeff)
		buf[i] = orig - h
		minus := attentionLoss(t, layer, input, coeff)
		buf[i] = orig

		numeric := (plus - minus) / (2 * h)
		if math.Abs(numeric-analytic) > 1e-6+1e-4*math.Abs(analytic) {
			t.Errorf("%s[%d]: analytic %g, numeric %g", name, i, analytic, numeric)
		}
	}

	for i := 0; i < len(layer.u.data); i += 3 {
		check("dU", layer.u.data, i, gradU.data[i])
	}
	for i := 0; i < len(input.data); i += 5 {
		check("dInput", input.data, i, gradInput.data[i])
	}
}

func TestLabelClassifierForwardBackward(t *testing.T) {
	const (
		batch     = 2
		featDim   = 3
		numLabels = 2
	)
	layer := LabelClassifier(numLabels).
		WithInitializer(XavierUniform(1.0)).
		WithBiasInitializer(Zeros()).
		Build().(*LabelClassifierLayer)
	if err := layer.build([]int{numLabels, featDim}, rand.NewPCG(7, 8)); err != nil {
		t.Fatalf("build: %v", err)
	}

	copy(layer.weights.data, []float64{1, 0, -1, 0.5, 0.5, 0.5})
	copy(layer.bias.data, []float64{0.1, -0.2})

	input := newTensor(batch, numLabels, featDim)
	copy(input.data, []float64{
		1, 2, 3, 1, 2, 3, // sample 0, same m for both labels
		0, 0, 1, 2, 0, 0, // sample 1
	})

	out, err := layer.forward(input, true)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	want := []float64{
		1*1 + 0*2 - 1*3 + 0.1, 0.5*(1+2+3) - 0.2,
		-1 + 0.1, 0.5*2 - 0.2,
	}
	for i, w := range want {
		if math.Abs(out.data[i]-w) > 1e-12 {
			t.Fatalf("logit[%d] = %g, want %g", i, out.data[i], w)
		}
	}

	gradOut := newTensor(batch, numLabels)
	copy(gradOut.data, []float64{1, 0, 0, 2})
	gradIn, err := layer.backward(gradOut)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}

	// dW[0] = 1 * m(sample 0, label 0); dW[1] = 2 * m(sample 1, label 1)
	wantGW := []float64{1, 2, 3, 4, 0, 0}
	for i, w := range wantGW {
		if math.Abs(layer.gradW.data[i]-w) > 1e-12 {
			t.Fatalf("gradW[%d] = %g, want %g", i, layer.gradW.data[i], w)
		}
	}
	if layer.gradB.data[0] != 1 || layer.gradB.data[1] != 2 {
		t.Fatalf("gradB = %v, want [1 2]", layer.gradB.data)
	}

	// dm for sample 0 label 0 is 1*W[0]; label 1 saw zero gradient
	wantGI := []float64{1, 0, -1, 0, 0, 0}
	for i, w := range wantGI {
		if math.Abs(gradIn.data[i]-w) > 1e-12 {
			t.Fatalf("gradInput[%d] = %g, want %g", i, gradIn.data[i], w)
		}
	}
}
