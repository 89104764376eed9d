package lwan

import (
	"errors"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// LABEL-WISE ATTENTION
// One learned context vector per label. Each label gets its own probability
// distribution over sequence positions and its own pooled document vector, so
// a single document yields numLabels attended summaries.
// =============================================================================

type LabelAttentionLayer struct {
	numLabels   int
	featDim     int
	initializer Initializer

	u     *tensor // [numLabels, featDim] context vectors
	gradU *tensor

	input *tensor // cached [batch, T, featDim]
	alpha *tensor // last attention weights [batch, numLabels, T]
	built bool
}

type LabelAttentionBuilder struct {
	layer *LabelAttentionLayer
}

// LabelAttention creates the per-label attention pooling layer.
// Input: per-position features [batch, T, featDim]
// Output: per-label document vectors [batch, numLabels, featDim]
func LabelAttention(numLabels int) *LabelAttentionBuilder {
	return &LabelAttentionBuilder{
		layer: &LabelAttentionLayer{
			numLabels: numLabels,
		},
	}
}

func (b *LabelAttentionBuilder) WithInitializer(init Initializer) *LabelAttentionBuilder {
	b.layer.initializer = init
	return b
}

func (b *LabelAttentionBuilder) Build() Layer {
	return b.layer
}

func (a *LabelAttentionLayer) build(inputShape []int, src rand.Source) error {
	if len(inputShape) != 2 {
		return errors.New("lwan: LabelAttention requires input shape [T, F]")
	}
	if a.initializer == nil {
		return errors.New("lwan: LabelAttention requires initializer")
	}
	a.featDim = inputShape[1]

	a.u = newTensor(a.numLabels, a.featDim)
	a.initializer.initialize(a.u, a.featDim, a.numLabels, src)
	a.gradU = newTensor(a.numLabels, a.featDim)

	a.built = true
	return nil
}

func (a *LabelAttentionLayer) forward(input *tensor, training bool) (*tensor, error) {
	if !a.built {
		return nil, errors.New("lwan: LabelAttention layer not built")
	}

	batchSize := input.shape[0]
	seqLen := input.shape[1]
	featDim := input.shape[2]
	if featDim != a.featDim {
		return nil, errors.New("lwan: LabelAttention feature dimension mismatch")
	}

	a.input = input
	a.alpha = newTensor(batchSize, a.numLabels, seqLen)
	output := newTensor(batchSize, a.numLabels, featDim)

	uMat := mat.NewDense(a.numLabels, a.featDim, a.u.data)
	for b := 0; b < batchSize; b++ {
		x := mat.NewDense(seqLen, featDim, input.data[b*seqLen*featDim:(b+1)*seqLen*featDim])
		scores := mat.NewDense(a.numLabels, seqLen, a.alpha.data[b*a.numLabels*seqLen:(b+1)*a.numLabels*seqLen])

		// score[l, t] = U[l] . x[t], one matrix multiply per document
		scores.Mul(uMat, x.T())

		// Softmax over the sequence axis, independently per label
		for l := 0; l < a.numLabels; l++ {
			softmaxRow(row(scores.RawMatrix().Data, l, seqLen))
		}

		// m[l] = sum_t alpha[l, t] * x[t]
		m := mat.NewDense(a.numLabels, featDim, output.data[b*a.numLabels*featDim:(b+1)*a.numLabels*featDim])
		m.Mul(scores, x)
	}

	return output, nil
}

func (a *LabelAttentionLayer) backward(gradOutput *tensor) (*tensor, error) {
	batchSize := gradOutput.shape[0]
	seqLen := a.input.shape[1]
	featDim := a.featDim

	a.gradU.fill(0)
	gradInput := newTensor(batchSize, seqLen, featDim)

	uMat := mat.NewDense(a.numLabels, featDim, a.u.data)
	gradUMat := mat.NewDense(a.numLabels, featDim, a.gradU.data)

	dAlpha := mat.NewDense(a.numLabels, seqLen, nil)
	dScore := mat.NewDense(a.numLabels, seqLen, nil)
	tmpLF := mat.NewDense(a.numLabels, featDim, nil)
	tmpTF := mat.NewDense(seqLen, featDim, nil)

	for b := 0; b < batchSize; b++ {
		x := mat.NewDense(seqLen, featDim, a.input.data[b*seqLen*featDim:(b+1)*seqLen*featDim])
		alpha := mat.NewDense(a.numLabels, seqLen, a.alpha.data[b*a.numLabels*seqLen:(b+1)*a.numLabels*seqLen])
		dM := mat.NewDense(a.numLabels, featDim, gradOutput.data[b*a.numLabels*featDim:(b+1)*a.numLabels*featDim])
		gIn := mat.NewDense(seqLen, featDim, gradInput.data[b*seqLen*featDim:(b+1)*seqLen*featDim])

		// Pooling path: dx += alpha^T . dM, dalpha = dM . x^T
		tmpTF.Mul(alpha.T(), dM)
		gIn.Add(gIn, tmpTF)
		dAlpha.Mul(dM, x.T())

		// Softmax backward per label: ds = alpha * (dalpha - <dalpha, alpha>)
		for l := 0; l < a.numLabels; l++ {
			al := row(alpha.RawMatrix().Data, l, seqLen)
			da := row(dAlpha.RawMatrix().Data, l, seqLen)
			ds := row(dScore.RawMatrix().Data, l, seqLen)
			dot := floats.Dot(da, al)
			for t := 0; t < seqLen; t++ {
				ds[t] = al[t] * (da[t] - dot)
			}
		}

		// Score path: dU += ds . x, dx += ds^T . U
		tmpLF.Mul(dScore, x)
		gradUMat.Add(gradUMat, tmpLF)
		tmpTF.Mul(dScore.T(), uMat)
		gIn.Add(gIn, tmpTF)
	}

	return gradInput, nil
}

func (a *LabelAttentionLayer) parameters() []*tensor {
	return []*tensor{a.u}
}

func (a *LabelAttentionLayer) gradients() []*tensor {
	return []*tensor{a.gradU}
}

func (a *LabelAttentionLayer) outputShape() []int {
	return []int{a.numLabels, a.featDim}
}

func (a *LabelAttentionLayer) name() string { return "label_attention" }

// attentionWeights returns the weights computed by the last forward pass.
func (a *LabelAttentionLayer) attentionWeights() *tensor {
	return a.alpha
}

// =============================================================================
// PER-LABEL CLASSIFIER
// Each label has its own weight vector and bias: logit[l] = W[l] . m[l] + b[l].
// W has the same shape as the attention context matrix U but is an independent
// parameter set; collapsing the two would change model capacity.
// =============================================================================

type LabelClassifierLayer struct {
	numLabels   int
	featDim     int
	initializer Initializer
	biasInit    Initializer

	weights *tensor // [numLabels, featDim]
	bias    *tensor // [numLabels]
	gradW   *tensor
	gradB   *tensor

	input *tensor // cached [batch, numLabels, featDim]
	built bool
}

type LabelClassifierBuilder struct {
	layer *LabelClassifierLayer
}

// LabelClassifier creates the per-label scoring layer.
// Input: per-label document vectors [batch, numLabels, featDim]
// Output: logits [batch, numLabels]
func LabelClassifier(numLabels int) *LabelClassifierBuilder {
	return &LabelClassifierBuilder{
		layer: &LabelClassifierLayer{
			numLabels: numLabels,
		},
	}
}

func (b *LabelClassifierBuilder) WithInitializer(init Initializer) *LabelClassifierBuilder {
	b.layer.initializer = init
	return b
}

func (b *LabelClassifierBuilder) WithBiasInitializer(init Initializer) *LabelClassifierBuilder {
	b.layer.biasInit = init
	return b
}

func (b *LabelClassifierBuilder) Build() Layer {
	return b.layer
}

func (c *LabelClassifierLayer) build(inputShape []int, src rand.Source) error {
	if len(inputShape) != 2 || inputShape[0] != c.numLabels {
		return errors.New("lwan: LabelClassifier requires input shape [numLabels, F]")
	}
	if c.initializer == nil {
		return errors.New("lwan: LabelClassifier requires initializer")
	}
	if c.biasInit == nil {
		return errors.New("lwan: LabelClassifier requires bias initializer")
	}
	c.featDim = inputShape[1]

	c.weights = newTensor(c.numLabels, c.featDim)
	c.initializer.initialize(c.weights, c.featDim, c.numLabels, src)
	c.bias = newTensor(c.numLabels)
	c.biasInit.initialize(c.bias, c.featDim, c.numLabels, src)

	c.gradW = newTensor(c.numLabels, c.featDim)
	c.gradB = newTensor(c.numLabels)

	c.built = true
	return nil
}

func (c *LabelClassifierLayer) forward(input *tensor, training bool) (*tensor, error) {
	if !c.built {
		return nil, errors.New("lwan: LabelClassifier layer not built")
	}

	batchSize := input.shape[0]
	c.input = input
	output := newTensor(batchSize, c.numLabels)

	for b := 0; b < batchSize; b++ {
		for l := 0; l < c.numLabels; l++ {
			m := row(input.data, b*c.numLabels+l, c.featDim)
			w := row(c.weights.data, l, c.featDim)
			output.data[b*c.numLabels+l] = floats.Dot(w, m) + c.bias.data[l]
		}
	}

	return output, nil
}

func (c *LabelClassifierLayer) backward(gradOutput *tensor) (*tensor, error) {
	batchSize := gradOutput.shape[0]

	c.gradW.fill(0)
	c.gradB.fill(0)
	gradInput := newTensor(batchSize, c.numLabels, c.featDim)

	for b := 0; b < batchSize; b++ {
		for l := 0; l < c.numLabels; l++ {
			g := gradOutput.data[b*c.numLabels+l]
			if g == 0 {
				continue
			}
			m := row(c.input.data, b*c.numLabels+l, c.featDim)
			w := row(c.weights.data, l, c.featDim)
			gw := row(c.gradW.data, l, c.featDim)
			gi := row(gradInput.data, b*c.numLabels+l, c.featDim)

			floats.AddScaled(gw, g, m)
			floats.AddScaledTo(gi, gi, g, w)
			c.gradB.data[l] += g
		}
	}

	return gradInput, nil
}

func (c *LabelClassifierLayer) parameters() []*tensor {
	return []*tensor{c.weights, c.bias}
}

func (c *LabelClassifierLayer) gradients() []*tensor {
	return []*tensor{c.gradW, c.gradB}
}

func (c *LabelClassifierLayer) outputShape() []int {
	return []int{c.numLabels}
}

func (c *LabelClassifierLayer) name() string { return "label_classifier" }
