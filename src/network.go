package lwan

import (
	"errors"
	"math/rand/v2"
	"strconv"
)

// Network is the label-wise attention classifier: embedding lookup with
// dropout, a convolutional feature extractor, per-label attention pooling and
// a per-label classifier, chained as Layers with manual backprop.
type Network struct {
	embedding  *EmbeddingLayer
	dropout    *DropoutLayer
	encoder    Layer // feature extractor: per-position features from embeddings
	attention  *LabelAttentionLayer
	classifier *LabelClassifierLayer

	layers []Layer
	src    rand.Source
	built  bool
}

// NewNetwork constructs and builds the network. The embedding table is seeded
// from embedVecs (rows = vocabulary size, including the padding row at id 0).
func NewNetwork(config *Config, embedVecs *tensor, numClasses int) (*Network, error) {
	if embedVecs == nil || len(embedVecs.shape) != 2 {
		return nil, errorf("embedding vectors must be a [vocabSize, embedDim] matrix")
	}
	if numClasses <= 0 {
		return nil, errorf("numClasses must be > 0, got %d", numClasses)
	}

	vocabSize := embedVecs.shape[0]
	embedDim := embedVecs.shape[1]

	n := &Network{
		src: rand.NewPCG(uint64(config.Seed), uint64(config.Seed)+1),
	}

	n.embedding = Embedding(vocabSize, embedDim).
		WithPaddingIdx(0).
		WithPretrained(embedVecs).
		Build().(*EmbeddingLayer)
	n.dropout = Dropout(config.Dropout).Build().(*DropoutLayer)
	n.encoder = Conv1D(config.NumFilterMaps, config.FilterSize).
		WithActivation(Tanh()).
		WithInitializer(XavierUniform(1.0)).
		WithBiasInitializer(Zeros()).
		WithBias(true).
		Build()
	n.attention = LabelAttention(numClasses).
		WithInitializer(XavierUniform(1.0)).
		Build().(*LabelAttentionLayer)
	n.classifier = LabelClassifier(numClasses).
		WithInitializer(XavierUniform(1.0)).
		WithBiasInitializer(Zeros()).
		Build().(*LabelClassifierLayer)

	n.layers = []Layer{n.embedding, n.dropout, n.encoder, n.attention, n.classifier}

	// Sequence length varies per batch; the placeholder only drives the
	// static shape chain (embed width, filter maps, label count).
	currentShape := []int{1}
	for i, layer := range n.layers {
		if err := layer.build(currentShape, n.src); err != nil {
			return nil, errorf("layer %d (%s): %v", i, layer.name(), err)
		}
		if out := layer.outputShape(); out != nil {
			currentShape = out
		}
	}

	n.built = true
	return n, nil
}

// forward runs token ids [batch, seqLen] through the full chain and returns
// logits [batch, numClasses]. Attention weights from the pass are available
// via attentionWeights.
func (n *Network) forward(text *tensor, training bool) (*tensor, error) {
	if !n.built {
		return nil, errors.New("lwan: network not built")
	}
	output := text
	var err error
	for _, layer := range n.layers {
		output, err = layer.forward(output, training)
		if err != nil {
			return nil, err
		}
	}
	return output, nil
}

// backward propagates the loss gradient w.r.t. the logits through all layers,
// leaving fresh parameter gradients in place for the optimizer step.
func (n *Network) backward(gradLogits *tensor) error {
	grad := gradLogits
	var err error
	for i := len(n.layers) - 1; i >= 0; i-- {
		grad, err = n.layers[i].backward(grad)
		if err != nil {
			return err
		}
	}
	return nil
}

// attentionWeights returns [batch, numClasses, seqLen] from the last forward.
func (n *Network) attentionWeights() *tensor {
	return n.attention.attentionWeights()
}

func (n *Network) parameters() []*tensor {
	var params []*tensor
	for _, layer := range n.layers {
		params = append(params, layer.parameters()...)
	}
	return params
}

func (n *Network) gradients() []*tensor {
	var grads []*tensor
	for _, layer := range n.layers {
		grads = append(grads, layer.gradients()...)
	}
	return grads
}

// paramNames returns stable parameter names aligned with parameters().
func (n *Network) paramNames() []string {
	var names []string
	for _, layer := range n.layers {
		ps := layer.parameters()
		switch len(ps) {
		case 0:
		case 1:
			names = append(names, layer.name()+".weight")
		case 2:
			names = append(names, layer.name()+".weight", layer.name()+".bias")
		default:
			for i := range ps {
				names = append(names, layer.name()+".param"+strconv.Itoa(i))
			}
		}
	}
	return names
}

// stateDict snapshots every parameter by name.
func (n *Network) stateDict() map[string]TensorData {
	names := n.paramNames()
	params := n.parameters()
	state := make(map[string]TensorData, len(params))
	for i, p := range params {
		data := make([]float64, len(p.data))
		copy(data, p.data)
		shape := make([]int, len(p.shape))
		copy(shape, p.shape)
		state[names[i]] = TensorData{Shape: shape, Data: data}
	}
	return state
}

// loadStateDict copies checkpointed values into the live parameters.
func (n *Network) loadStateDict(state map[string]TensorData) error {
	names := n.paramNames()
	params := n.parameters()
	for i, p := range params {
		td, ok := state[names[i]]
		if !ok {
			return errorf("checkpoint is missing parameter %q", names[i])
		}
		if err := validateShape(p.shape, td.Shape); err != nil {
			return errorf("parameter %q: %v", names[i], err)
		}
		copy(p.data, td.Data)
	}
	return nil
}
