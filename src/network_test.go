package lwan

import (
	"math"
	"testing"
)

func TestNetworkShapes(t *testing.T) {
	const (
		vocabSize  = 30
		embedDim   = 8
		numClasses = 5
		batch      = 3
		seqLen     = 7
	)
	config := testConfig(t)
	vocab := testVocabulary(t, vocabSize, embedDim)

	network, err := NewNetwork(config, vocab.Vectors(), numClasses)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}

	text := newTensor(batch, seqLen)
	for i := range text.data {
		text.data[i] = float64(1 + i%(vocabSize-1))
	}

	logits, err := network.forward(text, false)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := validateShape([]int{batch, numClasses}, logits.shape); err != nil {
		t.Fatalf("logits shape = %v", logits.shape)
	}

	alpha := network.attentionWeights()
	if err := validateShape([]int{batch, numClasses, seqLen}, alpha.shape); err != nil {
		t.Fatalf("alpha shape = %v", alpha.shape)
	}
}

func TestNetworkParameterNames(t *testing.T) {
	config := testConfig(t)
	vocab := testVocabulary(t, 16, 8)
	network, err := NewNetwork(config, vocab.Vectors(), 3)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}

	want := []string{
		"embedding.weight",
		"conv1d.weight",
		"conv1d.bias",
		"label_attention.weight",
		"label_classifier.weight",
		"label_classifier.bias",
	}
	got := network.paramNames()
	if len(got) != len(want) {
		t.Fatalf("paramNames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paramNames[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(network.parameters()) != len(want) || len(network.gradients()) != len(want) {
		t.Fatalf("parameters/gradients not aligned with names")
	}
}

// The attention context matrix and the classifier weight matrix share a shape
// but must stay independent parameters.
func TestAttentionAndClassifierAreIndependent(t *testing.T) {
	config := testConfig(t)
	vocab := testVocabulary(t, 16, 8)
	network, err := NewNetwork(config, vocab.Vectors(), 3)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}

	u := network.attention.u
	w := network.classifier.weights
	if u == w {
		t.Fatal("attention and classifier share a weight tensor")
	}
	if err := validateShape(u.shape, w.shape); err != nil {
		t.Fatalf("expected matching shapes: %v", err)
	}
	identical := true
	for i := range u.data {
		if u.data[i] != w.data[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Fatal("attention and classifier weights are initialized identically")
	}
}

func TestPaddingRowGetsNoGradient(t *testing.T) {
	config := testConfig(t)
	model := newTestModel(t, config)

	// Half of every sequence is padding.
	batch := &Batch{
		Text:  [][]int{{1, 2, 0, 0}, {3, 0, 0, 0}},
		Label: [][]float64{{1, 0, 0}, {0, 1, 0}},
	}
	if _, _, _, err := model.trainStep(batch); err != nil {
		t.Fatalf("trainStep: %v", err)
	}

	embedGrad := model.network.embedding.gradients()[0]
	dim := model.wordDict.Dim()
	for j, v := range row(embedGrad.data, 0, dim) {
		if v != 0 {
			t.Fatalf("padding row gradient[%d] = %g, want 0", j, v)
		}
	}
	// Accessed rows do accumulate gradient.
	total := 0.0
	for _, v := range row(embedGrad.data, 1, dim) {
		total += math.Abs(v)
	}
	if total == 0 {
		t.Fatal("token row 1 received no gradient")
	}
}

func TestPredictScoresAreProbabilities(t *testing.T) {
	config := testConfig(t)
	model := newTestModel(t, config)

	result, err := model.Predict(BatchOf(testDataset(), len(model.classes)))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(result.Scores) != len(testDataset()) {
		t.Fatalf("got %d score rows, want %d", len(result.Scores), len(testDataset()))
	}
	for i, scores := range result.Scores {
		for c, s := range scores {
			if s < 0 || s > 1 {
				t.Fatalf("score[%d][%d] = %g outside [0, 1]", i, c, s)
			}
			want := sigmoid(result.Logits[i][c])
			if math.Abs(s-want) > 1e-12 {
				t.Fatalf("score[%d][%d] = %g, want sigmoid(logit) = %g", i, c, s, want)
			}
		}
	}
}
