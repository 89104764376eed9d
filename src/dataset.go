package lwan

import "math/rand/v2"

// Sample is one tokenized document paired with its label indices.
type Sample struct {
	Tokens   []int
	LabelIDs []int
}

// Dataset is an ordered collection of samples.
type Dataset []Sample

// Batch pairs a token-id block with a multi-hot label block.
// Text rows are right-padded with the padding id 0 to the longest sequence in
// the batch; Label rows have length = label-set size.
type Batch struct {
	Text  [][]int
	Label [][]float64
}

// BatchOf assembles a single batch directly from samples, mainly for ad-hoc
// inference outside a DataLoader.
func BatchOf(samples []Sample, numClasses int) *Batch {
	maxLen := 1
	for _, s := range samples {
		if len(s.Tokens) > maxLen {
			maxLen = len(s.Tokens)
		}
	}
	batch := &Batch{
		Text:  make([][]int, len(samples)),
		Label: make([][]float64, len(samples)),
	}
	for i, s := range samples {
		text := make([]int, maxLen)
		copy(text, s.Tokens)
		batch.Text[i] = text

		label := make([]float64, numClasses)
		for _, c := range s.LabelIDs {
			if c >= 0 && c < numClasses {
				label[c] = 1
			}
		}
		batch.Label[i] = label
	}
	return batch
}

// DataLoader yields batches for one pass over a dataset.
type DataLoader interface {
	Reset()
	Next() (*Batch, bool)
	Len() int // number of batches per pass
}

// NewDataLoader builds an in-memory loader. Training loaders reshuffle the
// sample order on every Reset.
func NewDataLoader(config *Config, dataset Dataset, numClasses int, train bool) DataLoader {
	l := &memoryLoader{
		dataset:    dataset,
		numClasses: numClasses,
		batchSize:  config.BatchSize,
		shuffle:    train,
		rng:        rand.New(rand.NewPCG(uint64(config.Seed), uint64(config.Seed)+2)),
		order:      make([]int, len(dataset)),
	}
	l.Reset()
	return l
}

type memoryLoader struct {
	dataset    Dataset
	numClasses int
	batchSize  int
	shuffle    bool
	rng        *rand.Rand
	order      []int
	cursor     int
}

func (l *memoryLoader) Reset() {
	for i := range l.order {
		l.order[i] = i
	}
	if l.shuffle {
		shuffleIndex(l.order, l.rng)
	}
	l.cursor = 0
}

func (l *memoryLoader) Len() int {
	return (len(l.dataset) + l.batchSize - 1) / l.batchSize
}

func (l *memoryLoader) Next() (*Batch, bool) {
	if l.cursor >= len(l.dataset) {
		return nil, false
	}
	end := l.cursor + l.batchSize
	if end > len(l.dataset) {
		end = len(l.dataset)
	}
	idx := l.order[l.cursor:end]
	l.cursor = end

	maxLen := 1
	for _, i := range idx {
		if n := len(l.dataset[i].Tokens); n > maxLen {
			maxLen = n
		}
	}

	batch := &Batch{
		Text:  make([][]int, len(idx)),
		Label: make([][]float64, len(idx)),
	}
	for bi, i := range idx {
		s := l.dataset[i]
		text := make([]int, maxLen) // zero-valued tail is the padding id
		copy(text, s.Tokens)
		batch.Text[bi] = text

		label := make([]float64, l.numClasses)
		for _, c := range s.LabelIDs {
			if c >= 0 && c < l.numClasses {
				label[c] = 1
			}
		}
		batch.Label[bi] = label
	}
	return batch, true
}

// tensorize converts a batch to the internal compute representation. This is
// the single blocking "device transfer" point issued right before use.
func (b *Batch) tensorize() (text, label *tensor) {
	batchSize := len(b.Text)
	seqLen := len(b.Text[0])
	numClasses := len(b.Label[0])

	text = newTensor(batchSize, seqLen)
	label = newTensor(batchSize, numClasses)
	for i := range b.Text {
		for t, id := range b.Text[i] {
			text.data[i*seqLen+t] = float64(id)
		}
		copy(row(label.data, i, numClasses), b.Label[i])
	}
	return text, label
}
