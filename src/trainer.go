package lwan

import (
	"context"
	"log/slog"
	"sort"
)

// Reporter receives progress from the training loop. It is injected so the
// core loop stays decoupled from any particular output sink.
type Reporter interface {
	Info(msg string, args ...any)
	Metrics(split string, epoch int, values map[string]float64)
}

// NewSlogReporter adapts a slog.Logger to the Reporter interface.
// A nil logger uses the process default.
func NewSlogReporter(log *slog.Logger) Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &slogReporter{log: log}
}

type slogReporter struct {
	log *slog.Logger
}

func (r *slogReporter) Info(msg string, args ...any) {
	r.log.Info(msg, args...)
}

func (r *slogReporter) Metrics(split string, epoch int, values map[string]float64) {
	args := []any{"split", split, "epoch", epoch}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, values[k])
	}
	r.log.Info("metrics", args...)
}

// gradClipValue bounds every gradient entry before the optimizer step. It
// caps per-value magnitude only; it does not guarantee a finite loss.
const gradClipValue = 0.5

// Model owns the network, optimizer, vocabulary and label set, and drives
// the training lifecycle: epochs, evaluation, early stopping, checkpoints.
type Model struct {
	config    *Config
	network   *Network
	optimizer Optimizer
	wordDict  *Vocabulary
	classes   []string
	loss      Loss
	evaluator Evaluator
	reporter  Reporter

	bestMetric float64
	startEpoch int
}

// NewModel constructs a fresh model. The vocabulary's vectors are resolved
// from the configured embedding source if they are not already set; an
// unresolvable source is fatal.
func NewModel(config *Config, wordDict *Vocabulary, classes []string) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, errorf("label set is empty")
	}

	if wordDict.Vectors() == nil {
		if err := ResolveEmbeddings(config, wordDict); err != nil {
			return nil, err
		}
	}

	network, err := NewNetwork(config, wordDict.Vectors(), len(classes))
	if err != nil {
		return nil, err
	}
	optimizer, err := NewOptimizer(config)
	if err != nil {
		return nil, err
	}

	return &Model{
		config:    config,
		network:   network,
		optimizer: optimizer,
		wordDict:  wordDict,
		classes:   append([]string(nil), classes...),
		loss:      BCEWithLogits(BCEWithLogitsConfig{Reduction: "mean"}),
		evaluator: &MetricEvaluator{NumClasses: len(classes)},
		reporter:  NewSlogReporter(nil),
	}, nil
}

// Load reconstructs a fully resumable model from a checkpoint file.
func Load(config *Config, path string) (*Model, error) {
	ckpt, err := readCheckpoint(path)
	if err != nil {
		return nil, err
	}

	config.RunName = ckpt.RunName
	if err := config.Validate(); err != nil {
		return nil, err
	}

	wordDict, err := vocabularyFromSnapshot(ckpt.WordDict)
	if err != nil {
		return nil, err
	}
	if wordDict.Vectors() == nil {
		return nil, errorf("%w: checkpoint carries no embedding vectors", ErrBadCheckpoint)
	}

	network, err := NewNetwork(config, wordDict.Vectors(), len(ckpt.Classes))
	if err != nil {
		return nil, err
	}
	if err := network.loadStateDict(ckpt.StateDict); err != nil {
		return nil, err
	}
	optimizer, err := NewOptimizer(config)
	if err != nil {
		return nil, err
	}
	if err := optimizer.setState(ckpt.Optimizer); err != nil {
		return nil, err
	}

	return &Model{
		config:     config,
		network:    network,
		optimizer:  optimizer,
		wordDict:   wordDict,
		classes:    append([]string(nil), ckpt.Classes...),
		loss:       BCEWithLogits(BCEWithLogitsConfig{Reduction: "mean"}),
		evaluator:  &MetricEvaluator{NumClasses: len(ckpt.Classes)},
		reporter:   NewSlogReporter(nil),
		bestMetric: ckpt.BestMetric,
		startEpoch: ckpt.Epoch,
	}, nil
}

// SetReporter replaces the injected progress observer.
func (m *Model) SetReporter(r Reporter) {
	if r != nil {
		m.reporter = r
	}
}

// SetEvaluator replaces the evaluation collaborator.
func (m *Model) SetEvaluator(e Evaluator) {
	if e != nil {
		m.evaluator = e
	}
}

// Classes returns the ordered label set.
func (m *Model) Classes() []string {
	return append([]string(nil), m.classes...)
}

// BestMetric returns the best validation metric observed so far.
func (m *Model) BestMetric() float64 { return m.bestMetric }

// Train runs the full lifecycle over the training set, evaluating on the dev
// set each epoch. Cancelling the context is a graceful-stop request observed
// between batches; the last completed epoch's checkpoint stays intact and no
// partial epoch is persisted.
func (m *Model) Train(ctx context.Context, trainData, devData Dataset) error {
	trainLoader := NewDataLoader(m.config, trainData, len(m.classes), true)
	devLoader := NewDataLoader(m.config, devData, len(m.classes), false)
	return m.train(ctx, trainLoader, devLoader)
}

func (m *Model) train(ctx context.Context, trainLoader, devLoader DataLoader) error {
	m.reporter.Info("start training", "run", m.config.RunName, "epochs", m.config.Epochs)

	patience := m.config.Patience
	for epoch := m.startEpoch + 1; epoch <= m.config.Epochs; epoch++ {
		if patience == 0 {
			m.reporter.Info("training patience reached, stopping")
			break
		}

		m.reporter.Info("starting epoch", "epoch", epoch)
		interrupted, err := m.trainEpoch(ctx, trainLoader, epoch)
		if err != nil {
			return err
		}
		if interrupted {
			m.reporter.Info("training terminated")
			return nil
		}

		devMetrics, err := m.evaluator.Evaluate(ctx, m, devLoader)
		if err != nil {
			if ctx.Err() != nil {
				m.reporter.Info("training terminated")
				return nil
			}
			return err
		}
		if len(devMetrics) == 0 {
			return errorf("evaluator returned no metrics")
		}
		metric, ok := devMetrics[0][m.config.ValMetric]
		if !ok {
			return errorf("val_metric %q not reported by evaluator", m.config.ValMetric)
		}
		m.reporter.Metrics("val", epoch, devMetrics[0])
		if err := DumpLog(m.config, devMetrics[0], "val"); err != nil {
			return err
		}

		// Ties count as improvement: a tying epoch resets patience and
		// overwrites the best checkpoint.
		if metric >= m.bestMetric {
			m.bestMetric = metric
			if err := m.Save(epoch, true); err != nil {
				return err
			}
			patience = m.config.Patience
		} else {
			patience--
			m.reporter.Info("no improvement", "patience_left", patience)
			if err := m.Save(epoch, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// trainEpoch iterates the training loader once. It reports interrupted=true
// when the context is cancelled between batches; the in-flight epoch's
// updates are kept in memory but never checkpointed.
func (m *Model) trainEpoch(ctx context.Context, loader DataLoader, epoch int) (bool, error) {
	var trainLoss AverageMeter
	metric := NewMultiLabelMetric(len(m.classes))
	timer := NewTimer()

	loader.Reset()
	for {
		if ctx.Err() != nil {
			return true, nil
		}
		batch, ok := loader.Next()
		if !ok {
			break
		}
		loss, scores, label, err := m.trainStep(batch)
		if err != nil {
			// Deliberately propagated: silently skipping a bad batch is
			// not acceptable.
			return false, err
		}
		trainLoss.Update(loss)
		metric.addBatchTensors(label, scores)
	}

	values := metric.Metrics()
	values["loss"] = trainLoss.Avg()
	m.reporter.Metrics("train", epoch, values)
	m.reporter.Info("epoch done", "epoch", epoch, "loss", trainLoss.Avg(), "elapsed", timer.Elapsed())
	if err := DumpLog(m.config, values, "train"); err != nil {
		return false, err
	}
	return false, nil
}

// trainStep runs one blocking forward/backward/step unit for a batch.
func (m *Model) trainStep(batch *Batch) (float64, *tensor, *tensor, error) {
	text, label := batch.tensorize()

	logits, err := m.network.forward(text, true)
	if err != nil {
		return 0, nil, nil, err
	}
	lossVal := m.loss.compute(logits, label)

	gradLogits := newTensor(logits.shape...)
	m.loss.gradient(logits, label, gradLogits)
	if err := m.network.backward(gradLogits); err != nil {
		return 0, nil, nil, err
	}

	for _, g := range m.network.gradients() {
		clipValues(g.data, -gradClipValue, gradClipValue)
	}
	m.optimizer.step(m.network.parameters(), m.network.gradients())

	scores := newTensor(logits.shape...)
	for i, v := range logits.data {
		scores.data[i] = sigmoid(v)
	}
	return lossVal, scores, label, nil
}

// Predict scores one batch in inference mode: no gradients, dropout off.
func (m *Model) Predict(batch *Batch) (*PredictResult, error) {
	text, _ := batch.tensorize()
	logits, err := m.network.forward(text, false)
	if err != nil {
		return nil, err
	}
	scores := newTensor(logits.shape...)
	for i, v := range logits.data {
		scores.data[i] = sigmoid(v)
	}
	return &PredictResult{
		Logits: tensorRows(logits),
		Scores: tensorRows(scores),
	}, nil
}

// AttentionWeights returns [batch][label][position] attention from the most
// recent forward pass, for inspection and explainability.
func (m *Model) AttentionWeights() [][][]float64 {
	alpha := m.network.attentionWeights()
	if alpha == nil {
		return nil
	}
	batch, labels, seqLen := alpha.shape[0], alpha.shape[1], alpha.shape[2]
	out := make([][][]float64, batch)
	for b := 0; b < batch; b++ {
		out[b] = make([][]float64, labels)
		for l := 0; l < labels; l++ {
			w := make([]float64, seqLen)
			copy(w, row(alpha.data, b*labels+l, seqLen))
			out[b][l] = w
		}
	}
	return out
}

// Save persists the "last" checkpoint for the epoch; on improvement the same
// bytes are duplicated to the "best" slot.
func (m *Model) Save(epoch int, isBest bool) error {
	ckpt := &Checkpoint{
		Version:    checkpointVersion,
		Epoch:      epoch,
		RunName:    m.config.RunName,
		StateDict:  m.network.stateDict(),
		WordDict:   m.wordDict.snapshot(),
		Classes:    append([]string(nil), m.classes...),
		Optimizer:  m.optimizer.state(),
		BestMetric: m.bestMetric,
	}

	lastPath := checkpointPath(m.config, "last")
	m.reporter.Info("saving checkpoint", "path", lastPath)
	if err := writeCheckpoint(lastPath, ckpt); err != nil {
		return err
	}
	if isBest {
		bestPath := checkpointPath(m.config, "best")
		m.reporter.Info("saving best checkpoint",
			"metric", m.config.ValMetric, "value", m.bestMetric, "path", bestPath)
		if err := copyCheckpoint(lastPath, bestPath); err != nil {
			return err
		}
	}
	return nil
}

// LoadBest swaps only the live network's weights with those at the "best"
// path, leaving optimizer and epoch state of this instance untouched.
func (m *Model) LoadBest() error {
	ckpt, err := readCheckpoint(checkpointPath(m.config, "best"))
	if err != nil {
		return err
	}
	return m.network.loadStateDict(ckpt.StateDict)
}
