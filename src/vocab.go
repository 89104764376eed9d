package lwan

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// PadToken occupies id 0 in every vocabulary. Its embedding row is trainable
// but receives no gradient, so it stays near zero.
const PadToken = "<pad>"

// Vocabulary is an ordered token-to-id mapping paired one-to-one with an
// embedding matrix. It is created once before training, immutable during
// training, and persisted verbatim in checkpoints.
type Vocabulary struct {
	tokens  []string
	index   map[string]int
	vectors *tensor // [len(tokens), dim], nil until vectors are set
}

// NewVocabulary builds a vocabulary from an ordered token list. The padding
// token is always installed at id 0; duplicates keep their first position.
func NewVocabulary(tokens []string) *Vocabulary {
	v := &Vocabulary{
		index: make(map[string]int, len(tokens)+1),
	}
	v.add(PadToken)
	for _, tok := range tokens {
		v.add(tok)
	}
	return v
}

func (v *Vocabulary) add(token string) {
	if _, ok := v.index[token]; ok {
		return
	}
	v.index[token] = len(v.tokens)
	v.tokens = append(v.tokens, token)
}

func (v *Vocabulary) Size() int { return len(v.tokens) }

// ID returns the id for a token and whether the token is known.
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.index[token]
	return id, ok
}

func (v *Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return ""
	}
	return v.tokens[id]
}

// Dim returns the embedding width, 0 if no vectors have been set.
func (v *Vocabulary) Dim() int {
	if v.vectors == nil {
		return 0
	}
	return v.vectors.shape[1]
}

// SetVectors installs an embedding matrix with one row per token.
func (v *Vocabulary) SetVectors(vecs *tensor) error {
	if len(vecs.shape) != 2 || vecs.shape[0] != len(v.tokens) {
		return errorf("embedding matrix must have %d rows", len(v.tokens))
	}
	v.vectors = vecs
	return nil
}

// Vectors returns the embedding matrix backing this vocabulary.
func (v *Vocabulary) Vectors() *tensor { return v.vectors }

// SetVectorRows installs an embedding matrix given as one row per token, for
// callers that build vectors themselves instead of loading a file.
func (v *Vocabulary) SetVectorRows(rows [][]float64) error {
	if len(rows) != len(v.tokens) {
		return errorf("embedding matrix must have %d rows, got %d", len(v.tokens), len(rows))
	}
	if len(rows[0]) == 0 {
		return errorf("embedding rows are empty")
	}
	dim := len(rows[0])
	vecs := newTensor(len(rows), dim)
	for i, r := range rows {
		if len(r) != dim {
			return errorf("embedding row %d has width %d, want %d", i, len(r), dim)
		}
		copy(row(vecs.data, i, dim), r)
	}
	v.vectors = vecs
	return nil
}

// LoadEmbeddings populates the vocabulary's vectors from a word2vec-style
// text file: an optional "count dim" header line, then one token per line
// followed by its values. Tokens are NFC-normalized before lookup. Rows for
// vocabulary entries absent from the file stay zero; the padding row always
// stays zero. The embedding width comes from the file and must be consistent.
func (v *Vocabulary) LoadEmbeddings(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errorf("open embeddings: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	dim := 0
	var vecs *tensor
	first := true
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if first {
			first = false
			// Header line: "<count> <dim>"
			if len(fields) == 2 {
				if d, err := strconv.Atoi(fields[1]); err == nil {
					dim = d
					continue
				}
			}
		}
		if dim == 0 {
			dim = len(fields) - 1
			if dim <= 0 {
				return errorf("%w: embedding dimension undefined in %s", ErrEmbedSource, path)
			}
		}
		if len(fields)-1 != dim {
			return errorf("inconsistent embedding width in %s: got %d, want %d", path, len(fields)-1, dim)
		}
		if vecs == nil {
			vecs = newTensor(len(v.tokens), dim)
		}

		token := norm.NFC.String(fields[0])
		id, ok := v.index[token]
		if !ok || id == 0 {
			continue
		}
		dst := row(vecs.data, id, dim)
		for i, field := range fields[1:] {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return errorf("bad embedding value for %q: %w", token, err)
			}
			dst[i] = val
		}
	}
	if err := scanner.Err(); err != nil {
		return errorf("read embeddings: %w", err)
	}
	if vecs == nil {
		return errorf("%w: %s holds no vectors", ErrEmbedSource, path)
	}
	v.vectors = vecs
	return nil
}

// ResolveEmbeddings loads pretrained vectors per the configured source.
// Only file paths are resolvable; named pretrained-vector sources are not
// implemented, and an unresolvable source is fatal.
func ResolveEmbeddings(config *Config, vocab *Vocabulary) error {
	if config.EmbedFile == "" {
		return errorf("%w: embed_file is empty", ErrEmbedSource)
	}
	if _, err := os.Stat(config.EmbedFile); err == nil {
		return vocab.LoadEmbeddings(config.EmbedFile)
	}
	return errorf("%w: %q is neither a readable file nor a known source", ErrEmbedSource, config.EmbedFile)
}

// VocabularyData is the serializable form stored inside checkpoints.
type VocabularyData struct {
	Tokens  []string
	Dim     int
	Vectors []float64
}

func (v *Vocabulary) snapshot() VocabularyData {
	data := VocabularyData{Tokens: append([]string(nil), v.tokens...)}
	if v.vectors != nil {
		data.Dim = v.vectors.shape[1]
		data.Vectors = append([]float64(nil), v.vectors.data...)
	}
	return data
}

func vocabularyFromSnapshot(data VocabularyData) (*Vocabulary, error) {
	if len(data.Tokens) == 0 || data.Tokens[0] != PadToken {
		return nil, errorf("%w: vocabulary snapshot lacks the padding token", ErrBadCheckpoint)
	}
	v := &Vocabulary{index: make(map[string]int, len(data.Tokens))}
	for _, tok := range data.Tokens {
		v.add(tok)
	}
	if data.Dim > 0 {
		if len(data.Vectors) != len(v.tokens)*data.Dim {
			return nil, errorf("%w: vocabulary vectors are truncated", ErrBadCheckpoint)
		}
		vecs := newTensor(len(v.tokens), data.Dim)
		copy(vecs.data, data.Vectors)
		v.vectors = vecs
	}
	return v, nil
}
