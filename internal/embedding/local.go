package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalClient is an offline embedder: a signed feature-hashed bag of words
// and word bigrams, L2-normalized. It needs no model download and is fully
// deterministic, but it only captures lexical overlap.
type LocalClient struct {
	dims      int
	stopWords map[string]bool
}

// NewLocalClient returns a LocalClient producing dims-length vectors.
func NewLocalClient(dims int) *LocalClient {
	if dims <= 0 {
		dims = 384
	}
	return &LocalClient{dims: dims, stopWords: defaultStopWords()}
}

// EmbedBatch vectorizes every text independently.
func (c *LocalClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = c.vectorize(text)
	}
	return out, nil
}

func (c *LocalClient) Dimensions() int { return c.dims }

func (c *LocalClient) Model() string { return "hashed-bow-v1" }

func (c *LocalClient) vectorize(text string) []float32 {
	vec := make([]float32, c.dims)
	words := c.tokenize(text)
	for i, w := range words {
		c.add(vec, w, 1)
		if i > 0 {
			c.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	Normalize(vec)
	return vec
}

func (c *LocalClient) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(c.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize lowercases, splits on anything that is not a letter or digit,
// and drops URLs, stop words and one-letter tokens.
func (c *LocalClient) tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			continue
		}
		for _, w := range strings.FieldsFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if len(w) < 2 || c.stopWords[w] {
				continue
			}
			words = append(words, w)
		}
	}
	return words
}

func defaultStopWords() map[string]bool {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "been", "but", "by", "do",
		"for", "from", "had", "has", "have", "he", "her", "him", "his", "how",
		"if", "in", "into", "is", "it", "its", "me", "my", "no", "not", "of",
		"on", "or", "our", "rt", "she", "so", "than", "that", "the", "their",
		"them", "then", "there", "these", "they", "this", "to", "up", "us",
		"was", "we", "were", "what", "when", "which", "who", "will", "with",
		"would", "you", "your",
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
