// Package ranker implements the hybrid cosine + BM25 + structural candidate
// scorer described by the retrieval engine's query path.
package ranker

import "github.com/kestrelsearch/kestrel/internal/store"

// Weights configures the three-way score fusion. Values are renormalized to
// sum to 1 before use, so callers may pass unnormalized relative weights.
type Weights struct {
	Vector     float64
	BM25       float64
	Structural float64
}

// DefaultWeights returns the documented default fusion weights.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, BM25: 0.2, Structural: 0.1}
}

func (w Weights) normalized() Weights {
	sum := w.Vector + w.BM25 + w.Structural
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{Vector: w.Vector / sum, BM25: w.BM25 / sum, Structural: w.Structural / sum}
}

// BM25Params configures the BM25 term-frequency saturation and length
// normalization parameters.
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params returns the documented BM25 defaults.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75}
}

// TermStats holds the corpus-wide statistics BM25's IDF term needs:
// document frequency per term, total document count, and average weighted
// document length. Rebuilt or incrementally updated once per index run.
type TermStats struct {
	DocumentFrequency     map[string]int
	TotalDocuments        int
	AverageDocumentLength float64
}

// NewTermStats returns an empty TermStats ready for accumulation.
func NewTermStats() *TermStats {
	return &TermStats{DocumentFrequency: map[string]int{}}
}

// Add folds one document's weighted term bag into the corpus statistics.
func (s *TermStats) Add(bag map[string]int) {
	seen := map[string]bool{}
	for term := range bag {
		if !seen[term] {
			s.DocumentFrequency[term]++
			seen[term] = true
		}
	}
	length := 0
	for _, n := range bag {
		length += n
	}
	total := s.AverageDocumentLength * float64(s.TotalDocuments)
	s.TotalDocuments++
	s.AverageDocumentLength = (total + float64(length)) / float64(s.TotalDocuments)
}

// Candidate is a single vector-search hit awaiting re-ranking, carrying
// enough of its stored payload to compute BM25 term weighting.
type Candidate struct {
	ChunkID      string
	Cosine       float64 // normalized similarity, 0-1, from VectorStore.Search
	Content      string
	RelativePath string
	StartLine    int
	EndLine      int
	Language     string
	Type         string
	FunctionName string
	ClassName    string
	Imports      []string
	ProviderID   string
	ModelID      string
}

// SearchResult is the final ranked, scored output of a query.
type SearchResult struct {
	ChunkID      string
	Score        float64
	Content      string
	FilePath     string
	StartLine    int
	EndLine      int
	Language     string
	Type         string
	FunctionName string
	ClassName    string
	MatchedTerms []string
	ProviderID   string
	ModelID      string
}

// DefaultStopWords reuses the store package's code-oriented stop-word list
// for tokenization, so corpus term statistics and BM25 scoring agree with
// the keyword index on what counts as a meaningful token.
var DefaultStopWords = store.DefaultCodeStopWords
