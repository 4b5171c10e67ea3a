package ranker

import (
	"math"
	"sort"
)

// Ranker scores candidates via weighted cosine + BM25 + structural fusion
// and returns them in final ranked order.
type Ranker struct {
	weights Weights
	bm25    BM25Params
	stats   *TermStats
	stop    map[string]bool
}

// New constructs a Ranker. weights are renormalized to sum to 1; stats may
// be nil, in which case BM25 contributes 0 to every candidate (an empty
// corpus has no term statistics to score against).
func New(weights Weights, bm25 BM25Params, stats *TermStats) *Ranker {
	if stats == nil {
		stats = NewTermStats()
	}
	return &Ranker{weights: weights.normalized(), bm25: bm25, stats: stats, stop: stopWordSet()}
}

// Rank scores every candidate against queryTerms (already tokenized by the
// caller, typically via Tokenize) and returns results ordered by final score
// descending, ties broken by cosine descending, then relativePath
// ascending, then startLine ascending.
func (r *Ranker) Rank(queryTerms []string, candidates []Candidate) []SearchResult {
	if len(candidates) == 0 {
		return nil
	}

	raw := make([]float64, len(candidates))
	matched := make([][]string, len(candidates))
	for i, c := range candidates {
		bag := weightedBag(c.Content, c.FunctionName, c.ClassName, c.Imports, r.stop)
		docLength := 0
		for _, n := range bag {
			docLength += n
		}
		score, terms := r.bm25Score(queryTerms, bag, docLength)
		raw[i] = score
		matched[i] = terms
	}

	bm25Norm := normalize(raw)

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		final := r.weights.Vector*c.Cosine + r.weights.BM25*bm25Norm[i] + r.weights.Structural*0
		results[i] = SearchResult{
			ChunkID:      c.ChunkID,
			Score:        final,
			Content:      c.Content,
			FilePath:     c.RelativePath,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			Language:     c.Language,
			Type:         c.Type,
			FunctionName: c.FunctionName,
			ClassName:    c.ClassName,
			MatchedTerms: matched[i],
			ProviderID:   c.ProviderID,
			ModelID:      c.ModelID,
		}
	}

	cosineByID := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		cosineByID[c.ChunkID] = c.Cosine
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ca, cb := cosineByID[a.ChunkID], cosineByID[b.ChunkID]
		if ca != cb {
			return ca > cb
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.StartLine < b.StartLine
	})

	return results
}

// bm25Score computes the Okapi BM25 score of a document (given as its
// weighted term bag and total weighted length) against the query terms.
func (r *Ranker) bm25Score(queryTerms []string, bag map[string]int, docLength int) (float64, []string) {
	if r.stats.TotalDocuments == 0 || len(queryTerms) == 0 {
		return 0, nil
	}
	avgdl := r.stats.AverageDocumentLength
	if avgdl <= 0 {
		avgdl = 1
	}
	var score float64
	var matched []string
	for _, term := range queryTerms {
		tf := float64(bag[term])
		if tf == 0 {
			continue
		}
		df := r.stats.DocumentFrequency[term]
		idf := idfFor(r.stats.TotalDocuments, df)
		numerator := tf * (r.bm25.K1 + 1)
		denominator := tf + r.bm25.K1*(1-r.bm25.B+r.bm25.B*float64(docLength)/avgdl)
		score += idf * (numerator / denominator)
		matched = append(matched, term)
	}
	if score < 0 {
		score = 0
	}
	return score, matched
}

func idfFor(totalDocuments, documentFrequency int) float64 {
	return math.Log((float64(totalDocuments)-float64(documentFrequency)+0.5)/(float64(documentFrequency)+0.5) + 1)
}

// normalize min-max scales raw scores into [0,1]. A zero-range input (every
// candidate scored identically, including all-zero) maps to all zeros.
func normalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	min, max := raw[0], raw[0]
	for _, v := range raw {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return out
	}
	for i, v := range raw {
		out[i] = (v - min) / (max - min)
	}
	return out
}

// Tokenize exposes the ranker's tokenizer for callers that need to convert a
// raw query string into query terms before calling Rank.
func Tokenize(text string) []string {
	return tokenize(text, stopWordSet())
}
