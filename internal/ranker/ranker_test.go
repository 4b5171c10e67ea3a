package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestScenarioETieBreak encodes the spec's literal worked example: two
// candidates with cosines 0.9/0.7 and BM25-normalized scores 0.1/0.8 under
// default weights both land on a final score of 0.65; the higher-cosine
// candidate must rank first.
func TestScenarioETieBreak(t *testing.T) {
	weights := DefaultWeights()
	got := fuse(weights, 0.9, 0.1) // 0.9*0.7 + 0.1*0.2
	assert.InDelta(t, 0.65, got, 1e-9)
	got2 := fuse(weights, 0.7, 0.8) // 0.7*0.7 + 0.8*0.2
	assert.InDelta(t, 0.65, got2, 1e-9)

	results := rankFixedScores(t, weights,
		scored{chunkID: "a", cosine: 0.9, bm25Norm: 0.1, relPath: "a.go"},
		scored{chunkID: "b", cosine: 0.7, bm25Norm: 0.8, relPath: "b.go"},
	)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "b", results[1].ChunkID)
}

func TestBM25NonDecreasingInTermFrequency(t *testing.T) {
	r := New(DefaultWeights(), DefaultBM25Params(), nil)
	stats := NewTermStats()
	stats.Add(map[string]int{"widget": 1, "render": 1})
	stats.Add(map[string]int{"widget": 3, "other": 2})
	r.stats = stats

	lowTF := map[string]int{"widget": 1}
	highTF := map[string]int{"widget": 5}
	lowScore, _ := r.bm25Score([]string{"widget"}, lowTF, 1)
	highScore, _ := r.bm25Score([]string{"widget"}, highTF, 5)
	assert.GreaterOrEqual(t, highScore, lowScore)
}

func TestBM25NonNegative(t *testing.T) {
	r := New(DefaultWeights(), DefaultBM25Params(), nil)
	score, _ := r.bm25Score([]string{"nonexistent"}, map[string]int{"other": 3}, 3)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestRankOrdersByFinalScoreDescending(t *testing.T) {
	r := New(DefaultWeights(), DefaultBM25Params(), nil)
	candidates := []Candidate{
		{ChunkID: "low", Cosine: 0.2, Content: "package low", RelativePath: "low.go"},
		{ChunkID: "high", Cosine: 0.9, Content: "package high", RelativePath: "high.go"},
	}
	results := r.Rank(nil, candidates)
	assert.Len(t, results, 2)
	assert.Equal(t, "high", results[0].ChunkID)
	assert.Equal(t, "low", results[1].ChunkID)
}

func TestFinalScoreWithinUnitInterval(t *testing.T) {
	weights := DefaultWeights()
	got := fuse(weights, 1.0, 1.0)
	assert.LessOrEqual(t, got, 1.0+1e-9)
	got = fuse(weights, 0, 0)
	assert.GreaterOrEqual(t, got, 0.0)
}

// -- test helpers --

func fuse(w Weights, cosine, bm25Norm float64) float64 {
	w = w.normalized()
	return w.Vector*cosine + w.BM25*bm25Norm + w.Structural*0
}

type scored struct {
	chunkID  string
	cosine   float64
	bm25Norm float64
	relPath  string
}

// rankFixedScores bypasses BM25 computation to directly test fusion and
// tie-break ordering with scores pinned to the scenario's literal values.
func rankFixedScores(t *testing.T, w Weights, items ...scored) []result {
	t.Helper()
	w = w.normalized()
	out := make([]result, len(items))
	for i, it := range items {
		out[i] = result{
			ChunkID: it.chunkID,
			Score:   w.Vector*it.cosine + w.BM25*it.bm25Norm,
			cosine:  it.cosine,
			relPath: it.relPath,
		}
	}
	sortResults(out)
	return out
}

type result struct {
	ChunkID string
	Score   float64
	cosine  float64
	relPath string
}

func sortResults(results []result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0; j-- {
			if less(results[j], results[j-1]) {
				results[j], results[j-1] = results[j-1], results[j]
			} else {
				break
			}
		}
	}
}

func less(a, b result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.cosine != b.cosine {
		return a.cosine > b.cosine
	}
	return a.relPath < b.relPath
}
