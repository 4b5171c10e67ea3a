package index

import (
	"context"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/pipeline"
	"github.com/kestrelsearch/kestrel/internal/ranker"
	"github.com/kestrelsearch/kestrel/internal/store"
)

// DefaultK is the default number of results returned by a query.
const DefaultK = 8

// DefaultCandidateMultiplier is the default factor applied to k when
// fetching candidates to feed the Ranker.
const DefaultCandidateMultiplier = 4

// QueryOptions configures a single query.
type QueryOptions struct {
	K                   int
	CandidateMultiplier int
	RankerWeights       *ranker.Weights
	BM25Params          *ranker.BM25Params
	Language            string
	MinScore            float64
	Provider            pipeline.EmbeddingProvider
	BM25Backend         string
	CompressPayloads    bool
}

// QueryManager embeds a query, fetches candidates from one or more
// repository stores, re-ranks once globally, and assembles the final
// result list, per spec.md §4.12.
type QueryManager struct {
	StoreRoot string
	Sets      *SetRegistry
}

// NewQueryManager constructs a QueryManager rooted at the same store root
// an IndexManager writes to.
func NewQueryManager(root string, sets *SetRegistry) *QueryManager {
	return &QueryManager{StoreRoot: root, Sets: sets}
}

// repoTarget names one repository a scope resolves to: its on-disk path and
// the alias it was indexed under.
type repoTarget struct {
	RepoPath string
	Alias    string
}

// Query resolves scope into one or more repositories, fetches candidates
// from each, re-ranks the merged candidate set once, and truncates to k.
func (qm *QueryManager) Query(ctx context.Context, scope, text string, opts QueryOptions) ([]ranker.SearchResult, error) {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if opts.Provider == nil {
		return nil, kerrors.ValidationError("an embedding provider is required", nil)
	}

	targets, err := qm.resolveScope(scope)
	if err != nil {
		return nil, err
	}

	vectors, err := opts.Provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	queryVector := vectors[0]
	queryTerms := ranker.Tokenize(text)

	var candidates []ranker.Candidate
	stats := ranker.NewTermStats()

	for _, t := range targets {
		rs, err := store.Open(store.RepositoryStoreConfig{StoreRoot: qm.StoreRoot, BM25Backend: opts.BM25Backend, CompressPayloads: opts.CompressPayloads}, t.RepoPath, t.Alias)
		if err != nil {
			continue
		}
		hits, err := rs.Query(ctx, queryVector, opts.K, opts.CandidateMultiplier)
		if err == nil {
			for _, h := range hits {
				payload, perr := rs.LoadPayload(h.ID)
				if perr != nil {
					continue
				}
				if opts.Language != "" && payload.Language != opts.Language {
					continue
				}
				c := ranker.Candidate{
					ChunkID:      payload.ChunkID,
					Cosine:       float64(h.Score),
					Content:      payload.Content,
					RelativePath: payload.RelativePath,
					StartLine:    payload.StartLine,
					EndLine:      payload.EndLine,
					Language:     payload.Language,
					Type:         payload.Type,
					FunctionName: payload.FunctionName,
					ClassName:    payload.ClassName,
					Imports:      payload.Imports,
					ProviderID:   payload.ProviderID,
					ModelID:      payload.ModelID,
				}
				candidates = append(candidates, c)
				stats.Add(termBagForStats(payload))
			}
		}
		_ = rs.Close()
	}

	weights := ranker.DefaultWeights()
	if opts.RankerWeights != nil {
		weights = *opts.RankerWeights
	}
	bm25Params := ranker.DefaultBM25Params()
	if opts.BM25Params != nil {
		bm25Params = *opts.BM25Params
	}
	rk := ranker.New(weights, bm25Params, stats)
	results := rk.Rank(queryTerms, candidates)

	if opts.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

func (qm *QueryManager) resolveScope(scope string) ([]repoTarget, error) {
	switch {
	case scope == "" || scope == "current":
		return nil, kerrors.ValidationError("a current-repo scope requires an explicit repo path", nil)
	case scope == "all":
		if qm.Sets == nil {
			return nil, kerrors.ScopeNotFoundError(scope)
		}
		all := qm.Sets.All()
		if len(all) == 0 {
			return nil, kerrors.ScopeNotFoundError(scope)
		}
		return all, nil
	case len(scope) > 4 && scope[:4] == "set:":
		name := scope[4:]
		if qm.Sets == nil {
			return nil, kerrors.ScopeNotFoundError(scope)
		}
		targets, ok := qm.Sets.Get(name)
		if !ok || len(targets) == 0 {
			return nil, kerrors.ScopeNotFoundError(scope)
		}
		return targets, nil
	default:
		// Treat any other scope string as a direct repository path.
		return []repoTarget{{RepoPath: scope, Alias: scope}}, nil
	}
}

func termBagForStats(p *store.Payload) map[string]int {
	bag := map[string]int{}
	for _, t := range ranker.Tokenize(p.Content) {
		bag[t]++
	}
	for _, t := range ranker.Tokenize(p.FunctionName) {
		bag[t]++
	}
	for _, t := range ranker.Tokenize(p.ClassName) {
		bag[t]++
	}
	for _, imp := range p.Imports {
		for _, t := range ranker.Tokenize(imp) {
			bag[t]++
		}
	}
	return bag
}
