// Package chunk splits source text into overlapping, line-annotated chunks
// and attaches best-effort symbol/import metadata to each one.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Default chunk sizing, tuned for typical source files.
const (
	DefaultTargetChars  = 1200
	DefaultMaxChars     = 2000
	DefaultMinChars     = 200
	DefaultOverlapRatio = 0.15

	// DefaultContextLines is the number of lines of surrounding context
	// MetadataExtractor captures on either side of a chunk.
	DefaultContextLines = 2
)

// Options configures the Chunker.
type Options struct {
	TargetChars           int
	MaxChars              int
	MinChars              int
	OverlapRatio          float64
	RespectLineBreaks     bool
	RespectWordBoundaries bool
}

// DefaultOptions returns the chunker's documented defaults.
func DefaultOptions() Options {
	return Options{
		TargetChars:           DefaultTargetChars,
		MaxChars:              DefaultMaxChars,
		MinChars:              DefaultMinChars,
		OverlapRatio:          DefaultOverlapRatio,
		RespectLineBreaks:     true,
		RespectWordBoundaries: true,
	}
}

func (o Options) withDefaults() Options {
	if o.TargetChars <= 0 {
		o.TargetChars = DefaultTargetChars
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MaxChars < o.TargetChars {
		o.MaxChars = o.TargetChars
	}
	if o.MinChars <= 0 {
		o.MinChars = DefaultMinChars
	}
	if o.OverlapRatio < 0 {
		o.OverlapRatio = 0
	}
	if o.OverlapRatio > 0.5 {
		o.OverlapRatio = 0.5
	}
	return o
}

// Chunk is a contiguous, line-annotated slice of a source file.
//
// ChunkID is left empty by the Chunker: it depends on the repository alias
// and the file's content hash, neither of which the chunker knows about, and
// is assigned by the caller via GenerateChunkID once those are known.
type Chunk struct {
	ChunkID         string
	Ordinal         int
	RelativePath    string
	AbsolutePath    string
	Content         string
	StartLine       int
	EndLine         int
	SizeChars       int
	EstimatedTokens int
}

// SymbolType classifies the primary signal detected in a chunk.
type SymbolType string

const (
	TypeFunction SymbolType = "function"
	TypeClass    SymbolType = "class"
	TypeImport   SymbolType = "import"
	TypeComment  SymbolType = "comment"
	TypeCode     SymbolType = "code"
)

// Metadata is the structural enrichment MetadataExtractor attaches to a Chunk
// before it is embedded and stored.
type Metadata struct {
	Language                 string
	Type                     SymbolType
	FunctionName             string
	ClassName                string
	Imports                  []string
	SurroundingContextBefore []string
	SurroundingContextAfter  []string
	Signature                string
}

// EstimateTokens approximates token count from character count. This mirrors
// the coarse 4-chars-per-token heuristic used throughout the pipeline for
// batching budgets; it is never used for anything that requires exactness.
func EstimateTokens(content string) int {
	n := len([]rune(content))
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// GenerateChunkID derives the chunk's content-addressable identifier from the
// repository alias, the file's relative path, the chunk's ordinal position
// within that file, and the file's content hash. Two index runs over
// unchanged content produce identical IDs; any change to the file's content
// hash changes every chunk ID derived from it.
func GenerateChunkID(repoAlias, relativePath string, ordinal int, fileHash string) string {
	key := fmt.Sprintf("%s|%s|%d|%s", repoAlias, relativePath, ordinal, fileHash)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// ContentHash returns the stable content hash used for file-hash comparisons
// and chunk ID derivation.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
