package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkerEmptyBuffer(t *testing.T) {
	c := New(DefaultOptions())
	chunks := c.Chunk("", "a.txt", "/root/a.txt")
	assert.Empty(t, chunks)
}

func TestChunkerSmallBufferYieldsOneChunk(t *testing.T) {
	c := New(Options{TargetChars: 750, MaxChars: 2000, MinChars: 200, OverlapRatio: 0, RespectLineBreaks: true})
	text := "alpha\nbeta\ngamma\n"
	chunks := c.Chunk(text, "src/a.txt", "/repo/src/a.txt")
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestChunkerScenarioA(t *testing.T) {
	c := New(Options{TargetChars: 32, MaxChars: 64, MinChars: 1, OverlapRatio: 0, RespectLineBreaks: true})
	a := c.Chunk("alpha\nbeta\ngamma\n", "src/a.txt", "/repo/src/a.txt")
	b := c.Chunk("delta\nepsilon\n", "src/b.txt", "/repo/src/b.txt")
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}

// TestChunkerCoversEveryLineOnce is a table-driven check of testable property
// #2: the concatenation of the non-overlap regions of successive chunks
// covers every line of the source exactly once.
func TestChunkerCoversEveryLineOnce(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", 20))
	}
	text := strings.Join(lines, "\n")

	c := New(Options{TargetChars: 100, MaxChars: 200, MinChars: 10, OverlapRatio: 0, RespectLineBreaks: true})
	chunks := c.Chunk(text, "f.go", "/repo/f.go")
	require.NotEmpty(t, chunks)

	covered := make(map[int]bool)
	prevEnd := 0
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.StartLine, ch.EndLine)
		nonOverlapStart := ch.StartLine
		if ch.StartLine <= prevEnd {
			nonOverlapStart = prevEnd + 1
		}
		for l := nonOverlapStart; l <= ch.EndLine; l++ {
			assert.False(t, covered[l], "line %d covered twice", l)
			covered[l] = true
		}
		prevEnd = ch.EndLine
	}
	assert.Len(t, covered, len(lines))
}

func TestChunkerNeverExceedsMaxChars(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	c := New(Options{TargetChars: 100, MaxChars: 150, MinChars: 10, OverlapRatio: 0.1, RespectLineBreaks: true, RespectWordBoundaries: true})
	chunks := c.Chunk(text, "long.txt", "/repo/long.txt")
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.SizeChars, 150)
	}
}

func TestChunkerOverlap(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, strings.Repeat("y", 20))
	}
	text := strings.Join(lines, "\n")
	c := New(Options{TargetChars: 100, MaxChars: 200, MinChars: 10, OverlapRatio: 0.25, RespectLineBreaks: true})
	chunks := c.Chunk(text, "f.go", "/repo/f.go")
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].StartLine, chunks[i-1].EndLine+1)
	}
}
