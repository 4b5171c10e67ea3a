package chunk

import "strings"

// Chunker splits a text buffer into ordered, line-annotated chunks.
type Chunker struct {
	options Options
}

// New creates a Chunker with the given options, filling in documented
// defaults for any zero-valued field.
func New(options Options) *Chunker {
	return &Chunker{options: options.withDefaults()}
}

// line holds a single line of the source buffer (without its terminator) and
// the half-open character offsets it occupies in the original text.
type line struct {
	text  string
	start int
	end   int
}

func splitLines(text string) []line {
	if text == "" {
		return nil
	}
	var lines []line
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			lines = append(lines, line{text: string(runes[start:i]), start: start, end: i})
			start = i + 1
		}
	}
	if start < len(runes) {
		lines = append(lines, line{text: string(runes[start:]), start: start, end: len(runes)})
	}
	return lines
}

// Chunk splits text into an ordered, finite sequence of Chunks. relativePath
// and absolutePath are stamped onto every produced chunk; they carry no
// meaning for the splitting algorithm itself.
func (c *Chunker) Chunk(text, relativePath, absolutePath string) []*Chunk {
	if text == "" {
		return nil
	}
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}

	opts := c.options
	overlapChars := int(float64(opts.TargetChars) * opts.OverlapRatio)

	var chunks []*Chunk
	pos := 0
	for pos < len(lines) {
		start := pos
		end := pos // inclusive index of last line in this chunk
		size := len(lines[pos].text)

		// Grow the window until we hit targetChars, run out of lines, or
		// would exceed maxChars.
		for end+1 < len(lines) {
			next := lines[end+1]
			addLen := len(next.text) + 1 // +1 for the newline we rejoin with
			if size >= opts.TargetChars {
				break
			}
			if size+addLen > opts.MaxChars {
				break
			}
			end++
			size += addLen
		}

		// A single line longer than maxChars: split within the line.
		if end == start && size > opts.MaxChars {
			sub := splitLongLine(lines[start], start+1, opts)
			for _, s := range sub {
				s.RelativePath = relativePath
				s.AbsolutePath = absolutePath
			}
			chunks = append(chunks, sub...)
		} else {
			content := joinLines(lines[start : end+1])
			chunks = append(chunks, &Chunk{
				RelativePath: relativePath,
				AbsolutePath: absolutePath,
				Content:      content,
				StartLine:    start + 1,
				EndLine:      end + 1,
				SizeChars:    len([]rune(content)),
			})
		}

		if end+1 >= len(lines) {
			break
		}

		// Determine the next starting line by stepping back whole lines from
		// the end of the window we just emitted until they cover at least
		// overlapChars characters (newlines included) or the window's first
		// line is reached; the overlap is always line-aligned.
		nextStart := end + 1
		if overlapChars > 0 {
			backChars := 0
			i := end
			for i > start && backChars < overlapChars {
				backChars += len(lines[i].text) + 1
				i--
			}
			if i+1 <= end {
				nextStart = i + 1
			}
		}
		if nextStart <= pos {
			nextStart = pos + 1 // guarantee forward progress
		}
		pos = nextStart
	}

	for i, ch := range chunks {
		ch.Ordinal = i
		ch.EstimatedTokens = EstimateTokens(ch.Content)
	}
	return chunks
}

// splitLongLine breaks a single oversized line into maxChars-bounded pieces,
// snapping to word boundaries when requested. All pieces are stamped with
// the same line number since the source line itself is not multi-line.
func splitLongLine(l line, lineNo int, opts Options) []*Chunk {
	text := l.text
	runes := []rune(text)
	var out []*Chunk
	start := 0
	for start < len(runes) {
		end := start + opts.MaxChars
		if end > len(runes) {
			end = len(runes)
		}
		if end < len(runes) && opts.RespectWordBoundaries {
			if sp := lastSpace(runes[start:end]); sp > 0 {
				end = start + sp
			}
		}
		if end <= start {
			end = start + opts.MaxChars
			if end > len(runes) {
				end = len(runes)
			}
		}
		content := string(runes[start:end])
		out = append(out, &Chunk{
			RelativePath: "",
			Content:      content,
			StartLine:    lineNo,
			EndLine:      lineNo,
			SizeChars:    len([]rune(content)),
		})
		start = end
	}
	return out
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == ' ' || rs[i] == '\t' {
			return i + 1
		}
	}
	return -1
}

func joinLines(ls []line) string {
	texts := make([]string, len(ls))
	for i, l := range ls {
		texts[i] = l.text
	}
	return strings.Join(texts, "\n")
}
