package ranker

import "strings"

const minTokenLength = 2

func isStopWord(word string, stop map[string]bool) bool {
	return stop[word]
}

func stopWordSet() map[string]bool {
	set := make(map[string]bool, len(DefaultStopWords))
	for _, w := range DefaultStopWords {
		set[w] = true
	}
	return set
}

// tokenize splits text on non-alphanumeric boundaries, lowercases, and drops
// stop words and tokens shorter than minTokenLength.
func tokenize(text string, stop map[string]bool) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() >= minTokenLength {
			word := strings.ToLower(b.String())
			if !isStopWord(word, stop) {
				tokens = append(tokens, word)
			}
		}
		b.Reset()
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// weightedBag builds a document's weighted term-frequency bag: content and
// import tokens count at weight 1, function/class name tokens count at
// weight 2 (spec's "function name x2, class name x2, imports x1, content
// identifiers x1").
func weightedBag(content, functionName, className string, imports []string, stop map[string]bool) map[string]int {
	bag := map[string]int{}
	for _, t := range tokenize(content, stop) {
		bag[t]++
	}
	for _, t := range tokenize(functionName, stop) {
		bag[t]++ // additional +1 on top of any content occurrence, netting weight 2
	}
	for _, t := range tokenize(className, stop) {
		bag[t]++
	}
	for _, imp := range imports {
		for _, t := range tokenize(imp, stop) {
			bag[t]++
		}
	}
	return bag
}
