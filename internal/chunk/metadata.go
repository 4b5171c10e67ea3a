package chunk

import (
	"regexp"
	"strings"
)

// family groups languages that share a symbol-declaration shape.
type family int

const (
	familyBraces       family = iota // C-like: function/class declared with braces
	familyIndentation                // Python-like: block defined by indentation
	familyMarkupConfig               // XML/YAML/JSON-like: declarative data, no code symbols
	familyDeclarative                // HTML/templates/Terraform-like declarative flow
	familyUnknown
)

var extensionFamily = map[string]family{
	"go": familyBraces, "js": familyBraces, "jsx": familyBraces, "ts": familyBraces,
	"tsx": familyBraces, "java": familyBraces, "c": familyBraces, "h": familyBraces,
	"cpp": familyBraces, "hpp": familyBraces, "cs": familyBraces, "rs": familyBraces,
	"php": familyBraces, "swift": familyBraces, "kt": familyBraces, "scala": familyBraces,
	"py": familyIndentation, "rb": familyIndentation,
	"yaml": familyMarkupConfig, "yml": familyMarkupConfig, "json": familyMarkupConfig,
	"xml": familyMarkupConfig, "toml": familyMarkupConfig,
	"html": familyDeclarative, "htm": familyDeclarative, "tf": familyDeclarative,
	"vue": familyDeclarative, "svelte": familyDeclarative,
}

func familyFor(language string) family {
	if f, ok := extensionFamily[strings.ToLower(language)]; ok {
		return f
	}
	return familyUnknown
}

// Regexes compiled once at package init, grouped by the signal they detect.
var (
	bracesFunction = regexp.MustCompile(`(?m)^\s*(?:(?:public|private|protected|static|async|export|pub|fn|func)\s+)*(?:func\s+)?(?:[\w.<>\[\]*&]+\s+)?([A-Za-z_]\w*)\s*\(`)
	bracesClass    = regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:public\s+|abstract\s+|final\s+)*(?:class|struct|interface|enum|trait)\s+([A-Za-z_]\w*)`)
	bracesImport   = regexp.MustCompile(`(?m)^\s*(?:import|#include|using|require)\b.*$`)
	bracesComment  = regexp.MustCompile(`^\s*(//|/\*|\*)`)

	indentFunction = regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	indentClass    = regexp.MustCompile(`(?m)^\s*class\s+([A-Za-z_]\w*)`)
	indentImport   = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+.+$`)
	indentComment  = regexp.MustCompile(`^\s*#`)

	genericImportWord = regexp.MustCompile(`(?i)\bimport\b`)
)

// Analyze classifies a chunk's dominant content and extracts the symbols and
// imports it can find with language-family regexes. It never raises; an
// unrecognized language yields type=code with empty symbol lists.
func Analyze(content, language, relativePath string) *Metadata {
	md := &Metadata{Language: language, Type: TypeCode}

	switch familyFor(language) {
	case familyMarkupConfig, familyDeclarative:
		// Declarative families stay "code" regardless of imports/comments.
		md.Imports = findAll(genericImportWord, content)
		return md
	case familyIndentation:
		analyzeIndentation(content, md)
	case familyBraces:
		analyzeBraces(content, md)
	default:
		analyzeGeneric(content, md)
	}
	return md
}

func analyzeBraces(content string, md *Metadata) {
	if m := bracesClass.FindStringSubmatch(content); m != nil {
		md.ClassName = m[1]
		if hasMethodOf(content, m[1]) {
			md.Type = TypeClass
			md.Signature = strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
			return
		}
	}
	keywords := map[string]bool{"import": true, "if": true, "for": true, "while": true,
		"switch": true, "return": true, "catch": true, "require": true}
	for _, m := range bracesFunction.FindAllStringSubmatch(content, -1) {
		if keywords[m[1]] {
			continue
		}
		md.FunctionName = m[1]
		md.Type = TypeFunction
		md.Signature = strings.TrimSpace(firstLineOf(content, m[1]))
		return
	}
	if bracesImport.MatchString(content) {
		md.Imports = extractLines(bracesImport, content)
		md.Type = TypeImport
		return
	}
	if isMostlyComment(content, bracesComment) {
		md.Type = TypeComment
		return
	}
}

func analyzeIndentation(content string, md *Metadata) {
	if m := indentClass.FindStringSubmatch(content); m != nil {
		md.ClassName = m[1]
		md.Type = TypeClass
		md.Signature = strings.TrimSpace(firstLineOf(content, m[1]))
		return
	}
	if m := indentFunction.FindStringSubmatch(content); m != nil {
		md.FunctionName = m[1]
		md.Type = TypeFunction
		md.Signature = strings.TrimSpace(firstLineOf(content, m[1]))
		return
	}
	if indentImport.MatchString(content) {
		md.Imports = extractLines(indentImport, content)
		md.Type = TypeImport
		return
	}
	if isMostlyComment(content, indentComment) {
		md.Type = TypeComment
		return
	}
}

// analyzeGeneric runs a language-agnostic best effort for extensions not
// assigned to a known family: both symbol patterns are tried since unknown
// languages may follow either declaration shape.
func analyzeGeneric(content string, md *Metadata) {
	if m := bracesClass.FindStringSubmatch(content); m != nil {
		md.ClassName = m[1]
		md.Type = TypeClass
		return
	}
	if m := bracesFunction.FindStringSubmatch(content); m != nil {
		md.FunctionName = m[1]
		md.Type = TypeFunction
		return
	}
	if genericImportWord.MatchString(content) {
		md.Type = TypeImport
		md.Imports = findAll(genericImportWord, content)
	}
}

// hasMethodOf reports whether className occurs in content. The caller takes
// className from content's own class declaration, so this always holds and
// any chunk with a class declaration is classified as a class; functions
// outside the class body are not told apart from its methods.
func hasMethodOf(content, className string) bool {
	return strings.Contains(content, className)
}

func isMostlyComment(content string, commentLine *regexp.Regexp) bool {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return false
	}
	commentCount := 0
	nonBlank := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		nonBlank++
		if commentLine.MatchString(l) {
			commentCount++
		}
	}
	return nonBlank > 0 && commentCount == nonBlank
}

func firstLineOf(content, marker string) string {
	idx := strings.Index(content, marker)
	if idx < 0 {
		return ""
	}
	rest := content[idx:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		return content[:idx] + rest[:nl]
	}
	return content
}

func extractLines(re *regexp.Regexp, content string) []string {
	var out []string
	for _, l := range strings.Split(content, "\n") {
		if re.MatchString(l) {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}

func findAll(re *regexp.Regexp, content string) []string {
	var out []string
	for _, l := range strings.Split(content, "\n") {
		if re.MatchString(l) {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}

// SurroundingContext computes the up-to-contextLines lines immediately
// before and after [startLine,endLine] (1-based, inclusive) within fileLines.
// Returns nil slices when there is nothing to show on that side.
func SurroundingContext(fileLines []string, startLine, endLine, contextLines int) (before, after []string) {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	beforeStart := startLine - 1 - contextLines
	if beforeStart < 0 {
		beforeStart = 0
	}
	if startLine-1 > beforeStart {
		before = append(before, fileLines[beforeStart:startLine-1]...)
	}
	afterEnd := endLine + contextLines
	if afterEnd > len(fileLines) {
		afterEnd = len(fileLines)
	}
	if afterEnd > endLine {
		after = append(after, fileLines[endLine:afterEnd]...)
	}
	return before, after
}
