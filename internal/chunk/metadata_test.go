package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeGoFunction(t *testing.T) {
	content := "func Add(a, b int) int {\n\treturn a + b\n}\n"
	md := Analyze(content, "go", "math.go")
	assert.Equal(t, TypeFunction, md.Type)
	assert.Equal(t, "Add", md.FunctionName)
}

func TestAnalyzeGoImport(t *testing.T) {
	content := "import (\n\t\"fmt\"\n\t\"os\"\n)\n"
	md := Analyze(content, "go", "main.go")
	assert.Equal(t, TypeImport, md.Type)
	assert.NotEmpty(t, md.Imports)
}

func TestAnalyzePythonClass(t *testing.T) {
	content := "class Widget:\n    def render(self):\n        pass\n"
	md := Analyze(content, "py", "widget.py")
	assert.Equal(t, TypeClass, md.Type)
	assert.Equal(t, "Widget", md.ClassName)
}

func TestAnalyzeYAMLAlwaysCode(t *testing.T) {
	content := "import:\n  - foo\n# a comment\n"
	md := Analyze(content, "yaml", "config.yaml")
	assert.Equal(t, TypeCode, md.Type)
}

func TestAnalyzeUnknownLanguage(t *testing.T) {
	md := Analyze("some opaque content", "cobol", "legacy.cbl")
	assert.Equal(t, TypeCode, md.Type)
	assert.Empty(t, md.FunctionName)
	assert.Empty(t, md.ClassName)
}

func TestSurroundingContext(t *testing.T) {
	lines := []string{"l1", "l2", "l3", "l4", "l5", "l6"}
	before, after := SurroundingContext(lines, 3, 4, 2)
	assert.Equal(t, []string{"l1", "l2"}, before)
	assert.Equal(t, []string{"l5", "l6"}, after)
}
