// Package diff renders line-based unified diffs between two normalized snapshots.
package diff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Labels used in the diff header.
const (
	FromLabel = "before"
	ToLabel   = "after"
)

// contextLines matches the conventional unified diff context.
const contextLines = 3

// Unified returns a unified diff of oldText against newText.
// Identical inputs yield "". An empty oldText shows every line of newText as an addition.
func Unified(oldText, newText string) (string, error) {
	if oldText == newText {
		return "", nil
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(oldText),
		B:        splitLines(newText),
		FromFile: FromLabel,
		ToFile:   ToLabel,
		Context:  contextLines,
	})
	if err != nil {
		return "", fmt.Errorf("render unified diff: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] += "\n"
	}
	return lines
}
