package tools

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

const diffPreviewLimit = 1000

// generateDiff produces a fenced unified diff between two file versions for
// approval prompts. Long diffs are truncated for display only; the write
// itself always uses the full new content.
func generateDiff(old, updated, filename string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(updated),
		FromFile: "a/" + filename,
		ToFile:   "b/" + filename,
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("(diff unavailable: %v)", err)
	}
	if text == "" {
		return "(no changes)"
	}
	if len(text) > diffPreviewLimit {
		text = text[:diffPreviewLimit] + "\n... (diff truncated)"
	}
	return "```diff\n" + text + "\n```"
}
