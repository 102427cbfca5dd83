// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Engine provides line diffing capabilities
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	return &Engine{
		contextLines: contextLines,
	}
}

// Diff generates a line-by-line diff between two document texts.
func (e *Engine) Diff(oldText, newText string) (*DiffResult, error) {
	oldLines := SplitLines(oldText)
	newLines := SplitLines(newText)

	result := &DiffResult{}
	result.Hunks = e.buildHunks(oldLines, newLines, Matches(oldLines, newLines))

	for _, hunk := range result.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				result.Stats.Additions++
			case Deletion:
				result.Stats.Deletions++
			}
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result, nil
}

// buildHunks converts the gaps between matched lines into hunks, with up to
// contextLines of surrounding context.
func (e *Engine) buildHunks(oldLines, newLines []string, matches []Match) []Hunk {
	var hunks []Hunk

	i, j := 0, 0
	for k := 0; k <= len(matches); k++ {
		// End of the gap: the next matched pair, or both tails.
		gapOldEnd, gapNewEnd := len(oldLines), len(newLines)
		if k < len(matches) {
			gapOldEnd, gapNewEnd = matches[k].Old, matches[k].New
		}

		if gapOldEnd > i || gapNewEnd > j {
			hunk := Hunk{
				OldStart: i + 1,
				NewStart: j + 1,
				OldLines: gapOldEnd - i,
				NewLines: gapNewEnd - j,
			}

			// Preceding context
			ctxStart := max(0, i-e.contextLines)
			for c := ctxStart; c < i; c++ {
				hunk.Lines = append(hunk.Lines, Line{
					Type:    Context,
					Content: oldLines[c],
					OldNum:  c + 1,
					NewNum:  j - (i - c) + 1,
				})
			}

			for o := i; o < gapOldEnd; o++ {
				hunk.Lines = append(hunk.Lines, Line{
					Type:    Deletion,
					Content: oldLines[o],
					OldNum:  o + 1,
				})
			}
			for n := j; n < gapNewEnd; n++ {
				hunk.Lines = append(hunk.Lines, Line{
					Type:    Addition,
					Content: newLines[n],
					NewNum:  n + 1,
				})
			}

			// Following context
			ctxEnd := min(len(oldLines), gapOldEnd+e.contextLines)
			for c := gapOldEnd; c < ctxEnd; c++ {
				hunk.Lines = append(hunk.Lines, Line{
					Type:    Context,
					Content: oldLines[c],
					OldNum:  c + 1,
					NewNum:  gapNewEnd + (c - gapOldEnd) + 1,
				})
			}

			hunks = append(hunks, hunk)
		}

		if k < len(matches) {
			i = matches[k].Old + 1
			j = matches[k].New + 1
		}
	}

	return hunks
}

// Format returns a string representation of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			case Context:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
