package diff

import "strings"

// Match pairs a line index in the old sequence with its matched line index
// in the new sequence. Matches returned by Matches are strictly increasing
// in both coordinates.
type Match struct {
	Old int
	New int
}

// Matches computes the longest common subsequence of the two line slices
// and returns the matched index pairs in order.
func Matches(oldLines, newLines []string) []Match {
	matrix := buildLCSMatrix(oldLines, newLines)

	// Backtrack from the bottom-right corner.
	var reversed []Match
	i, j := len(oldLines), len(newLines)
	for i > 0 && j > 0 {
		if oldLines[i-1] == newLines[j-1] {
			reversed = append(reversed, Match{Old: i - 1, New: j - 1})
			i--
			j--
		} else if matrix[i][j-1] >= matrix[i-1][j] {
			j--
		} else {
			i--
		}
	}

	if len(reversed) == 0 {
		return nil
	}
	matches := make([]Match, len(reversed))
	for k, m := range reversed {
		matches[len(reversed)-1-k] = m
	}
	return matches
}

func buildLCSMatrix(oldLines, newLines []string) [][]int {
	matrix := make([][]int, len(oldLines)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(newLines)+1)
	}

	for i := 1; i <= len(oldLines); i++ {
		for j := 1; j <= len(newLines); j++ {
			if oldLines[i-1] == newLines[j-1] {
				matrix[i][j] = matrix[i-1][j-1] + 1
			} else {
				matrix[i][j] = max(matrix[i-1][j], matrix[i][j-1])
			}
		}
	}

	return matrix
}

// SplitLines splits text on '\n'. There is no special casing for a trailing
// newline: "a\n" is the two lines ["a", ""], which keeps joins lossless.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
