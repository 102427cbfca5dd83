// Package merge implements the three-way line merge used to reconcile
// concurrent edits to a document: the last saved text (base), the live
// editor text (ours), and the text an external writer put on disk (theirs).
package merge

import (
	"mdsync/internal/diff"
	"strings"
)

// Result is the outcome of a three-way merge.
type Result struct {
	Content      string
	HadConflicts bool
}

// Merge combines ours and theirs relative to their common ancestor base.
// It is pure and deterministic: no I/O, no state.
//
// Resolution policy for regions both sides changed differently is that the
// external version wins outright. Identical edits on both sides collapse to
// a single clean region and are never counted as a conflict.
func Merge(base, ours, theirs string) Result {
	// Cheap whole-string checks before the line algorithm.
	if base == theirs {
		// Nothing external changed.
		return Result{Content: ours}
	}
	if base == ours {
		// No local change, take disk as-is.
		return Result{Content: theirs}
	}
	if ours == theirs {
		// Both sides converged on the same text.
		return Result{Content: theirs}
	}

	baseLines := diff.SplitLines(base)
	oursLines := diff.SplitLines(ours)
	theirsLines := diff.SplitLines(theirs)

	matchOurs := matchMap(diff.Matches(baseLines, oursLines))
	matchTheirs := matchMap(diff.Matches(baseLines, theirsLines))

	var out []string
	conflicts := false

	i, o, t := 0, 0, 0
	for i < len(baseLines) || o < len(oursLines) || t < len(theirsLines) {
		// A base line matched by both sides at the current cursors is
		// stable: emit it and advance everything in lockstep.
		if i < len(baseLines) {
			oi, okO := matchOurs[i]
			ti, okT := matchTheirs[i]
			if okO && okT && oi == o && ti == t {
				out = append(out, baseLines[i])
				i++
				o++
				t++
				continue
			}
		}

		// Otherwise we are inside an unstable region. It extends to the
		// next base line matched by both sides (or to the end of all three
		// sequences). Everything between the cursors and that sync point
		// forms one region per side.
		nextB, nextO, nextT := len(baseLines), len(oursLines), len(theirsLines)
		for k := i; k < len(baseLines); k++ {
			oi, okO := matchOurs[k]
			ti, okT := matchTheirs[k]
			if okO && okT && oi >= o && ti >= t {
				nextB, nextO, nextT = k, oi, ti
				break
			}
		}

		baseSeg := baseLines[i:nextB]
		oursSeg := oursLines[o:nextO]
		theirsSeg := theirsLines[t:nextT]

		switch {
		case linesEqual(oursSeg, baseSeg):
			// Only the external side touched this region.
			out = append(out, theirsSeg...)
		case linesEqual(theirsSeg, baseSeg):
			// Only the local side touched this region.
			out = append(out, oursSeg...)
		case linesEqual(oursSeg, theirsSeg):
			// Both made the identical edit: a false conflict.
			out = append(out, theirsSeg...)
		default:
			// Genuine conflict: the external writer is authoritative.
			out = append(out, theirsSeg...)
			conflicts = true
		}

		i, o, t = nextB, nextO, nextT
	}

	return Result{
		Content:      strings.Join(out, "\n"),
		HadConflicts: conflicts,
	}
}

func matchMap(matches []diff.Match) map[int]int {
	m := make(map[int]int, len(matches))
	for _, pair := range matches {
		m[pair.Old] = pair.New
	}
	return m
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
