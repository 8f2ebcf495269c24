package bundles

import "sort"

// findRanges returns the ranges containing the given position, innermost
// first: smallest extent wins, ties broken by earliest start.
func findRanges(ranges map[ID]RangeData, line, character int) []RangeData {
	var filtered []RangeData
	for _, r := range ranges {
		if comparePosition(r, line, character) == 0 {
			filtered = append(filtered, r)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if ai, aj := area(filtered[i]), area(filtered[j]); ai != aj {
			return ai < aj
		}
		if filtered[i].StartLine != filtered[j].StartLine {
			return filtered[i].StartLine < filtered[j].StartLine
		}
		return filtered[i].StartCharacter < filtered[j].StartCharacter
	})

	return filtered
}

// area orders ranges by extent. Lines are weighted so that any range
// spanning fewer lines counts as smaller regardless of character span.
func area(r RangeData) int {
	return (r.EndLine-r.StartLine)*10000 + (r.EndCharacter - r.StartCharacter)
}

// comparePosition returns 0 if the range contains the position (end
// character exclusive), a negative value if the range ends before it, and a
// positive value if the range starts after it.
func comparePosition(r RangeData, line, character int) int {
	if line < r.StartLine {
		return 1
	}

	if line > r.EndLine {
		return -1
	}

	if line == r.StartLine && character < r.StartCharacter {
		return 1
	}

	if line == r.EndLine && character >= r.EndCharacter {
		return -1
	}

	return 0
}
