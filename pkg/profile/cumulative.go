package profile

import "sort"

// cumulativeTop returns the smallest prefix of values (by descending
// frequency) whose cumulative share of the total count is >= threshold,
// grounded on build_profiles.py's _cumulative_top. threshold must be in
// (0, 1]; values with equal frequency are ordered by first appearance to
// keep the result deterministic.
func cumulativeTop(values []string, threshold float64) []string {
	if len(values) == 0 {
		return nil
	}

	order := make([]string, 0)
	counts := make(map[string]int)
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	total := len(values)
	var cumulative int
	var out []string
	for _, v := range order {
		cumulative += counts[v]
		out = append(out, v)
		if float64(cumulative)/float64(total) >= threshold {
			break
		}
	}
	return out
}
