package suppress

import "sort"

// Axis is an ordered pair (partition dimensions, scan dimension) along
// which latent-revelation must be checked (§3, §4.3). Partition is kept
// sorted lexicographically so it doubles as a stable identity for logging
// and tests.
type Axis struct {
	Partition []string
	ScanDim   string
}

// EnumerateAxes produces every axis (P, s) where P ranges over all
// non-empty subsets of dims and s ranges over the summable dimensions
// (dims minus nonSummable) not in P, ordered by |P| ascending then
// lexicographically (component C3).
func EnumerateAxes(dims []string, nonSummable map[string]bool) []Axis {
	d := append([]string(nil), dims...)
	sort.Strings(d)
	n := len(d)

	var subsets [][]string
	for mask := 1; mask < (1 << n); mask++ {
		var p []string
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				p = append(p, d[i])
			}
		}
		subsets = append(subsets, p)
	}
	sort.SliceStable(subsets, func(i, j int) bool {
		if len(subsets[i]) != len(subsets[j]) {
			return len(subsets[i]) < len(subsets[j])
		}
		return lexLess(subsets[i], subsets[j])
	})

	var axes []Axis
	for _, p := range subsets {
		inP := make(map[string]bool, len(p))
		for _, name := range p {
			inP[name] = true
		}
		var scanCandidates []string
		for _, dd := range d {
			if inP[dd] || nonSummable[dd] {
				continue
			}
			scanCandidates = append(scanCandidates, dd)
		}
		sort.Strings(scanCandidates)
		for _, s := range scanCandidates {
			axes = append(axes, Axis{Partition: p, ScanDim: s})
		}
	}
	return axes
}

// lexLess reports whether a sorts before b, comparing element-wise (both
// slices are assumed equal length and individually sorted).
func lexLess(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
