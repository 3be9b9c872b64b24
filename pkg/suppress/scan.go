package suppress

import "encoding/json"

// redaction is one pending additional redaction produced by scanning a
// single axis: the target row's key plus the peer-group and
// redacted-peers entries to merge into it, and the reason to attach if it
// doesn't already have one (component C4's output record, §4.4).
type redaction struct {
	targetKey             string
	peerGroup             Projection
	previousPeerGroup     Projection
	redactedPeers         Projection
	previousRedactedPeers Projection
	reason                string
}

// scanAxis runs the window scan for one axis and returns every newly
// triggered redaction. passStartRedacted is the redaction state as of the
// start of the current fixed-point pass, keyed by row key: per §9,
// masked_value_count is partition-global and frozen at pass start, not
// re-derived as later axes in the same pass apply their own merges.
// previous_cell_redacted (condition 1 of the trigger) still reads live
// row state, so propagation within a pass still reaches a later axis --
// only the *count* used for the masked-value-count branch is frozen.
func scanAxis(rs *RowStore, ax Axis, cfg Config, passStartRedacted map[string]bool) []redaction {
	windows := rs.IterSorted(ax.Partition, ax.ScanDim)
	peerDims := append(append([]string{}, ax.Partition...), ax.ScanDim)
	nonSummable := cfg.NonSummableDimensions

	var out []redaction
	for _, win := range windows {
		masked := 0
		for _, row := range win.Rows {
			if passStartRedacted[rs.key(row.Dims)] {
				masked++
			}
		}

		var prev *Row
		runSum := 0
		for _, row := range win.Rows {
			runSum += row.Incidence
			if prev != nil && !row.IsRedacted && prev.IsRedacted {
				if triggered(masked, runSum, prev.Incidence, cfg.Threshold) && sameNonSummable(row.Dims, prev.Dims, nonSummable) {
					out = append(out, buildRedaction(rs, row, prev, peerDims, ax.ScanDim, masked))
				}
			}
			prev = row
		}
	}
	return out
}

// triggered implements the trigger predicate of §4.4, conditions 1-2
// (condition 1, previous_cell_redacted, is checked by the caller before
// invoking this).
func triggered(maskedValueCount, runSum, previousIncidence, threshold int) bool {
	if maskedValueCount < 2 {
		return true
	}
	return runSum-previousIncidence < threshold
}

// sameNonSummable implements trigger condition 3: the current and
// previous row must agree on every non-summable dimension, or the
// "subtraction" has no meaning to a consumer who cannot sum across it.
func sameNonSummable(current, previous Projection, nonSummable []string) bool {
	for _, d := range nonSummable {
		if current[d] != previous[d] {
			return false
		}
	}
	return true
}

func buildRedaction(rs *RowStore, current, previous *Row, peerDims []string, scanDim string, masked int) redaction {
	reason := buildReason(rs, previous, masked)
	return redaction{
		targetKey:             rs.key(current.Dims),
		peerGroup:             project(current.Dims, peerDims),
		previousPeerGroup:     project(previous.Dims, peerDims),
		redactedPeers:         Projection{scanDim: current.Dims[scanDim]},
		previousRedactedPeers: Projection{scanDim: previous.Dims[scanDim]},
		reason:                reason,
	}
}

// repairSingletons closes any singleton-redacted partition left standing
// after the per-axis window scans. The window scan is a one-directional
// LAG translation of §4.4: it only ever redacts the row immediately
// *following* an already-redacted row in ascending scan order. A
// partition where the redacted row sorts *last* under every candidate
// scan dimension has no forward neighbor to redact, so the fixed point
// can converge with a forbidden singleton-redacted partition still in
// place (§8 "Subtraction safety"). propagate runs this repair after the
// axis scans of every pass (§9 Open Question 2): for every axis and partition with
// exactly one redacted row among two or more, force a second redaction
// onto the tie-broken peer -- the visible row whose incidence is
// closest to Threshold, lexicographically-smallest dimension tuple
// breaking ties.
func repairSingletons(rs *RowStore, cfg Config, axes []Axis) []redaction {
	var out []redaction
	for _, ax := range axes {
		peerDims := append(append([]string{}, ax.Partition...), ax.ScanDim)
		for _, win := range rs.IterSorted(ax.Partition, ax.ScanDim) {
			if len(win.Rows) < 2 {
				continue
			}
			redactedIdx := -1
			redactedCount := 0
			for i, row := range win.Rows {
				if row.IsRedacted {
					redactedCount++
					redactedIdx = i
				}
			}
			if redactedCount != 1 {
				continue
			}
			redactedRow := win.Rows[redactedIdx]
			target := closestPeer(win.Rows, redactedIdx, cfg.Threshold, redactedRow.Dims, cfg.NonSummableDimensions)
			if target == nil {
				continue
			}
			out = append(out, buildRedaction(rs, target, redactedRow, peerDims, ax.ScanDim, redactedCount))
		}
	}
	return out
}

// closestPeer picks the forced peer for repairSingletons: the visible row
// (excluding the one already redacted, at redactedIdx) whose incidence is
// nearest Threshold, breaking ties by the lexicographically-smallest
// dimension tuple (§9 Open Question 2). Candidates must agree with the
// already-redacted row on every non-summable dimension, the same
// constraint the window scan's trigger enforces (sameNonSummable) -- a
// partition dimension doesn't bound every axis's window, so without this
// a repair could force a redaction across a non-summable boundary the
// scan itself would never cross.
func closestPeer(rows []*Row, redactedIdx, threshold int, redactedDims Projection, nonSummable []string) *Row {
	var best *Row
	bestDist := -1
	for i, row := range rows {
		if i == redactedIdx || row.IsRedacted {
			continue
		}
		if !sameNonSummable(row.Dims, redactedDims, nonSummable) {
			continue
		}
		dist := absInt(row.Incidence - threshold)
		if best == nil || dist < bestDist || (dist == bestDist && row.Dims.canonicalKey() < best.Dims.canonicalKey()) {
			best = row
			bestDist = dist
		}
	}
	return best
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// buildReason implements the wording contract of §4.4 / §6. It is part of
// the bit-exact external interface; do not rephrase.
func buildReason(rs *RowStore, previous *Row, masked int) string {
	if !previous.IsAnonymous {
		return canonicalRowJSON(previous.Dims, rs.dims) + " was a small cell"
	}
	if masked < 2 {
		return previous.RedactionReason
	}
	return previous.RedactionReason + " and the delta would construct a small population."
}

// canonicalRowJSON renders dims, projected onto order, as stable JSON
// (encoding/json sorts map keys, giving the same bytes on every run).
func canonicalRowJSON(dims Projection, order []string) string {
	m := make(map[string]string, len(order))
	for _, d := range order {
		m[d] = dims[d]
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
