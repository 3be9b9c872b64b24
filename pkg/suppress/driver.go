package suppress

import "fmt"

// maxPassMultiplier bounds the fixed-point loop: no real dataset needs more
// than a small multiple of its row count to converge, since each pass that
// changes anything redacts at least one previously-unredacted row and the
// redacted set only grows.
const maxPassMultiplier = 2

// ProgressEvent reports one axis scan's effect within a fixed-point pass,
// for callers (the HTTP live-progress feed) that want to observe a
// long-running suppression job instead of only seeing its final result.
type ProgressEvent struct {
	Pass           int
	Axis           Axis
	NewlyRedacted  int
}

// Suppress runs the full pipeline (C1 through C8): ingest raw records,
// classify primary small cells, propagate latent-revelation redaction to a
// fixed point (unless FirstOrderOnly is set), and project the result.
func Suppress(records []Record, cfg Config) (*Result, error) {
	return SuppressWithProgress(records, cfg, nil)
}

// SuppressWithProgress is Suppress with an optional per-axis progress
// callback. onProgress, if non-nil, is invoked synchronously after every
// axis scan within every pass -- it must not retain the Axis value's
// slices beyond the call.
func SuppressWithProgress(records []Record, cfg Config, onProgress func(ProgressEvent)) (*Result, error) {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rs, err := buildRowStore(records, cfg)
	if err != nil {
		return nil, err
	}

	classify(rs, cfg)

	passes := 0
	if !cfg.FirstOrderOnly {
		passes, err = propagate(rs, cfg, onProgress)
		if err != nil {
			return nil, err
		}
	}

	result := projectOutput(rs, cfg, passes)
	return &result, nil
}

// propagate runs component C6: repeated full passes over every axis
// (component C3's enumeration) until a pass applies no new redaction, i.e.
// the fixed point described in §5. Each pass snapshots the redaction state
// at its start -- masked_value_count for every axis scan within that pass
// is computed against this snapshot, per §9 -- while the trigger's
// previous_cell_redacted condition still reads live state, so a redaction
// applied by an earlier axis in the same pass is visible to a later axis.
// Each pass also runs repairSingletons after its axis scans, closing any
// partition the forward-only scan left with exactly one redacted row.
func propagate(rs *RowStore, cfg Config, onProgress func(ProgressEvent)) (int, error) {
	axes := EnumerateAxes(cfg.Dimensions, cfg.nonSummableSet())
	limit := rs.Len() * maxPassMultiplier
	if limit == 0 {
		limit = maxPassMultiplier
	}

	pass := 0
	for {
		pass++
		if pass > limit {
			return pass, fmt.Errorf("%w: fixed-point loop exceeded %d passes", ErrInvariantViolation, limit)
		}

		snapshot := snapshotRedacted(rs)
		changed := false
		for _, ax := range axes {
			redactions := scanAxis(rs, ax, cfg, snapshot)
			newlyRedacted := 0
			for _, red := range redactions {
				if row, ok := rs.rows[red.targetKey]; ok && !row.IsRedacted {
					newlyRedacted++
				}
			}
			if mergeAll(rs, redactions) {
				changed = true
			}
			if onProgress != nil {
				onProgress(ProgressEvent{Pass: pass, Axis: ax, NewlyRedacted: newlyRedacted})
			}
		}

		// The forward-only window scan above cannot close a partition
		// whose sole redacted row sorts last along every axis; repair
		// those before checking for the fixed point, so the loop keeps
		// running as long as either step still has work to do.
		if mergeAll(rs, repairSingletons(rs, cfg, axes)) {
			changed = true
		}

		if !changed {
			return pass, nil
		}
	}
}

// snapshotRedacted captures IsRedacted for every row, keyed by row key, as
// of the moment it's called.
func snapshotRedacted(rs *RowStore) map[string]bool {
	out := make(map[string]bool, rs.Len())
	for k, row := range rs.rows {
		out[k] = row.IsRedacted
	}
	return out
}
