package suppress

import (
	"sort"
	"strconv"
)

// OutputRow is one row of the projected result (component C8, §4.8):
// incidence is replaced by the redaction sentinel wherever IsRedacted is
// set, and peer bookkeeping is rendered in canonical, deterministic order.
type OutputRow struct {
	Dims            Projection
	Incidence       int
	Value           string
	IsRedacted      bool
	IsAnonymous     bool
	RedactionReason string
	PeerGroup       []Projection
	RedactedPeers   []Projection
}

// Stats summarizes one run of the engine for reporting and audit logging.
type Stats struct {
	TotalCells        int
	RedactedCells     int
	NonAnonymousCells int
	SuppressionRate   float64
	Threshold         int
	Dimensions        []string
	Passes            int
}

// Result is the full output of Suppress: the projected rows plus run
// statistics.
type Result struct {
	Rows  []OutputRow
	Stats Stats
}

// projectOutput builds the final output: rows sorted lexicographically by
// Config.Dimensions, with incidence masked wherever redaction applies.
func projectOutput(rs *RowStore, cfg Config, passes int) Result {
	rows := rs.All()
	sort.SliceStable(rows, func(i, j int) bool {
		for _, d := range cfg.Dimensions {
			a, b := rows[i].Dims[d], rows[j].Dims[d]
			if a != b {
				return a < b
			}
		}
		return false
	})

	out := make([]OutputRow, 0, len(rows))
	redacted := 0
	nonAnonymous := 0
	for _, row := range rows {
		if row.IsRedacted {
			redacted++
		}
		if !row.IsAnonymous {
			nonAnonymous++
		}
		o := OutputRow{
			Dims:            row.Dims.Clone(),
			Incidence:       row.Incidence,
			IsRedacted:      row.IsRedacted,
			IsAnonymous:     row.IsAnonymous,
			RedactionReason: row.RedactionReason,
			PeerGroup:       row.PeerGroup.Sorted(),
			RedactedPeers:   row.RedactedPeers.Sorted(),
		}
		if row.IsRedacted {
			o.Value = cfg.RedactionSentinel
		} else {
			o.Value = strconv.Itoa(row.Incidence)
		}
		out = append(out, o)
	}

	total := len(rows)
	rate := 0.0
	if total > 0 {
		rate = float64(redacted) / float64(total)
	}

	return Result{
		Rows: out,
		Stats: Stats{
			TotalCells:        total,
			RedactedCells:     redacted,
			NonAnonymousCells: nonAnonymous,
			SuppressionRate:   rate,
			Threshold:         cfg.Threshold,
			Dimensions:        append([]string(nil), cfg.Dimensions...),
			Passes:            passes,
		},
	}
}
