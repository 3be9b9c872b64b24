package suppress

import (
	"sort"
	"strings"
)

// Row is one aggregated cell: a unique dimension tuple with its incidence
// and the redaction bookkeeping the engine accumulates (component C1's
// record shape, data model §3).
type Row struct {
	Dims            Projection
	Incidence       int
	IsAnonymous     bool
	IsRedacted      bool
	RedactionReason string
	PeerGroup       *ProjectionSet
	RedactedPeers   *ProjectionSet
}

func newRow(dims Projection, incidence int) *Row {
	return &Row{
		Dims:          dims,
		Incidence:     incidence,
		PeerGroup:     NewProjectionSet(),
		RedactedPeers: NewProjectionSet(),
	}
}

// RowStore is the typed in-memory table described in §4.1: rows keyed by
// their full dimension tuple, with a stable-order iteration primitive used
// by the axis-scan engine.
type RowStore struct {
	dims  []string // D, in configured order
	order []string // insertion order, by row key
	rows  map[string]*Row
}

// NewRowStore creates an empty store over the given ordered dimension set.
func NewRowStore(dims []string) *RowStore {
	return &RowStore{
		dims: append([]string(nil), dims...),
		rows: make(map[string]*Row),
	}
}

func (rs *RowStore) key(dims Projection) string {
	var b strings.Builder
	for i, d := range rs.dims {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(d)
		b.WriteByte('=')
		v, ok := dims[d]
		if !ok || v == "" {
			v = NullValue
		}
		b.WriteString(v)
	}
	return b.String()
}

// Put inserts row, keyed by its full dimension tuple. It returns
// ErrMalformedInput if the tuple is already present (duplicate primary
// key, forbidden by the dataset invariants in §3).
func (rs *RowStore) Put(row *Row) error {
	k := rs.key(row.Dims)
	if _, exists := rs.rows[k]; exists {
		return dupTupleError(k)
	}
	rs.rows[k] = row
	rs.order = append(rs.order, k)
	return nil
}

// Get looks up the row with the given full dimension tuple.
func (rs *RowStore) Get(dims Projection) (*Row, bool) {
	r, ok := rs.rows[rs.key(dims)]
	return r, ok
}

// All returns every row in insertion order.
func (rs *RowStore) All() []*Row {
	out := make([]*Row, 0, len(rs.order))
	for _, k := range rs.order {
		out = append(out, rs.rows[k])
	}
	return out
}

// Len reports the row count.
func (rs *RowStore) Len() int {
	return len(rs.rows)
}

// Window is one partition's rows, ordered for an axis scan: grouped by a
// shared partition-dimension value tuple, then sorted by the scan
// dimension ascending with the remaining dimensions as a stable tie-break.
type Window struct {
	PartitionKey string
	Rows         []*Row
}

// IterSorted groups all rows by partitionDims and orders each group by
// scanDim ascending, breaking ties by every other dimension (lexicographic
// by name, then by value) as required for deterministic window scans
// (§4.1). Partitions are returned in a deterministic (sorted) order.
func (rs *RowStore) IterSorted(partitionDims []string, scanDim string) []Window {
	inP := make(map[string]bool, len(partitionDims))
	for _, d := range partitionDims {
		inP[d] = true
	}
	tieBreak := make([]string, 0, len(rs.dims))
	for _, d := range rs.dims {
		if d == scanDim || inP[d] {
			continue
		}
		tieBreak = append(tieBreak, d)
	}
	sort.Strings(tieBreak)

	groups := make(map[string][]*Row)
	for _, row := range rs.All() {
		pk := groupKey(partitionDims, row.Dims)
		groups[pk] = append(groups[pk], row)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Window, 0, len(keys))
	for _, pk := range keys {
		rows := append([]*Row(nil), groups[pk]...)
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].Dims[scanDim], rows[j].Dims[scanDim]
			if a != b {
				return a < b
			}
			for _, d := range tieBreak {
				av, bv := rows[i].Dims[d], rows[j].Dims[d]
				if av != bv {
					return av < bv
				}
			}
			return false
		})
		out = append(out, Window{PartitionKey: pk, Rows: rows})
	}
	return out
}

// groupKey builds a partition key from names in the given (already sorted)
// order, independent of RowStore's full dimension ordering.
func groupKey(names []string, dims Projection) string {
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(dims[n])
	}
	return b.String()
}
