package suppress

import (
	"reflect"
	"testing"
)

func rec(age, sex, vet, zip string, count int) Record {
	return Record{"age": age, "sex": sex, "vet": vet, "zip": zip, "count": count}
}

func libraryDonorsConfig() Config {
	return Config{
		Threshold:       11,
		IncidenceColumn: "count",
		Dimensions:      []string{"age", "sex", "vet", "zip"},
	}
}

func libraryDonorsRecords() []Record {
	return []Record{
		rec("35", "M", "Yes", "00000", 3),
		rec("25", "F", "No", "00000", 20),
		rec("15", "M", "Yes", "00001", 12),
		rec("55", "F", "No", "00001", 13),
	}
}

func findRow(result *Result, age, sex, vet, zip string) *OutputRow {
	for i := range result.Rows {
		r := &result.Rows[i]
		if r.Dims["age"] == age && r.Dims["sex"] == sex && r.Dims["vet"] == vet && r.Dims["zip"] == zip {
			return r
		}
	}
	return nil
}

// S1 -- Library donors. Row 1 (age 35) is a primary small cell; it sorts
// last under every candidate scan dimension (age, sex, vet) within the
// zip=00000 partition, so the forward-only window scan has no forward
// neighbor to redact it into -- repairSingletons is what closes this one,
// forcing exactly the one other row in that partition (age 25) per the
// tie-break (§9 Open Question 2; only one candidate peer exists here).
func TestSuppressLibraryDonors(t *testing.T) {
	cfg := libraryDonorsConfig()
	result, err := Suppress(libraryDonorsRecords(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row1 := findRow(result, "35", "M", "Yes", "00000")
	if row1 == nil || !row1.IsRedacted {
		t.Fatalf("expected row 1 (age 35) redacted")
	}
	if row1.RedactionReason != "was a small cell" {
		t.Fatalf("expected primary reason, got %q", row1.RedactionReason)
	}
	if row1.Value != cfg.RedactionSentinel && row1.Value != DefaultRedactionSentinel {
		t.Fatalf("expected sentinel value, got %q", row1.Value)
	}

	row2 := findRow(result, "25", "F", "No", "00000")
	if row2 == nil || !row2.IsRedacted {
		t.Fatalf("expected the tie-broken peer (age 25) redacted to avoid a singleton")
	}

	if result.Stats.RedactedCells != 2 {
		t.Fatalf("expected exactly one additional redaction, got %d redacted", result.Stats.RedactedCells)
	}

	assertNoSingletonRedactedPartition(t, result, cfg)
}

// S2 -- first_order_only=true redacts exactly the primary small cells.
func TestSuppressFirstOrderOnly(t *testing.T) {
	cfg := libraryDonorsConfig()
	cfg.FirstOrderOnly = true
	result, err := Suppress(libraryDonorsRecords(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.RedactedCells != 1 {
		t.Fatalf("expected exactly 1 redacted cell, got %d", result.Stats.RedactedCells)
	}
	row1 := findRow(result, "35", "M", "Yes", "00000")
	if row1 == nil || !row1.IsRedacted {
		t.Fatalf("expected row 1 redacted")
	}
}

// S4 -- no small cells: zero redactions.
func TestSuppressNoSmallCells(t *testing.T) {
	cfg := libraryDonorsConfig()
	records := []Record{
		rec("35", "M", "Yes", "00000", 30),
		rec("25", "F", "No", "00000", 20),
		rec("15", "M", "Yes", "00001", 12),
		rec("55", "F", "No", "00001", 13),
	}
	result, err := Suppress(records, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.RedactedCells != 0 {
		t.Fatalf("expected 0 redacted cells, got %d", result.Stats.RedactedCells)
	}
}

// S5 -- all small: every row redacted with the primary reason, peer group
// is each row's own dims.
func TestSuppressAllSmall(t *testing.T) {
	cfg := libraryDonorsConfig()
	records := []Record{
		rec("35", "M", "Yes", "00000", 3),
		rec("25", "F", "No", "00000", 4),
		rec("15", "M", "Yes", "00001", 2),
		rec("55", "F", "No", "00001", 5),
	}
	result, err := Suppress(records, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.RedactedCells != len(records) {
		t.Fatalf("expected every row redacted, got %d/%d", result.Stats.RedactedCells, len(records))
	}
	for _, row := range result.Rows {
		if row.RedactionReason != "was a small cell" {
			t.Fatalf("expected primary reason for %v, got %q", row.Dims, row.RedactionReason)
		}
		if len(row.PeerGroup) != 1 {
			t.Fatalf("expected singleton peer group (own dims) for %v, got %v", row.Dims, row.PeerGroup)
		}
	}
}

// S3-lite -- non-summable dimension confines peer redaction to its own
// value: a month boundary never appears in a peer_group entry.
func TestSuppressNonSummableDimensionConfinesPeers(t *testing.T) {
	cfg := Config{
		Threshold:             11,
		IncidenceColumn:       "count",
		Dimensions:            []string{"age_band", "county", "month"},
		NonSummableDimensions: []string{"month"},
	}
	records := []Record{
		{"age_band": "70_plus", "county": "B", "month": "2024-11", "count": 6},
		{"age_band": "70_plus", "county": "A", "month": "2024-11", "count": 40},
		{"age_band": "60_69", "county": "B", "month": "2024-11", "count": 30},
		{"age_band": "70_plus", "county": "B", "month": "2024-12", "count": 25},
		{"age_band": "60_69", "county": "B", "month": "2024-12", "count": 30},
	}
	result, err := Suppress(records, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, row := range result.Rows {
		ownMonth := row.Dims["month"]
		for _, peer := range row.PeerGroup {
			if m, ok := peer["month"]; ok && m != ownMonth {
				t.Fatalf("peer_group for %v crosses month boundary: %v", row.Dims, peer)
			}
		}
	}
}

// S6 -- running-sum leak with a self-constructed, internally-consistent
// numeric example (three rows in a partition: one redacted, two visible).
// Along the county=B window the delta after band 2 is 19-5 = 14 >= 11, so
// the running-sum branch does not fire; the lone redacted cell
// (masked_value_count = 1) is what forces the second redaction.
func TestSuppressRunningSumLeakForcesSecondRedaction(t *testing.T) {
	cfg := Config{
		Threshold:       11,
		IncidenceColumn: "count",
		Dimensions:      []string{"band", "county"},
	}
	records := []Record{
		{"band": "1", "county": "B", "count": 5},  // primary-redacted, < threshold
		{"band": "2", "county": "B", "count": 14}, // follows the only redacted cell: forced
		{"band": "3", "county": "B", "count": 20},
	}
	result, err := Suppress(records, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.RedactedCells < 2 {
		t.Fatalf("expected at least 2 redacted cells to prevent the leak, got %d", result.Stats.RedactedCells)
	}
	assertNoSingletonRedactedPartition(t, result, cfg)
}

// assertNoSingletonRedactedPartition checks the subtraction-safety
// invariant (§8): for every axis this engine considers, no partition ends
// up with exactly one redacted row.
func assertNoSingletonRedactedPartition(t *testing.T, result *Result, cfg Config) {
	t.Helper()
	axes := EnumerateAxes(cfg.Dimensions, cfg.nonSummableSet())
	rs := NewRowStore(cfg.Dimensions)
	for _, row := range result.Rows {
		r := newRow(row.Dims.Clone(), 0)
		r.IsRedacted = row.IsRedacted
		if err := rs.Put(r); err != nil {
			t.Fatalf("rebuild row store: %v", err)
		}
	}
	for _, ax := range axes {
		for _, win := range rs.IterSorted(ax.Partition, ax.ScanDim) {
			if len(win.Rows) < 2 {
				// A partition of size 1 publishes no marginal total to
				// subtract against; there is nothing to leak.
				continue
			}
			redacted := 0
			for _, row := range win.Rows {
				if row.IsRedacted {
					redacted++
				}
			}
			if redacted == 1 {
				t.Fatalf("axis %+v partition %q has a singleton redacted row", ax, win.PartitionKey)
			}
		}
	}
}

// Monotonicity under tighter threshold: redacted set only grows.
func TestSuppressMonotonicUnderTighterThreshold(t *testing.T) {
	records := libraryDonorsRecords()
	low := libraryDonorsConfig()
	low.Threshold = 4
	high := libraryDonorsConfig()
	high.Threshold = 21

	lowResult, err := Suppress(records, low)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	highResult, err := Suppress(records, high)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lowRedacted := redactedKeySet(lowResult)
	highRedacted := redactedKeySet(highResult)
	for k := range lowRedacted {
		if !highRedacted[k] {
			t.Fatalf("row %s redacted at threshold %d but not at tighter threshold %d", k, low.Threshold, high.Threshold)
		}
	}
}

func redactedKeySet(r *Result) map[string]bool {
	out := make(map[string]bool)
	for _, row := range r.Rows {
		if row.IsRedacted {
			out[row.Dims.canonicalKey()] = true
		}
	}
	return out
}

// Idempotence: feeding the output back through the engine (sentinel
// incidences replaced with 0) produces the same redaction set.
func TestSuppressIdempotent(t *testing.T) {
	cfg := libraryDonorsConfig()
	result, err := Suppress(libraryDonorsRecords(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var recovered []Record
	for _, row := range result.Rows {
		incidence := row.Incidence
		if row.IsRedacted {
			incidence = 0
		}
		recovered = append(recovered, Record{
			"age": row.Dims["age"], "sex": row.Dims["sex"],
			"vet": row.Dims["vet"], "zip": row.Dims["zip"],
			"count": incidence,
		})
	}

	second, err := Suppress(recovered, cfg)
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}

	first := redactedKeySet(result)
	again := redactedKeySet(second)
	if len(first) != len(again) {
		t.Fatalf("redacted set changed on idempotence check: %d vs %d", len(first), len(again))
	}
	for k := range first {
		if !again[k] {
			t.Fatalf("row %s redacted originally but not on second pass", k)
		}
	}
}

// Determinism: two runs over the same input produce byte-identical stats
// and row ordering.
func TestSuppressDeterministic(t *testing.T) {
	cfg := libraryDonorsConfig()
	records := libraryDonorsRecords()

	a, err := Suppress(records, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Suppress(records, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.Rows) != len(b.Rows) {
		t.Fatalf("row count differs across runs")
	}
	for i := range a.Rows {
		if a.Rows[i].Dims.canonicalKey() != b.Rows[i].Dims.canonicalKey() {
			t.Fatalf("row order differs at index %d", i)
		}
		if a.Rows[i].IsRedacted != b.Rows[i].IsRedacted || a.Rows[i].Value != b.Rows[i].Value {
			t.Fatalf("row %d differs across runs", i)
		}
	}
	if !reflect.DeepEqual(a.Stats, b.Stats) {
		t.Fatalf("stats differ across runs: %+v vs %+v", a.Stats, b.Stats)
	}
}

func TestSuppressRejectsInvalidConfig(t *testing.T) {
	cfg := libraryDonorsConfig()
	cfg.Threshold = 0
	if _, err := Suppress(libraryDonorsRecords(), cfg); err == nil {
		t.Fatalf("expected error for invalid config")
	}
}

func TestSuppressRejectsMalformedIncidence(t *testing.T) {
	cfg := libraryDonorsConfig()
	records := []Record{rec("35", "M", "Yes", "00000", 3)}
	records[0]["count"] = "not-a-number"
	if _, err := Suppress(records, cfg); err == nil {
		t.Fatalf("expected error for malformed incidence")
	}
}

func TestSuppressRejectsDuplicateTuple(t *testing.T) {
	cfg := libraryDonorsConfig()
	records := []Record{
		rec("35", "M", "Yes", "00000", 3),
		rec("35", "M", "Yes", "00000", 5),
	}
	if _, err := Suppress(records, cfg); err == nil {
		t.Fatalf("expected error for duplicate dimension tuple")
	}
}
