package suppress

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is one input row: a mapping from column name to value, as
// described by §6. Column names must include every name in
// Config.Dimensions plus Config.IncidenceColumn; other columns are
// ignored.
type Record map[string]any

// buildRowStore ingests raw records into a RowStore, applying the
// dimension-value and incidence coercion rules from §6 and rejecting
// malformed rows per §7.
func buildRowStore(records []Record, cfg Config) (*RowStore, error) {
	rs := NewRowStore(cfg.Dimensions)
	for i, rec := range records {
		dims := make(Projection, len(cfg.Dimensions))
		for _, d := range cfg.Dimensions {
			v, ok := rec[d]
			if !ok || v == nil {
				dims[d] = NullValue
				continue
			}
			dims[d] = fmt.Sprintf("%v", v)
		}
		incidence, err := coerceIncidence(rec[cfg.IncidenceColumn])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %s", ErrMalformedInput, i, err)
		}
		if err := rs.Put(newRow(dims, incidence)); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func coerceIncidence(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nonNegative(t)
	case int32:
		return int(t), nonNegative(int(t))
	case int64:
		return int(t), nonNegative(int(t))
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("incidence %v is not an integer", t)
		}
		return int(t), nonNegative(int(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("incidence %q is not an integer", t)
		}
		return n, nonNegative(n)
	case nil:
		return 0, fmt.Errorf("incidence is missing")
	default:
		return 0, fmt.Errorf("incidence has unsupported type %T", v)
	}
}

func nonNegative(n int) error {
	if n < 0 {
		return fmt.Errorf("incidence %d is negative", n)
	}
	return nil
}
