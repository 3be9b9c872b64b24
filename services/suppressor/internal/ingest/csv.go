// Package ingest reads and writes the tabular aggregate the suppression
// engine operates on. §6 of the core engine leaves parsing to an external
// collaborator; this is that collaborator's CSV half.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Ap3pp3rs94/cellsuppress/pkg/suppress"
)

// ReadCSV parses r into suppress.Record values. The header row names every
// column; dimension and incidence columns are looked up by name from cfg,
// everything else is dropped. Incidence cells are parsed as integers up
// front so a malformed file fails fast with the offending row number,
// rather than surfacing as an opaque suppress.ErrMalformedInput later.
func ReadCSV(r io.Reader, cfg suppress.Config) ([]suppress.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, d := range cfg.Dimensions {
		if _, ok := col[d]; !ok {
			return nil, fmt.Errorf("ingest: missing dimension column %q", d)
		}
	}
	if _, ok := col[cfg.IncidenceColumn]; !ok {
		return nil, fmt.Errorf("ingest: missing incidence column %q", cfg.IncidenceColumn)
	}

	var records []suppress.Record
	rowNum := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: %w", rowNum, err)
		}
		rowNum++

		rec := make(suppress.Record, len(cfg.Dimensions)+1)
		for _, d := range cfg.Dimensions {
			rec[d] = row[col[d]]
		}
		raw := strings.TrimSpace(row[col[cfg.IncidenceColumn]])
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: incidence %q is not an integer", rowNum, raw)
		}
		rec[cfg.IncidenceColumn] = n
		records = append(records, rec)
	}
	return records, nil
}

// WriteCSV renders a Result as CSV: the configured dimensions, the
// rendered value column (numeric or the redaction sentinel), and the
// redaction reason for audit trails.
func WriteCSV(w io.Writer, result *suppress.Result, cfg suppress.Config) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, cfg.Dimensions...), cfg.IncidenceColumn, "is_redacted", "redaction_reason")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("ingest: writing header: %w", err)
	}
	for _, row := range result.Rows {
		record := make([]string, 0, len(header))
		for _, d := range cfg.Dimensions {
			record = append(record, row.Dims[d])
		}
		record = append(record, row.Value, strconv.FormatBool(row.IsRedacted), row.RedactionReason)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("ingest: writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
