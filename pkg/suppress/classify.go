package suppress

// classify applies the anonymity classifier (C2): every row's
// IsAnonymous flag is set once, at ingestion, and never mutated
// thereafter, even if the row is later redacted by latent-revelation
// propagation. Rows below threshold are primary-redacted immediately.
func classify(rs *RowStore, cfg Config) {
	for _, row := range rs.All() {
		row.IsAnonymous = row.Incidence >= cfg.Threshold
		if row.IsAnonymous {
			continue
		}
		row.IsRedacted = true
		row.RedactionReason = "was a small cell"
		row.PeerGroup.Add(row.Dims.Clone())
	}
}
