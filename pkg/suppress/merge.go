package suppress

// applyRedaction merges one pending redaction (C4's output) into its target
// row (component C5, §4.5). Merging is idempotent: peer-group and
// redacted-peers entries union in by canonical key, and the reason is
// first-writer-wins -- a row only ever gets the reason that first caused it
// to be redacted, even if later passes find additional justifications.
func applyRedaction(rs *RowStore, r redaction) bool {
	row, ok := rs.rows[r.targetKey]
	if !ok {
		return false
	}

	changed := !row.IsRedacted
	row.IsRedacted = true
	if row.RedactionReason == "" {
		row.RedactionReason = r.reason
	}

	before := row.PeerGroup.Len() + row.RedactedPeers.Len()
	row.PeerGroup.Add(r.peerGroup)
	row.PeerGroup.Add(r.previousPeerGroup)
	row.RedactedPeers.Add(r.redactedPeers)
	row.RedactedPeers.Add(r.previousRedactedPeers)
	after := row.PeerGroup.Len() + row.RedactedPeers.Len()

	return changed || after != before
}

// mergeAll applies every pending redaction from one axis scan, returning
// true if any row's state actually changed.
func mergeAll(rs *RowStore, redactions []redaction) bool {
	changed := false
	for _, r := range redactions {
		if applyRedaction(rs, r) {
			changed = true
		}
	}
	return changed
}
