package domain

// NextProjection applies the monotonicity rule: the projected status follows
// the most recent accepted event, except that a terminal state never regresses.
// The event itself is still appended to the audit trail either way; this
// function only decides the projection.
func NextProjection(current, incoming PayoutStatus) (next PayoutStatus, moved bool) {
	if current.IsTerminal() {
		return current, false
	}
	if incoming == current {
		return current, false
	}
	// pending never re-emerges once the instruction was acknowledged
	if incoming == PayoutStatusPending && current == PayoutStatusProcessing {
		return current, false
	}
	return incoming, true
}

// ReplayProjection computes the projected status from an ordered audit trail,
// WAL-style. Events must be ordered oldest first. Used to cross-check a
// stored projection against its events during reconciliation.
func ReplayProjection(initial PayoutStatus, events []StatusEvent) PayoutStatus {
	status := initial
	for _, ev := range events {
		status, _ = NextProjection(status, ev.MappedStatus)
	}
	return status
}
