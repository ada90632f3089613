package trip

// CheckInvariants validates next against the previous snapshot. A nil next clears the store.
func CheckInvariants(prev, next *Trip) error {
	if next == nil {
		return nil
	}
	if !next.Status.Valid() || next.Status == StatusIdle {
		return invariantf("invalid status %q", next.Status)
	}
	if !next.Kind.Valid() {
		return invariantf("invalid kind %q", next.Kind)
	}
	if next.Status.Draft() {
		if next.ID != "" {
			return invariantf("draft in %s must not carry an id", next.Status)
		}
	} else if next.ID == "" {
		return invariantf("trip in %s requires an id", next.Status)
	}
	if next.Status.HasDriver() && next.Driver == nil {
		return invariantf("trip in %s requires a driver", next.Status)
	}
	if (next.Status == StatusSearching || next.Status == StatusExpired) && next.Driver != nil {
		return invariantf("trip in %s must not carry a driver", next.Status)
	}
	if (next.Status == StatusCancelled) != (next.Cancellation != nil) {
		return invariantf("cancellation must be present exactly when cancelled")
	}
	if next.Scheduled && next.ScheduledFor == nil {
		return invariantf("scheduled trip requires scheduled_for")
	}
	if next.Status == StatusPaid && next.PaymentStatus != PaymentPaid {
		return invariantf("paid trip must have payment status paid")
	}

	if prev == nil {
		return nil
	}
	if prev.ID != "" && prev.ID == next.ID {
		for m, at := range prev.Timestamps {
			got, ok := next.Timestamps[m]
			if !ok || !got.Equal(at) {
				return invariantf("timestamp %s rewritten", m)
			}
		}
		return nil
	}
	// a different trip may only take over from a draft or a closed one
	if prev.ID != "" && !prev.Status.Terminal() && prev.Status != StatusExpired {
		return invariantf("active trip %s cannot be replaced by %q", prev.ID, next.ID)
	}
	return nil
}
