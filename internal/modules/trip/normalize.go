package trip

// Normalize prepares a server trip for a store that holds nothing of it yet. Fields the
// backend may omit get the defaults the engine would have produced; a copy that still
// breaks an invariant (a matched trip without its driver) is returned as an error.
func Normalize(remote *Trip) (*Trip, error) {
	if remote == nil {
		return nil, nil
	}
	next := remote.Clone()
	fillDefaults(next)
	if next.Status.Draft() || next.Status == StatusIdle {
		return nil, invariantf("server trip %s reported in %q", next.ID, next.Status)
	}
	if err := CheckInvariants(nil, next); err != nil {
		return nil, err
	}
	return next, nil
}

func fillDefaults(t *Trip) {
	switch t.Status {
	case StatusPaid, StatusInProgress, StatusCompleted:
		// the flow only reaches these through a settled payment
		if t.PaymentStatus == "" || t.Status == StatusPaid {
			t.PaymentStatus = PaymentPaid
		}
	}
	if t.PaymentStatus == "" {
		t.PaymentStatus = PaymentUnpaid
	}
	if t.Status == StatusCancelled && t.Cancellation == nil {
		t.Cancellation = &Cancellation{By: CancelledByProvider}
	}
	if t.Status != StatusCancelled {
		t.Cancellation = nil
	}
	if t.Status == StatusSearching || t.Status == StatusExpired {
		t.Driver = nil
	}
	if t.Scheduled && t.ScheduledFor == nil {
		t.Scheduled = false
	}
}
