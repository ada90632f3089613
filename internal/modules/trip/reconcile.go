package trip

// Reconcile merges a server copy of the trip into the local one. The bool is false when
// remote cannot be adopted: a different trip, or a terminal local trip the server reports
// in another status. A terminal trip still takes the server's final details.
func Reconcile(local, remote *Trip) (*Trip, bool) {
	if local == nil || remote == nil || remote.ID == "" || local.ID != remote.ID {
		return nil, false
	}
	if local.Status.Terminal() && remote.Status != local.Status {
		return nil, false
	}

	next := remote.Clone()
	if !remote.Status.Valid() || remote.Status.Draft() || remote.Status == StatusIdle {
		next.Status = local.Status
	}
	behind := !remote.Status.Terminal() && next.Status.Rank() < local.Status.Rank()
	if behind {
		next.Status = local.Status
		next.PaymentStatus = local.PaymentStatus
		next.Cancellation = nil
	}
	if next.Status == StatusCancelled && next.Cancellation == nil {
		if local.Cancellation != nil {
			c := *local.Cancellation
			next.Cancellation = &c
		} else {
			next.Cancellation = &Cancellation{By: CancelledByProvider}
		}
	}
	if next.Status != StatusCancelled {
		next.Cancellation = nil
	}
	if next.Kind == "" {
		next.Kind = local.Kind
	}
	if next.Package == nil && local.Package != nil {
		p := *local.Package
		next.Package = &p
	}
	if next.DistanceKm == 0 {
		next.DistanceKm, next.DurationMins = local.DistanceKm, local.DurationMins
	}
	if next.Driver == nil && local.Driver != nil && next.Status.HasDriver() {
		d := *local.Driver
		next.Driver = &d
	}
	if !next.Status.HasDriver() && next.Status != StatusCancelled {
		next.Driver = nil
	}
	if next.Status == StatusPaid || next.Status == StatusInProgress || next.Status == StatusCompleted {
		if local.PaymentStatus == PaymentPaid {
			next.PaymentStatus = PaymentPaid
		}
	}
	if next.PaymentStatus == "" {
		next.PaymentStatus = local.PaymentStatus
	}
	if next.Status == StatusPaid {
		next.PaymentStatus = PaymentPaid
	}
	if next.Scheduled && next.ScheduledFor == nil {
		next.ScheduledFor = local.Clone().ScheduledFor
		next.Scheduled = next.ScheduledFor != nil
	}
	for m, at := range local.Timestamps {
		next.Timestamps[m] = at
	}
	fillDefaults(next)
	return next, true
}
