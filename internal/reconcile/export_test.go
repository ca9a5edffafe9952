package reconcile

import "time"

// SetNow replaces the clock used for report timestamps and Clear's window.
func (r *Reconciler) SetNow(now func() time.Time) { r.now = now }
