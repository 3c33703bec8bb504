// Package service runs the ownership workload over domain/rc and keeps an
// auditable record of every control block lifecycle transition.
//
// Transitions reach the Tracker through rc.Observer. The Tracker journals
// them, records them in the ledger outbox for broadcast, and folds them into
// the live audit state. Snapshots of that state let the journal be truncated.
package service
