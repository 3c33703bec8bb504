// Package snapshot persists the audited lifecycle state of control blocks
// so the transition journal can be truncated, and provides the epoch
// readers that keep retired objects from being recycled while a reader
// may still observe them.
package snapshot
