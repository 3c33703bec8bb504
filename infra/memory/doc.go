// Package memory provides the low-level primitives for object reuse
// and safe reclamation: typed pools, a bounded retire ring, and global
// epoch tracking.
//
// Release strategies in domain/rc use these to recycle managed objects
// once no epoch reader can still observe them.
package memory
