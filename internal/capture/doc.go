// Package capture implements the per-frame admission-control pipeline: a
// cascade of cheap-to-expensive filters (motion presence, object detection,
// spatial gating, temporal rate limiting, near-duplicate suppression) that
// decides whether a frame contains a new, previously-unseen vehicle in the
// capture zone.
//
// One Pipeline instance serves one camera. All cross-frame state (the
// background model, the dedup cache, the rate-limit clock) is owned
// exclusively by that instance and mutated only from its processing
// goroutine; running multiple cameras means multiple independent instances,
// with no shared mutable state and no locking between them.
package capture
