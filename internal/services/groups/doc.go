// Package groupsvc is the consumer-group coordinator: membership with
// heartbeats and eviction, contiguous-block partition assignment, offset
// commits and resets, and per-partition lag.
package groupsvc
