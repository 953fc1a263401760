// Package dlqsvc parks failed deliveries and drives their retry
// lifecycle with exponential backoff, manual resolution, and purging of
// resolved entries.
package dlqsvc
