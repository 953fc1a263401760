// Package eventsvc is the data plane: publishing to topic partitions,
// plain and group-cursor consumption with optional CEL filtering,
// acknowledgement tracking under a visibility timeout, and live fan-out
// to subscribers.
package eventsvc
