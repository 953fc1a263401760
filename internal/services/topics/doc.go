// Package topicsvc manages the topic registry: creation with partition
// and retention validation, per-partition stream bootstrap, stats, and
// the periodic retention sweep.
package topicsvc
