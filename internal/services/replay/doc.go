// Package replaysvc re-publishes historical entries of a topic back onto
// its stream: four addressing modes, pause/resume/stop control, and
// optional pacing that compresses the original arrival rhythm.
package replaysvc
