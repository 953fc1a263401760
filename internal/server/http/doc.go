// Package httpserver provides the REST gateway for StreamForge with SSE
// subscribe support and JSON endpoints covering topics, groups, events,
// the dead-letter queue, and replay sessions.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
