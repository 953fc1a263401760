// Package runtime wires storage, config, and every service into a
// single-node StreamForge instance. It exposes Open/Close, a basic
// health check, and accessors the HTTP layer builds on.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	topic, _ := rt.Topics().Create(ctx, topicsvc.CreateParams{WorkspaceID: "ws", Name: "orders"})
package runtime
