package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/aman1205/StreamForge/internal/config"
	"github.com/aman1205/StreamForge/internal/runtime"
	httpserver "github.com/aman1205/StreamForge/internal/server/http"
	pebblestore "github.com/aman1205/StreamForge/internal/storage/pebble"
	logpkg "github.com/aman1205/StreamForge/pkg/log"
)

// Options configure the server process.
type Options struct {
	DataDir  string
	HTTPAddr string
	Fsync    pebblestore.FsyncMode
	Config   cfgpkg.Config
}

// Run starts the HTTP server and maintenance sweeps and blocks until ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// pass a plain context still get clean SIGTERM handling.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = opts.Config.DataDir
	}
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = opts.Config.HTTPAddr
	}

	logger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  opts.Config.Log.Level,
		Format: opts.Config.Log.Format,
	})
	if err != nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}

	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir: storeDir,
		Fsync:   opts.Fsync,
		Config:  opts.Config,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Starting StreamForge server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", opts.Config.Log.Level),
		logpkg.Str("format", opts.Config.Log.Format),
	)

	hsrv := httpserver.New(rt)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server", logpkg.Err(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runMaintenance(sctx, rt)
	}()

	<-sctx.Done()
	// Shut servers down before closing the runtime so in-flight handlers
	// never observe a closed store.
	hsrv.Close()
	wg.Wait()
	return nil
}

// runMaintenance drives the periodic sweeps: retention trims, expired ack
// redelivery, due DLQ retries, replay session cleanup, throughput tracker
// eviction, and stale consumer eviction.
func runMaintenance(ctx context.Context, rt *runtime.Runtime) {
	m := rt.Config().Maintenance

	retention := time.NewTicker(interval(m.RetentionInterval, time.Hour))
	ackSweep := time.NewTicker(interval(m.AckCleanupInterval, time.Minute))
	dlqSweep := time.NewTicker(interval(m.DLQSweepInterval, time.Minute))
	replaySweep := time.NewTicker(interval(m.ReplayCleanupEvery, 10*time.Minute))
	trackerSweep := time.NewTicker(interval(m.MetricsCleanupEvery, 5*time.Minute))
	evictSweep := time.NewTicker(interval(m.ConsumerEvictEvery, 30*time.Second))
	defer retention.Stop()
	defer ackSweep.Stop()
	defer dlqSweep.Stop()
	defer replaySweep.Stop()
	defer trackerSweep.Stop()
	defer evictSweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retention.C:
			rt.Topics().EnforceRetention(ctx)
		case <-ackSweep.C:
			rt.Events().CleanupExpired(ctx)
		case <-dlqSweep.C:
			rt.DLQ().SweepDue(ctx)
		case <-replaySweep.C:
			rt.Replay().Cleanup()
		case <-trackerSweep.C:
			rt.Backpressure().Cleanup()
		case <-evictSweep.C:
			rt.Groups().EvictStale(ctx)
		}
	}
}

func interval(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
