// Package app assembles the daemon from its parts and runs them until
// the context ends.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dzli1/blocking/internal/blocker/common/log"
	"github.com/dzli1/blocking/internal/blocker/config"
	"github.com/dzli1/blocking/internal/blocker/gateways/control"
	"github.com/dzli1/blocking/internal/blocker/gateways/hostsfile"
	"github.com/dzli1/blocking/internal/blocker/gateways/monitor"
	"github.com/dzli1/blocking/internal/blocker/repos/journal"
	"github.com/dzli1/blocking/internal/blocker/repos/resolvecache"
	"github.com/dzli1/blocking/internal/blocker/repos/state"
	"github.com/dzli1/blocking/internal/blocker/services/engine"
)

// watchDebounce coalesces editor write bursts into one reconcile.
const watchDebounce = 500 * time.Millisecond

// Run wires the daemon and blocks until ctx is cancelled or a component
// fails. The hosts table region is cleared on the way out.
func Run(ctx context.Context, cfg config.AppConfig) error {
	logger := log.GetLogger()

	writer := hostsfile.New(cfg.HostsPath, cfg.RedirectIP, logger)
	stateStore := state.New(cfg.StatePath)

	// the journal is best-effort: a locked or unwritable file should not
	// keep the blocker down
	var recorder engine.Recorder
	jnl, err := journal.Open(cfg.JournalPath, int(cfg.JournalMax))
	if err != nil {
		logger.Warn(map[string]any{
			"path":  cfg.JournalPath,
			"error": err.Error(),
		}, "journal unavailable, continuing without it")
	} else {
		recorder = jnl
		defer func() {
			if cerr := jnl.Close(); cerr != nil {
				logger.Warn(map[string]any{"error": cerr.Error()}, "journal close")
			}
		}()
	}

	eng, err := engine.New(engine.Options{
		Enforcer: writer,
		State:    stateStore,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}

	if err := eng.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if _, err := eng.Reconcile(); err != nil {
		logger.Warn(map[string]any{"error": err.Error()}, "initial reconcile failed, will retry on schedule")
	}

	ctrlOpts := control.Options{
		Addr:   cfg.ListenAddr,
		Engine: eng,
		Logger: logger,
	}
	if jnl != nil {
		ctrlOpts.Journal = jnl
	}
	api, err := control.New(ctrlOpts)
	if err != nil {
		return fmt.Errorf("assemble control api: %w", err)
	}

	watcher := hostsfile.NewWatcher(cfg.HostsPath, watchDebounce, func() {
		if _, rerr := eng.Reconcile(); rerr != nil {
			logger.Warn(map[string]any{"error": rerr.Error()}, "reconcile after table change failed")
		}
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Run(gctx) })
	g.Go(func() error { return eng.Schedule(gctx, cfg.ReconcileInterval) })
	g.Go(func() error { return watcher.Run(gctx) })

	if cfg.MonitorInterval > 0 {
		cache, cerr := resolvecache.New(int(cfg.CacheSize))
		if cerr != nil {
			return fmt.Errorf("assemble resolve cache: %w", cerr)
		}
		mon, merr := monitor.New(monitor.Options{
			Interval: cfg.MonitorInterval,
			Upstream: cfg.MonitorUpstream,
			Source:   eng,
			Cache:    cache,
			Logger:   logger,
		})
		if merr != nil {
			return fmt.Errorf("assemble monitor: %w", merr)
		}
		g.Go(func() error { return mon.Run(gctx) })
	}

	logger.Info(map[string]any{
		"hosts": cfg.HostsPath,
		"state": cfg.StatePath,
		"addr":  cfg.ListenAddr,
	}, "daemon running")

	err = g.Wait()

	if terr := eng.Teardown(); terr != nil {
		logger.Error(map[string]any{"error": terr.Error()}, "teardown failed, table may still hold the region")
	}
	return err
}
