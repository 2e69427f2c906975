// Command depositsd runs the pending-deposits processor: it bridges
// off-chain deposits into Stellar network payments for a single anchor
// deployment (spec.md §1). One instance is a singleton per deployment,
// enforced by the heartbeat lock (spec.md §4.1).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stellar-anchor/depositsd/internal/config"
	"github.com/stellar-anchor/depositsd/internal/corelog"
	"github.com/stellar-anchor/depositsd/internal/custody"
	"github.com/stellar-anchor/depositsd/internal/deposit"
	"github.com/stellar-anchor/depositsd/internal/heartbeat"
	coreHorizon "github.com/stellar-anchor/depositsd/internal/horizon"
	"github.com/stellar-anchor/depositsd/internal/lifecycle"
	"github.com/stellar-anchor/depositsd/internal/lock"
	"github.com/stellar-anchor/depositsd/internal/metrics"
	"github.com/stellar-anchor/depositsd/internal/queue"
	"github.com/stellar-anchor/depositsd/internal/rails"
	"github.com/stellar-anchor/depositsd/internal/store"
	"github.com/stellar-anchor/depositsd/internal/tasks"
)

func main() {
	app := config.App(run)
	if err := app.Run(os.Args); err != nil {
		corelog.Root().WithError(err).Error("fatal")
		os.Exit(1)
	}
}

// run drives the core loop and, per cfg.Loop (spec.md §6.1's `--loop`
// flag), restarts it after cfg.Interval on every clean exit — a wrapper
// concern around runOnce, not something runOnce's own tasks do internally.
func run(cfg *config.Config) error {
	for {
		if err := runOnce(cfg); err != nil {
			return err
		}
		if !cfg.Loop {
			return nil
		}
		corelog.Root().WithField("interval", cfg.Interval).Info("clean exit with --loop set, restarting core loop")
		time.Sleep(cfg.Interval)
	}
}

func runOnce(cfg *config.Config) error {
	if cfg.Verbose {
		corelog.SetLevel(logrus.DebugLevel)
	}

	repo, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer repo.Close()

	horizonAdapter := coreHorizon.New(cfg.HorizonURL, cfg.NetworkPassphrase)

	var custodyImpl custody.Custody
	if len(cfg.DistributionSeeds) > 0 {
		custodyImpl = &custody.SelfCustody{
			Horizon:           horizonAdapter,
			DistributionSeeds: cfg.DistributionSeeds,
			MaxBaseFee:        100,
		}
	} else {
		// No seeds configured: the operator is expected to supply their
		// own Custody implementation (external signer, channel-account
		// multisig) by building a separate binary against this package.
		return fmt.Errorf("no --distribution-seed configured and no external Custody wired in")
	}

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	deps := &tasks.Deps{
		Repo:     repo,
		Horizon:  horizonAdapter,
		Custody:  custodyImpl,
		Rails:    rails.Noop{},
		Deposit:  deposit.NoopHook{},
		FeeFunc:  deposit.ZeroFee,
		Locks:    lock.NewAccountLocks(),
		Queue:    queue.New(),
		Notifier: tasks.NewWebhookNotifier([]byte(cfg.WebhookSigningKey)),
		Metrics:  metricsRegistry,
		Interval: cfg.Interval,
	}

	hbLock := heartbeat.New(repo)
	coordinator := lifecycle.New(context.Background(), hbLock)
	coordinator.WatchSignals()
	ctx := coordinator.Context()

	if err := hbLock.Acquire(ctx); err != nil {
		if ctx.Err() != nil {
			return nil // canceled while waiting for the lock; clean shutdown
		}
		return fmt.Errorf("acquiring heartbeat lock: %w", err)
	}

	rehydrated, err := deps.Repo.RehydrateQueue(ctx)
	if err != nil {
		return fmt.Errorf("rehydrating submission queue: %w", err)
	}
	deps.Queue.Rehydrate(rehydrated)
	corelog.Root().WithField("count", len(rehydrated)).Info("rehydrated submission queue")

	if err := tasks.Reconcile(ctx, deps); err != nil {
		corelog.Root().WithError(err).Warn("startup reconciliation failed, continuing")
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	coordinator.Go(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	coordinator.Go(func(ctx context.Context) error { return config.WatchEnvFile(ctx, ".env") })
	coordinator.Go(hbLock.Maintain)
	coordinator.Go(tasks.NewRailsPoller(deps).Run)
	coordinator.Go(tasks.NewAccountChecker(deps).Run)
	coordinator.Go(tasks.NewTrustlineChecker(deps).Run)
	coordinator.Go(tasks.NewScavenger(deps).Run)
	for i := 0; i < cfg.SubmitterWorkers; i++ {
		coordinator.Go(tasks.NewSubmitter(deps).Run)
	}

	return coordinator.Wait()
}
