// Package config parses the processor's CLI surface (spec.md §6.1) using
// github.com/urfave/cli/v2 (the teacher's own flag library) with
// github.com/joho/godotenv loading a local .env file first, the same
// two-step the pack's Stellar disbursement-platform CLI uses before
// urfave/cli parses os.Args.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/stellar-anchor/depositsd/internal/corelog"
)

// DefaultInterval is the task_interval default spec.md §6.1 names.
const DefaultInterval = 10 * time.Second

// Config is the fully resolved set of options every component is
// constructed from.
type Config struct {
	// Interval is passed to every periodic task (rails poller, account
	// checker, trustline checker, scavenger).
	Interval time.Duration
	// Loop restarts the core loop after Interval seconds on clean exit;
	// spec.md §6.1 notes this is a wrapper concern, not core behavior.
	Loop bool

	DatabaseURL string

	HorizonURL        string
	NetworkPassphrase string

	// DistributionSeeds maps a distribution account ID (G...) to its
	// signing seed (S...), for a self-custody SelfCustody implementation.
	// Production deployments wiring an external Custody service instead
	// leave this empty.
	DistributionSeeds map[string]string

	// SubmitterWorkers is the number of concurrent Submitter loops pulling
	// from the shared submission queue; safe in any number because
	// per-distribution-account serialization comes from the lock map, not
	// from having a single consumer (spec.md §5's "across distribution
	// accounts: no ordering guarantee").
	SubmitterWorkers int

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint.
	MetricsAddr string

	// WebhookSigningKey, when set, is used to sign every on-change webhook
	// delivery's X-Delivery-Signature header. Empty means deliveries go out
	// unsigned.
	WebhookSigningKey string

	Verbose bool
}

// App builds the urfave/cli/v2 application. Run(os.Args) invokes action
// with the parsed Config.
func App(action func(*Config) error) *cli.App {
	return &cli.App{
		Name:  "depositsd",
		Usage: "bridges off-chain deposits into Stellar network payments",
		Before: func(*cli.Context) error {
			// Missing .env is not an error; flags/real env vars still apply.
			_ = godotenv.Load()
			return nil
		},
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Value:   DefaultInterval,
				Usage:   "task interval for every periodic task",
				EnvVars: []string{"DEPOSITSD_INTERVAL"},
			},
			&cli.BoolFlag{
				Name:    "loop",
				Usage:   "restart the core loop after --interval seconds on clean exit",
				EnvVars: []string{"DEPOSITSD_LOOP"},
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Postgres connection string",
				EnvVars:  []string{"DEPOSITSD_DATABASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "horizon-url",
				Value:   "https://horizon.stellar.org",
				Usage:   "Horizon server base URL",
				EnvVars: []string{"DEPOSITSD_HORIZON_URL"},
			},
			&cli.StringFlag{
				Name:    "network-passphrase",
				Value:   "Public Global Stellar Network ; September 2015",
				Usage:   "Stellar network passphrase",
				EnvVars: []string{"DEPOSITSD_NETWORK_PASSPHRASE"},
			},
			&cli.StringSliceFlag{
				Name:    "distribution-seed",
				Usage:   "distribution_account_id=seed pair; repeatable for multiple accounts",
				EnvVars: []string{"DEPOSITSD_DISTRIBUTION_SEEDS"},
			},
			&cli.IntFlag{
				Name:    "submitter-workers",
				Value:   4,
				Usage:   "number of concurrent Submitter loops",
				EnvVars: []string{"DEPOSITSD_SUBMITTER_WORKERS"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Value:   ":9090",
				Usage:   "listen address for the /metrics endpoint",
				EnvVars: []string{"DEPOSITSD_METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "webhook-signing-key",
				Usage:   "HMAC key used to sign on-change webhook deliveries; unset sends them unsigned",
				EnvVars: []string{"DEPOSITSD_WEBHOOK_SIGNING_KEY"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "enable debug-level logging",
				EnvVars: []string{"DEPOSITSD_VERBOSE"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := fromContext(c)
			if err != nil {
				return err
			}
			return action(cfg)
		},
	}
}

func fromContext(c *cli.Context) (*Config, error) {
	seeds, err := parseSeeds(c.StringSlice("distribution-seed"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Interval:          c.Duration("interval"),
		Loop:              c.Bool("loop"),
		DatabaseURL:       c.String("database-url"),
		HorizonURL:        c.String("horizon-url"),
		NetworkPassphrase: c.String("network-passphrase"),
		DistributionSeeds: seeds,
		SubmitterWorkers:  c.Int("submitter-workers"),
		MetricsAddr:       c.String("metrics-addr"),
		WebhookSigningKey: c.String("webhook-signing-key"),
		Verbose:           c.Bool("verbose"),
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("config: --interval must be positive, got %s", cfg.Interval)
	}
	if cfg.SubmitterWorkers <= 0 {
		return nil, fmt.Errorf("config: --submitter-workers must be positive, got %d", cfg.SubmitterWorkers)
	}
	return cfg, nil
}

// WatchEnvFile watches path (typically ".env") for writes and logs
// informationally when it changes. Config is only ever resolved once at
// startup, so this never hot-reloads anything; it exists so an operator
// editing distribution seeds or flags in .env gets a log line pointing out
// that a restart is needed, instead of silently running on stale config.
// A missing file is not an error: most deployments configure purely via
// flags/real env vars and never create one.
func WatchEnvFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating .env watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		corelog.Root().WithError(err).WithField("path", path).Debug("not watching env file")
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				corelog.Root().WithField("path", path).Info("env file changed; restart depositsd to pick up new config")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			corelog.Root().WithError(err).Warn("env file watch error")
		}
	}
}

func parseSeeds(pairs []string) (map[string]string, error) {
	seeds := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		account, seed, ok := strings.Cut(pair, "=")
		if !ok || account == "" || seed == "" {
			return nil, fmt.Errorf("config: malformed --distribution-seed %q, want distribution_account_id=seed", pair)
		}
		seeds[account] = seed
	}
	return seeds, nil
}
