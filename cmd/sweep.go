package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/cardspend/internal/renewal"
)

var sweepOnce bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the renewal lifecycle worker",
	Long: `Run the scheduled sweeps: renewal reminders, auto-cancellations,
cycle advancement, rejected-entry cleanup and exchange rate refresh.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSweeper()
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "Run every sweep once and exit")
}

func runSweeper() {
	app, err := buildApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config.Renewal
	sweeper := renewal.NewSweeper(
		app.RenewalStore,
		app.RenewalLogs,
		app.Users,
		app.Mailer,
		app.Notifier,
		app.Signer,
		app.Rates,
		renewal.SweepConfig{
			ReminderDays:          cfg.ReminderDays,
			AutoCancelDays:        cfg.AutoCancelDays,
			RejectedRetentionDays: cfg.RejectedRetention,
			BaseURL:               app.Config.Server.BaseURL,
			Currencies:            []string{"USD", "EUR", "GBP", "AUD", "CAD"},
		},
		app.Logger,
	)

	if sweepOnce {
		runAllSweeps(sweeper, app.Logger)
		return
	}

	c := cron.New()
	schedule := func(spec, name string, fn func(time.Time)) {
		if _, err := c.AddFunc(spec, func() { fn(time.Now()) }); err != nil {
			app.Logger.Error("invalid cron spec", "error", err, "sweep", name, "spec", spec)
			os.Exit(1)
		}
		app.Logger.Info("sweep scheduled", "sweep", name, "spec", spec)
	}

	schedule(cfg.ReminderSpec, "renewal_reminders", func(now time.Time) {
		sweeper.SendReminders(now)
	})
	schedule(cfg.AutoCancelSpec, "auto_cancellations", func(now time.Time) {
		sweeper.SendAutoCancellations(now)
	})
	schedule(cfg.FlagResetSpec, "cycle_advancement", func(now time.Time) {
		sweeper.AdvanceHandledCycles(now)
	})
	schedule(cfg.CleanupSpec, "rejected_cleanup", func(now time.Time) {
		sweeper.CleanupRejected(now)
	})
	schedule(cfg.RateRefreshSpec, "rate_refresh", func(now time.Time) {
		sweeper.RefreshExchangeRates(now)
	})

	c.Start()
	slog.Info("Sweep worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	slog.Info("Received signal, stopping sweep worker...", "signal", sig)
	ctx := c.Stop()
	<-ctx.Done()

	if err := app.DB.Close(); err != nil {
		slog.Error("Database close error", "error", err)
	}
	slog.Info("Sweep worker stopped")
}

func runAllSweeps(sweeper *renewal.Sweeper, lg *slog.Logger) {
	now := time.Now()
	sweeper.RefreshExchangeRates(now)
	sweeper.SendReminders(now)
	sweeper.SendAutoCancellations(now)
	sweeper.AdvanceHandledCycles(now)
	sweeper.CleanupRejected(now)
	lg.Info("one-shot sweep finished")
}
