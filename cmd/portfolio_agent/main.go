package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alpha_portfolio/internal/broker"
	"alpha_portfolio/internal/config"
	"alpha_portfolio/internal/executor"
	"alpha_portfolio/internal/logging"
	"alpha_portfolio/internal/market"
	alpacamarket "alpha_portfolio/internal/market/alpaca"
	"alpha_portfolio/internal/models"
	"alpha_portfolio/internal/notify"
	"alpha_portfolio/internal/optimizer"
	"alpha_portfolio/internal/orchestrator"
	"alpha_portfolio/internal/research"
	"alpha_portfolio/internal/storage"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "portfolio_agent",
		Short: "AI-assisted portfolio runs: research, decide, optimize, execute",
	}
	root.AddCommand(runCmd(), watchCmd(), historyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles the wired components of one process.
type app struct {
	cfg          *config.Config
	log          zerolog.Logger
	market       market.Provider
	orchestrator *orchestrator.Orchestrator
	store        *storage.Store
	notifier     *notify.Notifier
}

// buildApp performs all dependency wiring. Every collaborator is constructed
// here and injected; nothing reaches for globals.
func buildApp() (*app, error) {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	store, err := storage.Open(cfg.OrderStorePath, log)
	if err != nil {
		return nil, err
	}

	provider := alpacamarket.NewProvider()
	snapshots := market.NewSnapshotService(provider, log)

	llm := research.NewLLMClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	researcher := research.NewResearcher(llm, log)
	aggregator := research.NewAggregator(llm, log)

	brokerClient := broker.NewAlpacaClient(log)
	coordinator := executor.New(brokerClient, store, time.Duration(cfg.TierTimeoutSec)*time.Second, log)

	orch := orchestrator.New(snapshots, researcher, aggregator, optimizer.New(), coordinator, cfg.ResearchConcurrency, log)

	return &app{
		cfg:          cfg,
		log:          log,
		market:       provider,
		orchestrator: orch,
		store:        store,
		notifier:     notify.NewNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, log),
	}, nil
}

func (a *app) runCycle(ctx context.Context) error {
	plan, err := a.orchestrator.RunPortfolioCycle(ctx, a.cfg.Watchlist)
	if plan != nil {
		a.notifier.NotifyRun(plan)
		printPlan(plan)
	}
	return err
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one portfolio cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			ctx, cancel := signalContext()
			defer cancel()
			return a.runCycle(ctx)
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run portfolio cycles on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.store.Close()

			ctx, cancel := signalContext()
			defer cancel()

			c := cron.New()
			_, err = c.AddFunc(a.cfg.CronSchedule, func() {
				if clock, clockErr := a.market.GetClock(); clockErr != nil {
					a.log.Warn().Err(clockErr).Msg("Market clock unavailable; running anyway")
				} else if !clock.IsOpen {
					a.log.Info().
						Time("next_open", clock.NextOpen).
						Msg("Market closed; skipping scheduled run")
					return
				}
				if err := a.runCycle(ctx); err != nil {
					a.log.Error().Err(err).Msg("Scheduled run failed")
				}
			})
			if err != nil {
				return fmt.Errorf("invalid RUN_SCHEDULE %q: %w", a.cfg.CronSchedule, err)
			}

			a.log.Info().Str("schedule", a.cfg.CronSchedule).Msg("Watch mode started")
			c.Start()
			<-ctx.Done()
			a.log.Info().Msg("Signal received; stopping scheduler")
			<-c.Stop().Done()
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List persisted runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.LogLevel)
			store, err := storage.Open(cfg.OrderStorePath, log)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %s  orders=%d failed=%d\n",
					r.RunID, r.GeneratedAt.Format(time.RFC3339), r.OrderCount, r.FailedOrders)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

// signalContext cancels on SIGINT/SIGTERM so a run-level abort propagates to
// outstanding research tasks and stops further order tiers.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printPlan(plan *models.OrderExecutionPlan) {
	fmt.Printf("Run %s (scaling %s)\n", plan.RunID, plan.ScalingFactorApplied.StringFixed(4))
	for _, ord := range plan.Orders {
		label := string(ord.Side)
		if ord.IsCover {
			label = "COVER"
		}
		fmt.Printf("  %-5s %5d %-6s $%-10s %s", label, ord.Quantity, ord.Symbol,
			ord.EstimatedValue.StringFixed(2), ord.Status)
		if ord.ErrorMessage != "" {
			fmt.Printf("  (%s)", ord.ErrorMessage)
		}
		fmt.Println()
	}
	if len(plan.Orders) == 0 {
		fmt.Println("  no actionable orders")
	}
}
