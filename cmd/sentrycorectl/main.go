// Command sentrycorectl is the SentryCore operator CLI: one-off
// operations against a running deployment's database — force a
// source's fetch to run now, replay a stuck Item through the
// match/decision chain, and dump a user's budget state.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dida1024/sentrycore/internal/app"
	"github.com/dida1024/sentrycore/internal/budget"
	"github.com/dida1024/sentrycore/internal/coalescer"
	"github.com/dida1024/sentrycore/internal/config"
	"github.com/dida1024/sentrycore/internal/decision"
	"github.com/dida1024/sentrycore/internal/fetch"
	"github.com/dida1024/sentrycore/internal/ingest"
	"github.com/dida1024/sentrycore/internal/match"
	"github.com/dida1024/sentrycore/internal/pipeline"
	"github.com/dida1024/sentrycore/internal/repository/postgres"
)

func main() {
	root := &cobra.Command{
		Use:   "sentrycorectl",
		Short: "SentryCore operator CLI",
	}

	root.AddCommand(fetchCmd())
	root.AddCommand(replayCmd())
	root.AddCommand(budgetCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runWithDB loads config, opens Postgres, and runs fn, closing the
// connection afterward. The same load-connect-defer-close shape used
// across the codebase's other entry points.
func runWithDB(fn func(ctx context.Context, cfg *config.Config, db *sql.DB) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfgPath := os.Getenv("SENTRYCORE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return fn(ctx, cfg, db)
}

func fetchCmd() *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Force one source's fetch-and-ingest cycle to run now, bypassing next_fetch_at",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID == "" {
				return fmt.Errorf("--source is required")
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				sourceRepo := postgres.NewSourceRepo(db)
				itemRepo := postgres.NewItemRepo(db)
				ingestLogRepo := postgres.NewIngestLogRepo(db)

				source, err := sourceRepo.GetByID(ctx, sourceID)
				if err != nil {
					return fmt.Errorf("load source: %w", err)
				}

				coordinator := ingest.NewCoordinator(itemRepo, ingestLogRepo, nil)
				fetchOpts := fetch.Options{Timeout: 15 * time.Second, MaxRetries: 2}
				ingestPipeline := pipeline.NewIngestPipeline(sourceRepo, coordinator, fetchOpts, fetch.SchedulerConfig{}, noopEnqueuer{}, 100)

				fmt.Printf("forcing fetch for source %s (%s)\n", source.ID, source.Name)
				return ingestPipeline.FetchAndIngest(ctx, source)
			})
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "source ID to fetch now")
	return cmd
}

type noopEnqueuer struct{}

func (noopEnqueuer) EnqueueForEmbedding(ctx context.Context, itemIDs []string) {}

func replayCmd() *cobra.Command {
	var goalID, itemID string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run the match engine and decision pipeline for one (goal, item) pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goalID == "" || itemID == "" {
				return fmt.Errorf("--goal and --item are required")
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
				defer redisClient.Close()

				itemRepo := postgres.NewItemRepo(db)
				goalRepo := postgres.NewGoalRepo(db)
				matchRepo := postgres.NewMatchRepo(db)
				sourceRepo := postgres.NewSourceRepo(db)
				decisionRepo := postgres.NewDecisionRepo(db)
				budgetRepo := postgres.NewBudgetRepo(db)

				item, err := itemRepo.GetByID(ctx, itemID)
				if err != nil {
					return fmt.Errorf("load item: %w", err)
				}
				emb, err := itemRepo.GetEmbedding(ctx, itemID)
				if err != nil {
					return fmt.Errorf("load item embedding (item may not be embedded yet): %w", err)
				}
				item.Embedding = emb

				matchStore := app.NewMatchStore(matchRepo, sourceRepo, goalRepo)
				governor := budget.NewGovernor(budgetRepo, 5.0)
				immediateBuffer := coalescer.NewImmediateBuffer(redisClient)
				proposalSink := app.NewProposalSink(decisionRepo, immediateBuffer)
				decisionPipeline := decision.NewPipeline(nil, proposalSink)
				dispatcher := app.NewDispatcher(itemRepo, goalRepo, matchRepo, sourceRepo, governor, sourceRepo, decisionPipeline, decision.DefaultThresholds)

				matchEngine := match.NewEngine(goalRepo, sourceRepo, matchStore, dispatcher, match.DefaultWeights)
				if err := matchEngine.Compute(ctx, item); err != nil {
					return fmt.Errorf("replay match compute: %w", err)
				}

				fmt.Printf("replayed item %s against goal %s's source; see goal_item_matches and push_decision_records for outcome\n", itemID, goalID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goalID, "goal", "", "goal ID (informational; the match engine scores against every goal visible to the item's source)")
	cmd.Flags().StringVar(&itemID, "item", "", "item ID to replay")
	return cmd
}

func budgetCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Dump a user's current-day budget state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, db *sql.DB) error {
				budgetRepo := postgres.NewBudgetRepo(db)
				governor := budget.NewGovernor(budgetRepo, 5.0)

				flags, err := governor.Flags(ctx, userID)
				if err != nil {
					return fmt.Errorf("load budget flags: %w", err)
				}
				snapshot, err := budgetRepo.Snapshot(ctx, userID, time.Now().UTC().Format("2006-01-02"))
				if err != nil {
					return fmt.Errorf("load budget snapshot: %w", err)
				}
				dailyCap, err := budgetRepo.DailyCap(ctx, userID)
				if err != nil {
					return fmt.Errorf("load daily cap: %w", err)
				}

				fmt.Printf("user:              %s\n", userID)
				fmt.Printf("daily cap (usd):   %.4f\n", dailyCap)
				fmt.Printf("spent today (usd): %.4f\n", snapshot.USDEst)
				fmt.Printf("embedding disabled: %v\n", flags.EmbeddingDisabled)
				fmt.Printf("judge disabled:     %v\n", flags.JudgeDisabled)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID to inspect")
	return cmd
}
