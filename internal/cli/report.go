package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"mockexam-service/internal/app"
	"mockexam-service/internal/config"
	"mockexam-service/internal/infra/memory"
	pg "mockexam-service/internal/infra/postgres"
	"mockexam-service/internal/narrative"
)

// NewReportCmd builds the performance report for a user's latest archived
// attempt: the narrative analysis on stdout, or the raw summary/aggregate
// figures as JSON for an external document renderer.
func NewReportCmd(configPath *string) *cobra.Command {
	var (
		userID        string
		asJSON        bool
		withStats     bool
		daysRemaining int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a performance report for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), *configPath, userID, asJSON, withStats, daysRemaining)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to report on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the performance summary as JSON instead of prose")
	cmd.Flags().BoolVar(&withStats, "stats", false, "include aggregate statistics across all tests")
	cmd.Flags().IntVar(&daysRemaining, "days-remaining", 0, "days until the real exam, passed to the narrative generator")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runReport(ctx context.Context, configPath, userID string, asJSON, withStats bool, daysRemaining int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured: reports read the attempt archive")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	var loader memory.CatalogueLoader = pg.NewCatalogueLoader(pool)
	if cfg.Catalogue.Path != "" {
		loader = memory.NewFileCatalogueLoader(cfg.Catalogue.Path)
	}
	catalogue := memory.NewCatalogueRepository(loader, config.Duration(cfg.Catalogue.TTL, 10*time.Minute))

	archive := pg.NewArchive(db)
	analytics := app.NewAnalyticsEngine(archive)
	reports := app.NewReportFacade(catalogue, archive, analytics)

	summary, err := reports.BuildSummary(ctx, userID)
	if err != nil {
		return err
	}

	if asJSON {
		out := struct {
			Summary   interface{} `json:"summary"`
			Aggregate interface{} `json:"aggregate,omitempty"`
		}{Summary: summary}
		if withStats {
			stats, err := analytics.ComputeAggregate(ctx, userID)
			if err != nil {
				return err
			}
			out.Aggregate = stats
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	var client *narrative.Client
	if cfg.Narrative.Model != "" {
		client = narrative.New(cfg.Narrative.BaseURL, cfg.Narrative.APIKey, cfg.Narrative.Model)
	}
	text, err := narrative.NewService(client).Analyze(ctx, summary, narrative.Options{
		CurrentDate:   time.Now().Format("2006-01-02"),
		DaysRemaining: daysRemaining,
	})
	if err != nil {
		return err
	}
	fmt.Println(text)

	if withStats {
		stats, err := analytics.ComputeAggregate(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Printf("\nAcross %d tests (latest attempts): average %.1f marks, %d/%d correct, %s on paper.\n",
			stats.TestsCompleted, stats.AverageScore, stats.CorrectAnswers,
			stats.QuestionsAttempted, app.FormatDuration(stats.TotalTimeSeconds))
	}
	return nil
}
