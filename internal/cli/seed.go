package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"backtrace-quiz-service/internal/app"
	"backtrace-quiz-service/internal/config"
	"backtrace-quiz-service/internal/domain"
	"backtrace-quiz-service/internal/infra/memory"
	pgstore "backtrace-quiz-service/internal/infra/postgres"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewSeedCmd bulk-loads the question set from a JSON file into Postgres,
// replacing whatever was there before.
func NewSeedCmd(configPath *string) *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the question set from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, seedFile)
		},
	}
	cmd.Flags().StringVar(&seedFile, "file", "", "path to questions JSON (overrides config)")
	return cmd
}

func runSeed(ctx context.Context, configPath, seedFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if seedFile == "" {
		seedFile = cfg.Questions.SeedFile
	}
	if seedFile == "" {
		return fmt.Errorf("no seed file given (use --file or questions.seed_file)")
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := memory.NewQuestionRepository(pgstore.NewQuestionStore(pool), time.Minute)
	service := app.NewQuizService(memory.NewSessionStore(), repo, cfg.Admin.Name)
	if err := service.SeedQuestions(ctx, questions); err != nil {
		return err
	}

	log.Printf("seeded %d questions from %s", len(questions), seedFile)
	return nil
}
